package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"quizdesk/internal/events"
	"quizdesk/internal/model"
)

func (h *Handler) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.store.ListTests()
	if err != nil {
		h.internalError(w, r, "list tests", err)
		return
	}
	if tests == nil {
		tests = []model.Test{}
	}
	respondJSON(w, http.StatusOK, tests)
}

type testNameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req testNameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "ErrEmptyTestName")
		return
	}
	test, err := h.store.CreateTest(req.Name)
	if err != nil {
		h.internalError(w, r, "create test", err)
		return
	}
	h.hub.Publish(events.TestsUpdated, map[string]any{"testId": test.ID})
	respondJSON(w, http.StatusCreated, test)
}

func (h *Handler) handleRenameTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	var req testNameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "ErrEmptyTestName")
		return
	}
	if err := h.store.RenameTest(testID, req.Name); err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	h.hub.Publish(events.TestsUpdated, map[string]any{"testId": testID})
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleSetTestStatus(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	var req struct {
		IsActive bool `json:"isActive"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.store.SetTestActive(testID, req.IsActive); err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	h.hub.Publish(events.TestsUpdated, map[string]any{"testId": testID})
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "isActive": req.IsActive})
}

func (h *Handler) handleDeleteTest(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	if err := h.store.DeleteTest(testID); err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	h.hub.Publish(events.TestsUpdated, map[string]any{"testId": testID})
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(chi.URLParam(r, "testID"))
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req model.TestSettings
	if !decodeBody(w, r, &req) {
		return
	}
	req.TestID = chi.URLParam(r, "testID")
	if req.DurationMinutes < 1 || req.DurationMinutes > 180 ||
		req.PassingScore < 1 ||
		req.QuestionsPerTest < 1 || req.QuestionsPerTest > 100 ||
		req.PassingScore > req.QuestionsPerTest {
		respondError(w, r, http.StatusBadRequest, "ErrInvalidSettings")
		return
	}
	if err := h.store.SaveSettings(req); err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	h.hub.Publish(events.TestsUpdated, map[string]any{"testId": req.TestID})
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.store.QuestionsForTest(chi.URLParam(r, "testID"))
	if err != nil {
		h.internalError(w, r, "list questions", err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	respondJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	var q model.Question
	if !decodeBody(w, r, &q) {
		return
	}
	q.ID = ""
	if !validQuestion(q) {
		respondError(w, r, http.StatusBadRequest, "ErrInvalidInput")
		return
	}
	if _, err := h.store.GetTest(testID); err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	saved, err := h.store.SaveQuestion(testID, q)
	if err != nil {
		h.internalError(w, r, "save question", err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q model.Question
	if !decodeBody(w, r, &q) {
		return
	}
	if q.ID == "" || !validQuestion(q) {
		respondError(w, r, http.StatusBadRequest, "ErrInvalidInput")
		return
	}
	saved, err := h.store.SaveQuestion("", q)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func validQuestion(q model.Question) bool {
	if strings.TrimSpace(q.Text) == "" {
		return false
	}
	switch q.Kind {
	case model.KindMatch:
		return len(q.MatchPrompts) > 0 && len(q.MatchPrompts) == len(q.MatchAnswers)
	case model.KindText:
		return true
	default:
		return len(q.Options) > 0 && len(q.CorrectKeys) > 0
	}
}

func (h *Handler) handleDeleteQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, r, http.StatusBadRequest, "ErrIDsRequired")
		return
	}
	if err := h.store.DeleteQuestions(req.IDs); err != nil {
		h.internalError(w, r, "delete questions", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleListResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	results, err := h.store.PaginatedResults(
		chi.URLParam(r, "testID"), strings.TrimSpace(q.Get("search")),
		q.Get("sort"), q.Get("order"), page, limit,
	)
	if err != nil {
		h.internalError(w, r, "list results", err)
		return
	}
	if results.Results == nil {
		results.Results = []model.Result{}
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) handleDeleteResults(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, r, http.StatusBadRequest, "ErrIDsRequired")
		return
	}
	deleted, err := h.store.DeleteResults(req.IDs)
	if err != nil {
		h.internalError(w, r, "delete results", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func (h *Handler) handleProtocol(w http.ResponseWriter, r *http.Request) {
	resultID, err := strconv.ParseInt(chi.URLParam(r, "resultID"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrInvalidInput")
		return
	}
	summary, err := h.store.GetResultSummary(resultID)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrResultNotFound")
		return
	}
	protocol, err := h.buildProtocol(r, resultID)
	if err != nil {
		h.internalError(w, r, "build protocol", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"summary":      summary,
		"protocolData": protocol,
	})
}

func (h *Handler) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	resultID, err := strconv.ParseInt(chi.URLParam(r, "resultID"), 10, 64)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrInvalidInput")
		return
	}
	if _, err := h.store.GetResultSummary(resultID); err != nil {
		h.notFoundOrInternal(w, r, err, "ErrResultNotFound")
		return
	}
	pending, err := h.store.PendingReviews(resultID)
	if err != nil {
		h.internalError(w, r, "list pending reviews", err)
		return
	}
	if pending == nil {
		pending = []model.PendingReview{}
	}
	respondJSON(w, http.StatusOK, pending)
}

func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Verdicts []model.Verdict `json:"verdicts"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Verdicts) == 0 {
		respondError(w, r, http.StatusBadRequest, "ErrVerdictsRequired")
		return
	}

	outcome, err := h.store.ApplyVerdicts(req.Verdicts)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrResultNotFound")
		return
	}

	if outcome.Finalized {
		summary, err := h.store.GetResultSummary(outcome.ResultID)
		if err != nil {
			h.internalError(w, r, "load finalized summary", err)
			return
		}
		protocol, err := h.buildProtocol(r, outcome.ResultID)
		if err != nil {
			h.internalError(w, r, "build protocol", err)
			return
		}
		h.hub.Publish(events.ResultReviewed, map[string]any{
			"resultId": outcome.ResultID,
			"finalResultData": map[string]any{
				"summary":      summary,
				"protocolData": protocol,
			},
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"resultId":    outcome.ResultID,
		"isFinalized": outcome.Finalized,
	})
}
