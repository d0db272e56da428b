package handler

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"quizdesk/internal/events"
	"quizdesk/internal/exam"
	appI18n "quizdesk/internal/i18n"
	"quizdesk/internal/model"
	"quizdesk/internal/store"
)

// submitGrace absorbs network latency between the client-side deadline and
// the submission arriving at the server.
const submitGrace = 5 * time.Second

func (h *Handler) handleListActiveTests(w http.ResponseWriter, r *http.Request) {
	fio := strings.TrimSpace(r.URL.Query().Get("fio"))
	tests, err := h.store.ListActiveTests(fio)
	if err != nil {
		h.internalError(w, r, "list active tests", err)
		return
	}
	if tests == nil {
		tests = []model.ActiveTest{}
	}
	respondJSON(w, http.StatusOK, tests)
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	test, err := h.store.GetTest(testID)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	if !test.IsActive {
		respondError(w, r, http.StatusNotFound, "ErrTestInactive")
		return
	}

	now := time.Now()
	token := h.attempts.token(w, r, h.config.SecureCookies)
	h.attempts.start(token, testID, now)
	respondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"startTime": now.UnixMilli(),
	})
}

func (h *Handler) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	test, err := h.store.GetTest(testID)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}
	if !test.IsActive {
		respondError(w, r, http.StatusNotFound, "ErrTestInactive")
		return
	}
	settings, err := h.store.GetSettings(testID)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}

	questions, err := h.store.SampleQuestions(testID, settings.QuestionsPerTest)
	if err != nil {
		h.internalError(w, r, "sample questions", err)
		return
	}
	for i := range questions {
		shuffleQuestion(&questions[i])
	}
	if questions == nil {
		questions = []model.Question{}
	}

	duration := time.Duration(settings.DurationMinutes) * time.Minute
	start := time.Now()
	token := h.attempts.token(w, r, h.config.SecureCookies)
	if recorded, ok := h.attempts.startTime(token, testID); ok {
		start = recorded
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"questions": questions,
		"duration":  int(duration.Seconds()),
		"endTime":   start.Add(duration).UnixMilli(),
	})
}

// shuffleQuestion randomizes the display order of options and match answers.
// The canonical match ordering stays server-side only.
func shuffleQuestion(q *model.Question) {
	rand.Shuffle(len(q.Options), func(i, j int) {
		q.Options[i], q.Options[j] = q.Options[j], q.Options[i]
	})
	if q.Kind == model.KindMatch {
		shuffled := make([]string, len(q.MatchAnswers))
		copy(shuffled, q.MatchAnswers)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		q.MatchAnswers = shuffled
	}
}

type submitRequest struct {
	FIO     string                  `json:"fio"`
	Answers []model.SubmittedAnswer `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")

	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.FIO = strings.TrimSpace(req.FIO)
	if req.FIO == "" || req.Answers == nil {
		respondError(w, r, http.StatusBadRequest, "ErrNameAndAnswersRequired")
		return
	}

	settings, err := h.store.GetSettings(testID)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrTestNotFound")
		return
	}

	token := h.attempts.token(w, r, h.config.SecureCookies)
	started, ok := h.attempts.startTime(token, testID)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "ErrNotStarted")
		return
	}
	now := time.Now()
	allowed := time.Duration(settings.DurationMinutes)*time.Minute + submitGrace
	if now.Sub(started) > allowed {
		h.attempts.clear(token, testID)
		respondError(w, r, http.StatusBadRequest, "ErrTimeExpired")
		return
	}
	h.attempts.clear(token, testID)

	passed, err := h.store.HasPassedResult(testID, req.FIO)
	if err != nil {
		h.internalError(w, r, "check passed result", err)
		return
	}
	if passed {
		respondError(w, r, http.StatusConflict, "ErrAlreadyPassed")
		return
	}

	ids := make([]string, 0, len(req.Answers))
	for _, a := range req.Answers {
		if a.QuestionID != "" {
			ids = append(ids, a.QuestionID)
		}
	}
	if len(ids) == 0 {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":       model.StatusCompleted,
			"score":        0,
			"total":        0,
			"percentage":   0,
			"passed":       false,
			"protocolData": []model.ProtocolEntry{},
		})
		return
	}

	questions, err := h.store.QuestionsForSubmission(testID, ids)
	if err != nil {
		h.internalError(w, r, "fetch submission questions", err)
		return
	}

	result, answers := exam.Aggregate(testID, req.FIO, req.Answers, questions, settings.PassingScore, now)
	resultID, err := h.store.CreateResult(result, answers)
	if err != nil {
		h.internalError(w, r, "create result", err)
		return
	}

	testName := appI18n.T(r.Context(), "UnknownTestName")
	if test, err := h.store.GetTest(testID); err == nil {
		testName = test.Name
	}
	h.hub.Publish(events.NewResult, map[string]any{
		"resultId":   resultID,
		"testId":     testID,
		"testName":   testName,
		"fio":        result.FIO,
		"score":      result.Score,
		"total":      result.Total,
		"percentage": result.Percentage,
		"status":     result.Status,
		"passed":     result.Passed,
	})

	if result.Status == model.StatusPendingReview {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":   result.Status,
			"resultId": resultID,
		})
		return
	}

	protocol, err := h.buildProtocol(r, resultID)
	if err != nil {
		h.internalError(w, r, "build protocol", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       result.Status,
		"resultId":     resultID,
		"fio":          result.FIO,
		"testName":     testName,
		"score":        result.Score,
		"total":        result.Total,
		"percentage":   result.Percentage,
		"passed":       result.Passed,
		"protocolData": protocol,
	})
}

func (h *Handler) handleLastResult(w http.ResponseWriter, r *http.Request) {
	testID := strings.TrimSpace(r.URL.Query().Get("testId"))
	fio := strings.TrimSpace(r.URL.Query().Get("fio"))
	if testID == "" || fio == "" {
		respondError(w, r, http.StatusBadRequest, "ErrTestIDAndNameRequired")
		return
	}

	resultID, err := h.store.LastPassedResultID(testID, fio)
	if err != nil {
		h.notFoundOrInternal(w, r, err, "ErrNoPassedResult")
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

// buildProtocol loads a result's answer records and renders the per-question
// breakdown.
func (h *Handler) buildProtocol(r *http.Request, resultID int64) ([]model.ProtocolEntry, error) {
	records, err := h.store.AnswersForResult(resultID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.QuestionID != "" {
			ids = append(ids, rec.QuestionID)
		}
	}
	options, err := h.store.OptionsForQuestions(ids)
	if err != nil {
		return nil, err
	}
	return exam.BuildProtocol(r.Context(), records, options), nil
}

func (h *Handler) notFoundOrInternal(w http.ResponseWriter, r *http.Request, err error, msgID string) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, msgID)
		return
	}
	h.internalError(w, r, "store query", err)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "error", err, "path", r.URL.Path)
	respondError(w, r, http.StatusInternalServerError, "ErrInternal")
}
