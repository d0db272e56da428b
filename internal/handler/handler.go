package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"quizdesk/internal/events"
	appI18n "quizdesk/internal/i18n"
	"quizdesk/internal/model"
	"quizdesk/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	hub      *events.Hub
	config   model.ServerConfig
	attempts *attemptTracker
}

// New creates a new Handler.
func New(s *store.Store, hub *events.Hub, cfg model.ServerConfig) *Handler {
	return &Handler{
		store:    s,
		hub:      hub,
		config:   cfg,
		attempts: newAttemptTracker(),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Get("/tests", h.handleListActiveTests)
		api.Get("/results/last", h.handleLastResult)
		api.Post("/tests/{testID}/start", h.handleStartAttempt)
		api.Get("/tests/{testID}/questions", h.handleGetQuestions)
		api.Post("/tests/{testID}/submit", h.handleSubmit)
		api.Get("/events", h.hub.ServeHTTP)

		api.Post("/login", h.handleLogin)
		api.Post("/logout", h.handleLogout)

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(h.requireAdmin)

			admin.Get("/tests", h.handleListTests)
			admin.Post("/tests", h.handleCreateTest)
			admin.Put("/tests/{testID}/rename", h.handleRenameTest)
			admin.Put("/tests/{testID}/status", h.handleSetTestStatus)
			admin.Delete("/tests/{testID}", h.handleDeleteTest)

			admin.Get("/tests/{testID}/settings", h.handleGetSettings)
			admin.Post("/tests/{testID}/settings", h.handleSaveSettings)

			admin.Get("/tests/{testID}/questions", h.handleListQuestions)
			admin.Post("/tests/{testID}/questions", h.handleAddQuestion)
			admin.Post("/questions/update", h.handleUpdateQuestion)
			admin.Post("/questions/delete-bulk", h.handleDeleteQuestions)

			admin.Get("/tests/{testID}/results", h.handleListResults)
			admin.Post("/results/delete-bulk", h.handleDeleteResults)
			admin.Get("/results/{resultID}/protocol", h.handleProtocol)

			admin.Get("/results/{resultID}/review", h.handlePendingReviews)
			admin.Post("/review/submit-batch", h.handleSubmitBatch)
		})
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// respondError writes a localized {"error": ...} body.
func respondError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	respondJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "ErrInvalidInput")
		return false
	}
	return true
}
