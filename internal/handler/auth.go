package handler

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"quizdesk/internal/model"
)

const sessionCookieName = "session_token"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondError(w, r, http.StatusUnauthorized, "ErrLoginFailed")
		return
	}

	user, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		h.internalError(w, r, "look up user", err)
		return
	}
	if user == nil || !user.Active ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondError(w, r, http.StatusUnauthorized, "ErrLoginFailed")
		return
	}

	token, err := h.store.CreateAuthSession(user.ID)
	if err != nil {
		h.internalError(w, r, "create session", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": user.Username,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		if err := h.store.DeleteAuthSession(c.Value); err != nil {
			h.internalError(w, r, "delete session", err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// requireAdmin gates the admin API behind a valid session of an active admin
// user and stores the user in the request context.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookieName)
		if err != nil || c.Value == "" {
			respondError(w, r, http.StatusUnauthorized, "ErrLoginFailed")
			return
		}
		sess, err := h.store.GetAuthSession(c.Value)
		if err != nil {
			h.internalError(w, r, "look up session", err)
			return
		}
		if sess == nil {
			respondError(w, r, http.StatusUnauthorized, "ErrLoginFailed")
			return
		}
		user, err := h.store.GetUserByID(sess.UserID)
		if err != nil {
			h.internalError(w, r, "look up session user", err)
			return
		}
		if user == nil || !user.Active {
			respondError(w, r, http.StatusUnauthorized, "ErrLoginFailed")
			return
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithUser(r.Context(), user)))
	})
}
