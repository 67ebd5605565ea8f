package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/auth"
	"github.com/drivescope/drivescope/internal/web/middleware"
)

const stateCookieName = "drivescope_oauth_state"

// Login redirects the browser to the Google consent screen. The state nonce
// round-trips through a short-lived cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.authService.LoginURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow: verify state, exchange the code, and
// issue a session cookie.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		h.jsonError(w, "invalid oauth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		h.jsonError(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	session, err := h.authService.CompleteLogin(r.Context(), code)
	if err != nil {
		log.Error().Err(err).Msg("OAuth login failed")
		h.jsonError(w, "login failed", http.StatusBadGateway)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  time.Now().Add(auth.SessionDuration),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout deletes the session and clears the cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.authService.Logout(cookie.Value); err != nil {
			log.Warn().Err(err).Msg("Failed to delete session")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	h.jsonSuccess(w, "signed out")
}

// Me returns the signed-in user.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]string{
		"userId":      session.UserID,
		"email":       session.Email,
		"displayName": session.DisplayName,
	})
}

// authStatus maps auth errors onto HTTP statuses shared by the Drive-backed
// handlers.
func authStatus(err error) (int, bool) {
	if errors.Is(err, auth.ErrAuthRequired) {
		return http.StatusUnauthorized, true
	}
	return 0, false
}
