package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/auth"
	"github.com/drivescope/drivescope/internal/database"
)

type contextKey string

// SessionContextKey is the context key for the authenticated session.
const SessionContextKey contextKey = "session"

// SessionCookieName is the cookie carrying the session ID.
const SessionCookieName = "drivescope_session"

// Logger logs each request at debug level.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// SessionAuth rejects requests without a valid session cookie and puts the
// session on the request context.
func SessionAuth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			session, err := authService.Session(cookie.Value)
			if err != nil {
				log.Error().Err(err).Msg("Failed to load session")
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			if session == nil {
				// Clear the stale cookie.
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    "",
					Path:     "/",
					MaxAge:   -1,
					HttpOnly: true,
				})
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			if err := authService.ExtendSession(session.ID); err != nil {
				log.Warn().Err(err).Msg("Failed to extend session")
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the authenticated session, or nil.
func SessionFromContext(ctx context.Context) *database.Session {
	session, _ := ctx.Value(SessionContextKey).(*database.Session)
	return session
}
