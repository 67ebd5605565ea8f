package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/auth"
	"github.com/drivescope/drivescope/internal/monitor"
	"github.com/drivescope/drivescope/internal/project"
	"github.com/drivescope/drivescope/internal/web/handlers"
	"github.com/drivescope/drivescope/internal/web/middleware"
	"github.com/drivescope/drivescope/internal/web/sse"
)

// Server is the HTTP front of the application.
type Server struct {
	port      int
	bind      string
	router    *chi.Mux
	sseBroker *sse.Broker
	handlers  *handlers.Handlers
}

// NewServer wires the router over the already-constructed services. baseURL
// is the public origin used for OAuth redirects and webhook delivery.
func NewServer(port int, bind string, baseURL string, authService *auth.Service, projects *project.Manager, logs *monitor.LogStore, channels *monitor.ChannelManager, reconciler *monitor.Reconciler, sseBroker *sse.Broker) *Server {
	s := &Server{
		port:      port,
		bind:      bind,
		router:    chi.NewRouter(),
		sseBroker: sseBroker,
		handlers:  handlers.New(authService, projects, logs, channels, reconciler, sseBroker, baseURL),
	}
	s.setupRoutes(authService)
	return s
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes(authService *auth.Service) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	// Timeout is applied per-group, not globally, so the SSE stream can stay
	// open indefinitely.

	h := s.handlers

	// SSE stream - long-lived, no timeout.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(authService))
		r.Get("/api/events", s.sseBroker.ServeHTTP)
	})

	// Public routes.
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Get("/auth/login", h.Login)
		r.Get("/auth/callback", h.Callback)
		r.Post("/auth/logout", h.Logout)

		// Push notifications authenticate by channel ID, not session.
		r.Post("/webhook/drive", h.DriveWebhook)
	})

	// Session-authenticated API.
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Use(middleware.SessionAuth(authService))

		r.Get("/api/me", h.Me)

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", h.ProjectList)
			r.Post("/", h.ProjectCreate)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", h.ProjectGet)
				r.Delete("/", h.ProjectDelete)
				r.Get("/hierarchy", h.ProjectHierarchy)
				r.Get("/changes", h.ProjectChanges)
				r.Post("/poll", h.ProjectPoll)
				r.Post("/watch", h.WatchStart)
				r.Delete("/watch", h.WatchStop)
			})
		})

		r.Get("/api/files/{fileID}", h.FileGet)
	})

	// Uploads get a longer timeout than the rest of the API.
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(10 * time.Minute))
		r.Use(middleware.SessionAuth(authService))
		r.Post("/api/upload", h.Upload)
	})
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections;
		// the chi timeout middleware protects regular requests.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop the SSE broker first so client connections close cleanly.
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
