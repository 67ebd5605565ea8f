package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/auth"
	"github.com/drivescope/drivescope/internal/drive"
	"github.com/drivescope/drivescope/internal/monitor"
	"github.com/drivescope/drivescope/internal/project"
	"github.com/drivescope/drivescope/internal/web/middleware"
	"github.com/drivescope/drivescope/internal/web/sse"
)

// MaxUploadSize caps multipart upload requests.
const MaxUploadSize = 100 << 20 // 100 MB

// Handlers contains all HTTP handlers.
type Handlers struct {
	authService *auth.Service
	projects    *project.Manager
	logs        *monitor.LogStore
	channels    *monitor.ChannelManager
	reconciler  *monitor.Reconciler
	sseBroker   *sse.Broker
	baseURL     string
}

// New creates a new Handlers instance. baseURL is the public origin used to
// build the webhook address handed to the upstream API.
func New(authService *auth.Service, projects *project.Manager, logs *monitor.LogStore, channels *monitor.ChannelManager, reconciler *monitor.Reconciler, sseBroker *sse.Broker, baseURL string) *Handlers {
	return &Handlers{
		authService: authService,
		projects:    projects,
		logs:        logs,
		channels:    channels,
		reconciler:  reconciler,
		sseBroker:   sseBroker,
		baseURL:     baseURL,
	}
}

// webhookURL is the address the upstream API delivers push notifications to.
func (h *Handlers) webhookURL() string {
	return h.baseURL + "/webhook/drive"
}

// clientFor resolves a Drive client acting as the request's session user.
func (h *Handlers) clientFor(r *http.Request) (drive.Client, string, error) {
	session := middleware.SessionFromContext(r.Context())
	client, err := h.authService.ClientForUser(r.Context(), session.UserID)
	if err != nil {
		return nil, "", err
	}
	return client, session.UserID, nil
}

// writeJSON sends a JSON response.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// jsonError sends a JSON error response.
func (h *Handlers) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a JSON success response.
func (h *Handlers) jsonSuccess(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}
