package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/monitor"
	"github.com/drivescope/drivescope/internal/web/middleware"
)

// ProjectChanges returns a project's change log, newest first. ?filter=
// narrows by change type (upload/change/delete), ?q= searches file name and
// owner. Log read failures surface as an empty list, never an error.
func (h *Handlers) ProjectChanges(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	proj, err := h.projects.Get(session.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.jsonError(w, "project not found", http.StatusNotFound)
		return
	}

	events := h.logs.Load(proj.ID)
	if filter := r.URL.Query().Get("filter"); filter != "" {
		events = monitor.Filter(events, monitor.ChangeType(filter))
	}
	events = monitor.Search(events, r.URL.Query().Get("q"))

	h.writeJSON(w, http.StatusOK, events)
}

// ProjectPoll runs one reconciliation for a project on demand and returns
// the events it produced.
func (h *Handlers) ProjectPoll(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	proj, err := h.projects.Get(session.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.jsonError(w, "project not found", http.StatusNotFound)
		return
	}

	result, err := h.reconciler.PollOnce(r.Context(), proj.ID)
	if err != nil {
		if status, ok := authStatus(err); ok {
			h.jsonError(w, "sign-in required", status)
			return
		}
		log.Error().Err(err).Str("project_id", proj.ID).Msg("Manual poll failed")
		h.jsonError(w, "poll failed", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
