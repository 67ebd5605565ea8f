package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/drive"
	"github.com/drivescope/drivescope/internal/web/middleware"
)

// ProjectHierarchy returns the recursive folder tree of a project's watched
// folder, fetched fresh from the upstream API.
func (h *Handlers) ProjectHierarchy(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	proj, err := h.projects.Get(session.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.jsonError(w, "project not found", http.StatusNotFound)
		return
	}

	client, _, err := h.clientFor(r)
	if err != nil {
		if status, ok := authStatus(err); ok {
			h.jsonError(w, "sign-in required", status)
			return
		}
		log.Error().Err(err).Msg("Failed to build Drive client")
		h.jsonError(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	root, err := drive.NewFetcher(client).Hierarchy(r.Context(), proj.FolderID)
	if err != nil {
		if errors.Is(err, drive.ErrNotAFolder) {
			h.jsonError(w, "target is not a folder", http.StatusBadRequest)
			return
		}
		// Fall back to the last stored snapshot when the upstream is down.
		if cached, ok := h.projects.Snapshot(proj.ID); ok {
			log.Warn().Err(err).Str("project_id", proj.ID).Msg("Hierarchy fetch failed, serving cached snapshot")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
		log.Error().Err(err).Str("project_id", proj.ID).Msg("Hierarchy fetch failed")
		h.jsonError(w, "failed to fetch hierarchy", http.StatusBadGateway)
		return
	}

	if data, err := json.Marshal(root); err == nil {
		if err := h.projects.SaveSnapshot(proj.ID, data); err != nil {
			log.Warn().Err(err).Str("project_id", proj.ID).Msg("Failed to store hierarchy snapshot")
		}
	}
	h.writeJSON(w, http.StatusOK, root)
}
