package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/drive"
	"github.com/drivescope/drivescope/internal/project"
	"github.com/drivescope/drivescope/internal/web/middleware"
	"github.com/drivescope/drivescope/internal/web/sse"
)

// ProjectList returns the user's projects, optionally filtered by ?q=.
func (h *Handlers) ProjectList(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	projects := h.projects.Search(session.UserID, r.URL.Query().Get("q"))
	h.writeJSON(w, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name     string `json:"name"`
	DriveURL string `json:"driveUrl"`
}

// ProjectCreate registers a new watched folder and starts its polling loop.
func (h *Handlers) ProjectCreate(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	folderID := drive.FolderIDFromURL(req.DriveURL)
	if folderID == "" {
		h.jsonError(w, "driveUrl does not reference a folder", http.StatusBadRequest)
		return
	}

	proj, err := h.projects.Create(session.UserID, req.Name, req.DriveURL, folderID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create project")
		h.jsonError(w, "failed to create project", http.StatusInternalServerError)
		return
	}

	h.reconciler.AddProject(proj.ID)
	h.sseBroker.Broadcast(sse.Event{Type: sse.EventProjectCreated, Data: proj})
	h.writeJSON(w, http.StatusCreated, proj)
}

// ProjectGet returns one project owned by the user.
func (h *Handlers) ProjectGet(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	proj, err := h.projects.Get(session.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.jsonError(w, "project not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, proj)
}

// ProjectDelete removes a project and cascades: polling loop cancelled,
// webhook channels stopped best-effort, change log removed.
func (h *Handlers) ProjectDelete(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	projectID := chi.URLParam(r, "projectID")

	if err := h.projects.Delete(session.UserID, projectID); err != nil {
		if errors.Is(err, project.ErrNotFound) {
			h.jsonError(w, "project not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("project_id", projectID).Msg("Failed to delete project")
		h.jsonError(w, "failed to delete project", http.StatusInternalServerError)
		return
	}

	h.reconciler.RemoveProject(projectID)
	for _, channel := range h.channels.ChannelsForProject(projectID) {
		if err := h.channels.StopWatch(r.Context(), channel.ChannelID); err != nil {
			log.Warn().Err(err).Str("channel_id", channel.ChannelID).Msg("Failed to stop channel during project delete")
		}
	}
	if err := h.logs.Delete(projectID); err != nil {
		log.Warn().Err(err).Str("project_id", projectID).Msg("Failed to delete change log")
	}
	if err := h.projects.DeleteSnapshot(projectID); err != nil {
		log.Warn().Err(err).Str("project_id", projectID).Msg("Failed to delete hierarchy snapshot")
	}

	h.sseBroker.Broadcast(sse.Event{Type: sse.EventProjectDeleted, Data: map[string]string{"projectId": projectID}})
	h.jsonSuccess(w, "project deleted")
}
