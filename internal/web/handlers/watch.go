package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/drivescope/drivescope/internal/monitor"
	"github.com/drivescope/drivescope/internal/web/middleware"
	"github.com/drivescope/drivescope/internal/web/sse"
)

// WatchStart registers a webhook channel for a project's folder. An existing
// channel for the project is stopped first so at most one stays live.
func (h *Handlers) WatchStart(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	proj, err := h.projects.Get(session.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.jsonError(w, "project not found", http.StatusNotFound)
		return
	}

	for _, existing := range h.channels.ChannelsForProject(proj.ID) {
		if err := h.channels.StopWatch(r.Context(), existing.ChannelID); err != nil {
			log.Warn().Err(err).Str("channel_id", existing.ChannelID).Msg("Failed to stop superseded channel")
		}
	}

	channel, err := h.channels.StartWatch(r.Context(), session.UserID, proj.ID, proj.FolderID, h.webhookURL())
	if err != nil {
		if status, ok := authStatus(err); ok {
			h.jsonError(w, "sign-in required", status)
			return
		}
		log.Error().Err(err).Str("project_id", proj.ID).Msg("Watch registration failed")
		h.jsonError(w, "watch registration failed", http.StatusBadGateway)
		return
	}

	proj.ChannelID = channel.ChannelID
	proj.ChannelResourceID = channel.ResourceID
	proj.ChannelExpiration = channel.Expiration
	if err := h.projects.Update(proj); err != nil {
		log.Warn().Err(err).Str("project_id", proj.ID).Msg("Failed to record channel on project")
	}

	h.sseBroker.Broadcast(sse.Event{Type: sse.EventWatchStarted, Data: channel})
	h.writeJSON(w, http.StatusCreated, channel)
}

// WatchStop stops the project's webhook channel. Stopping a project with no
// tracked channel returns 404.
func (h *Handlers) WatchStop(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	proj, err := h.projects.Get(session.UserID, chi.URLParam(r, "projectID"))
	if err != nil {
		h.jsonError(w, "project not found", http.StatusNotFound)
		return
	}

	channels := h.channels.ChannelsForProject(proj.ID)
	if len(channels) == 0 {
		h.jsonError(w, "no active watch channel", http.StatusNotFound)
		return
	}

	for _, channel := range channels {
		if err := h.channels.StopWatch(r.Context(), channel.ChannelID); err != nil {
			if errors.Is(err, monitor.ErrChannelNotFound) {
				h.jsonError(w, "no active watch channel", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("channel_id", channel.ChannelID).Msg("Failed to stop channel")
			h.jsonError(w, "failed to stop watch channel", http.StatusBadGateway)
			return
		}
	}

	proj.ChannelID = ""
	proj.ChannelResourceID = ""
	proj.ChannelExpiration = 0
	if err := h.projects.Update(proj); err != nil {
		log.Warn().Err(err).Str("project_id", proj.ID).Msg("Failed to clear channel on project")
	}

	h.sseBroker.Broadcast(sse.Event{Type: sse.EventWatchStopped, Data: map[string]string{"projectId": proj.ID}})
	h.jsonSuccess(w, "watch stopped")
}
