package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// DriveWebhook receives push notifications from the upstream API. The
// payload body carries nothing useful; routing state lives in headers. A
// "sync" message confirms channel registration and is acknowledged without
// action; a "change" message kicks the owning project's reconciler, so the
// webhook and timer paths share one reconciliation code path.
func (h *Handlers) DriveWebhook(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-Id")
	resourceState := r.Header.Get("X-Goog-Resource-State")

	if channelID == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch resourceState {
	case "sync":
		log.Debug().Str("channel_id", channelID).Msg("Webhook sync acknowledged")
	case "change", "update", "add", "remove", "trash", "untrash":
		projectID := h.channels.ProjectForChannel(channelID)
		if projectID == "" {
			log.Debug().Str("channel_id", channelID).Msg("Webhook for unknown channel ignored")
			break
		}
		log.Debug().Str("channel_id", channelID).Str("project_id", projectID).Str("state", resourceState).Msg("Webhook received")
		h.reconciler.Kick(projectID)
	default:
		log.Debug().Str("channel_id", channelID).Str("state", resourceState).Msg("Webhook with unhandled state ignored")
	}

	w.WriteHeader(http.StatusOK)
}
