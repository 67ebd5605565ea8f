package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// FileGet returns a file's metadata and user-facing links. A trashed file
// reports 404: its links are dead from the user's perspective.
func (h *Handlers) FileGet(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

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

	links, err := client.FileLinks(r.Context(), fileID)
	if err != nil {
		log.Warn().Err(err).Str("file_id", fileID).Msg("File lookup failed")
		h.jsonError(w, "file not found", http.StatusNotFound)
		return
	}
	if links.Trashed {
		h.jsonError(w, "file not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, links)
}
