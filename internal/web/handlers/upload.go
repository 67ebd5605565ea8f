package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Upload creates a file in a Drive folder from a multipart form. Fields:
// "file" (the content) and "folderId" (destination folder).
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.jsonError(w, "file too large or malformed form", http.StatusRequestEntityTooLarge)
		return
	}

	folderID := r.FormValue("folderId")
	if folderID == "" {
		h.jsonError(w, "missing folderId", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.jsonError(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

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

	mimeType := header.Header.Get("Content-Type")
	uploaded, err := client.Upload(r.Context(), folderID, header.Filename, mimeType, file)
	if err != nil {
		log.Error().Err(err).Str("folder_id", folderID).Str("name", header.Filename).Msg("Upload failed")
		h.jsonError(w, "upload failed", http.StatusBadGateway)
		return
	}

	log.Info().Str("file_id", uploaded.ID).Str("name", uploaded.Name).Msg("File uploaded")
	h.writeJSON(w, http.StatusCreated, uploaded)
}
