package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"contactdesk/internal/media"
)

// Me returns the authenticated account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(account))
}

// Avatar replaces the authenticated account's avatar with an uploaded image.
// The form field is named "file"; re-uploads overwrite the previous object.
func (h *Handler) Avatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, r, "PATCH")
		return
	}
	account, ok := h.requireAccount(w, r)
	if !ok {
		return
	}
	if h.Media == nil || !h.Media.Enabled() {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("avatar uploads are not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarBytes())
	if err := r.ParseMultipartForm(h.maxAvatarBytes()); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	contentType, err := media.DetectImageType(data)
	if errors.Is(err, media.ErrUnsupportedImage) {
		writeError(w, http.StatusUnsupportedMediaType, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	url, err := h.Media.Upload(r.Context(), media.AvatarKey(account.ID), contentType, bytes.NewReader(data))
	if err != nil {
		h.logger().Error("avatar upload failed", "error", err, "account", account.ID)
		writeError(w, http.StatusBadGateway, fmt.Errorf("avatar upload failed"))
		return
	}

	updated, err := h.Store.SetAvatarURL(r.Context(), account.ID, url)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(updated))
}
