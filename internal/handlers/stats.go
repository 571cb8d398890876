package handlers

import (
	"errors"
	"net/http"

	"github.com/sdko-org/photo-insights/internal/storage"
)

type statsResponse struct {
	TotalRecognitions int    `json:"totalRecognitions"`
	Container         string `json:"container"`
	ComputedAt        string `json:"computedAt"`
}

func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	const op = "stats"
	const fallback = "Unable to compute recognition stats."

	if err := h.requireStorage(); err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	container := h.cfg.Storage.MetadataContainer
	objects, err := h.storage.List(r.Context(), container)
	if err != nil && !errors.Is(err, storage.ErrContainerNotFound) {
		h.fail(w, op, err, fallback)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalRecognitions: len(objects),
		Container:         container,
		ComputedAt:        h.now().UTC().Format(timestampLayout),
	})
}
