package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RegisterRoutes mounts the API under /api. Upload and recent sit behind the
// API key gate; health and stats stay open.
func RegisterRoutes(r *mux.Router, logger *logrus.Logger, h *APIHandler, apiKey string) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", HandleHealth).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)

	secured := api.NewRoute().Subrouter()
	secured.Use(APIKeyMiddleware(logger, apiKey))
	secured.HandleFunc("/upload-and-analyze", h.UploadAndAnalyze).Methods(http.MethodPost)
	secured.HandleFunc("/recent", h.Recent).Methods(http.MethodGet)
}
