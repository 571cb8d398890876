package handlers

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/sdko-org/photo-insights/internal/cache"
	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sdko-org/photo-insights/internal/storage"
	"github.com/sdko-org/photo-insights/internal/vision"
	"github.com/sirupsen/logrus"
)

var safeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Analyzer runs image analysis on raw image bytes.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, contentType string) (*vision.Analysis, error)
}

// APIHandler serves the upload, recent and stats endpoints. storage and
// analyzer are nil when their settings are missing; the affected endpoints
// then answer 500.
type APIHandler struct {
	cfg      *config.Config
	storage  storage.Storage
	analyzer Analyzer
	recent   *cache.RecentCache
	log      *logrus.Entry
	now      func() time.Time
}

func NewAPIHandler(logger *logrus.Logger, cfg *config.Config, store storage.Storage, analyzer Analyzer, recent *cache.RecentCache) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		storage:  store,
		analyzer: analyzer,
		recent:   recent,
		log:      logger.WithField("component", "api_handler"),
		now:      time.Now,
	}
}

func (h *APIHandler) requireStorage() error {
	if h.storage == nil {
		return &ConfigError{Message: "Missing " + h.cfg.Storage.MissingSetting() + " configuration value."}
	}
	return nil
}

func (h *APIHandler) requireAnalyzer() error {
	if h.analyzer == nil {
		return &ConfigError{Message: "Missing Azure Vision configuration. Set AZURE_VISION_ENDPOINT and AZURE_VISION_KEY."}
	}
	return nil
}

// fail logs err and writes the single error response for the request.
func (h *APIHandler) fail(w http.ResponseWriter, op string, err error, fallback string) {
	status, msg := classify(err, fallback)

	entry := h.log.WithFields(logrus.Fields{
		"operation": op,
		"status":    status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	writeError(w, status, msg)
}

func safeFilename(name string) string {
	return safeFilenameChars.ReplaceAllString(name, "_")
}
