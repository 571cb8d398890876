package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sdko-org/photo-insights/internal/storage"
	"github.com/sdko-org/photo-insights/internal/vision"
)

// ValidationError is a client-correctable problem with the request.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// ConfigError reports a missing or unusable server setting.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// classify maps an error onto a status code and the message shown to the
// client. fallback is used for unexpected errors.
func classify(err error, fallback string) (int, string) {
	var (
		validationErr   *ValidationError
		unauthorizedErr *UnauthorizedError
		configErr       *ConfigError
		statusErr       *vision.StatusError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message
	case errors.As(err, &unauthorizedErr):
		return http.StatusUnauthorized, unauthorizedErr.Message
	case errors.As(err, &configErr):
		return http.StatusInternalServerError, configErr.Message
	case errors.Is(err, storage.ErrNoCredential):
		return http.StatusInternalServerError, storage.ErrNoCredential.Error()
	case errors.As(err, &statusErr):
		return http.StatusInternalServerError, statusErr.Error()
	default:
		return http.StatusInternalServerError, fallback
	}
}
