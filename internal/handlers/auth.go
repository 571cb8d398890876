package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	apiKeyHeader = "X-Api-Key"
	apiKeyQuery  = "api_key"
)

// EnsureAuthorized checks the shared API key. An empty apiKey disables the
// check. Header names are matched case-insensitively.
func EnsureAuthorized(r *http.Request, apiKey string) error {
	if apiKey == "" {
		return nil
	}

	provided := r.Header.Get(apiKeyHeader)
	if provided == "" {
		provided = r.URL.Query().Get(apiKeyQuery)
	}

	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
		return &UnauthorizedError{Message: "Invalid or missing API key."}
	}
	return nil
}

func APIKeyMiddleware(logger *logrus.Logger, apiKey string) func(http.Handler) http.Handler {
	logEntry := logger.WithField("component", "auth_gate")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := EnsureAuthorized(r, apiKey); err != nil {
				logEntry.WithFields(logrus.Fields{
					"path":      r.URL.Path,
					"client_ip": getClientIP(r),
				}).Warn("Rejected request without valid API key")
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
