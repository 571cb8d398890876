package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sirupsen/logrus"
)

const analyzePath = "/vision/v3.2/analyze?visualFeatures=Description,Tags,Objects"

type Caption struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type DetectedObject struct {
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// Analysis is the subset of the analyze response used by the service.
type Analysis struct {
	Description struct {
		Captions []Caption `json:"captions"`
	} `json:"description"`
	Tags    []Tag            `json:"tags"`
	Objects []DetectedObject `json:"objects"`
}

// FirstCaption returns the highest ranked caption, or nil.
func (a *Analysis) FirstCaption() *Caption {
	if len(a.Description.Captions) == 0 {
		return nil
	}
	return &a.Description.Captions[0]
}

// StatusError is returned when the vision endpoint answers with a
// non-success status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Azure Vision error (%d): %s", e.StatusCode, e.Message)
}

type Client struct {
	httpClient *http.Client
	endpoint   string
	key        string
	log        *logrus.Entry
}

type loggingTransport struct {
	log *logrus.Entry
}

func NewClient(logger *logrus.Logger, cfg config.VisionConfig) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &loggingTransport{log: logger.WithField("component", "vision_transport")},
		},
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		key:      strings.TrimSpace(cfg.Key),
		log:      logger.WithField("component", "vision_client"),
	}
}

// Analyze sends the raw image bytes to the analyze endpoint and decodes the
// description, tags and objects.
func (c *Client) Analyze(ctx context.Context, image []byte, contentType string) (*Analysis, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+analyzePath, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("vision request build failed: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).Error("Vision request failed")
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vision response read failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	analysis := &Analysis{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, analysis); err != nil {
			// Non-JSON success bodies are treated as an empty analysis.
			c.log.WithError(err).Warn("Vision returned non-JSON payload")
			analysis = &Analysis{}
		}
	}

	c.log.WithFields(logrus.Fields{
		"duration": time.Since(start),
		"tags":     len(analysis.Tags),
		"objects":  len(analysis.Objects),
	}).Debug("Vision analysis completed")
	return analysis, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return string(body)
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"host":   req.URL.Host,
	})

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}
