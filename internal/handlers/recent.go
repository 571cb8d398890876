package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sdko-org/photo-insights/internal/models"
	"github.com/sdko-org/photo-insights/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	defaultRecentLimit = 5
	minRecentLimit     = 1
	maxRecentLimit     = 50
)

var leadingInt = regexp.MustCompile(`^[+-]?[0-9]+`)

type recentResponse struct {
	Items []models.RecentItem `json:"items"`
}

func (h *APIHandler) Recent(w http.ResponseWriter, r *http.Request) {
	const op = "recent"
	const fallback = "Unable to load recent analyses."

	limit := parseLimit(r.URL.Query().Get("limit"))

	if err := h.requireStorage(); err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	if items, ok := h.recent.Get(limit); ok {
		h.log.WithFields(logrus.Fields{
			"operation": op,
			"limit":     limit,
			"source":    "cache",
		}).Debug("Serving recent analyses")
		writeJSON(w, http.StatusOK, recentResponse{Items: items})
		return
	}

	items, err := h.loadRecent(r.Context(), limit)
	if err != nil {
		h.fail(w, op, err, fallback)
		return
	}
	h.recent.Store(items)

	h.log.WithFields(logrus.Fields{
		"operation": op,
		"limit":     limit,
		"count":     len(items),
		"source":    "storage",
	}).Debug("Serving recent analyses")
	writeJSON(w, http.StatusOK, recentResponse{Items: items})
}

// loadRecent reads up to 2*limit of the newest metadata records and returns
// the first limit that parse.
func (h *APIHandler) loadRecent(ctx context.Context, limit int) ([]models.RecentItem, error) {
	metadata := h.cfg.Storage.MetadataContainer
	log := h.log.WithFields(logrus.Fields{"operation": "recent", "container": metadata})

	objects, err := h.storage.List(ctx, metadata)
	if err != nil && !errors.Is(err, storage.ErrContainerNotFound) {
		return nil, err
	}

	candidates := make([]storage.Object, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, metadataSuffix) {
			candidates = append(candidates, obj)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].LastModified.After(candidates[j].LastModified)
	})
	if len(candidates) > limit*2 {
		candidates = candidates[:limit*2]
	}

	items := make([]models.RecentItem, 0, limit)
	for _, obj := range candidates {
		raw, err := h.storage.Get(ctx, metadata, obj.Name)
		if errors.Is(err, storage.ErrNotFound) {
			log.WithField("blob", obj.Name).Warn("Metadata record disappeared")
			continue
		}
		if err != nil {
			return nil, err
		}

		var record models.Recognition
		if err := json.Unmarshal(raw, &record); err != nil || record.BlobName == "" {
			log.WithField("blob", obj.Name).WithError(err).Warn("Skipping malformed metadata record")
			continue
		}

		sasURL, err := h.storage.SignedURL(ctx, h.cfg.Storage.ImagesContainer, record.BlobName, h.cfg.SASExpiry)
		if err != nil {
			return nil, err
		}

		items = append(items, toRecentItem(record, sasURL))
		if len(items) == limit {
			break
		}
	}

	return items, nil
}

func toRecentItem(record models.Recognition, sasURL string) models.RecentItem {
	id := record.ID
	if id == "" {
		id = record.BlobName
	}
	objects := record.Objects
	if objects == nil {
		objects = []models.Label{}
	}

	return models.RecentItem{
		ID:                id,
		AnalyzedAt:        record.AnalyzedAt,
		BlobName:          record.BlobName,
		FileName:          record.FileName,
		Objects:           objects,
		Caption:           record.Caption,
		CaptionConfidence: record.CaptionConfidence,
		SASURL:            sasURL,
	}
}

// parseLimit reads the leading integer of the limit query value, so "10abc"
// is 10 and "3.7" is 3. Missing, non-numeric or zero values fall back to the
// default; the result is clamped to [1, 50].
func parseLimit(raw string) int {
	digits := leadingInt.FindString(strings.TrimSpace(raw))
	limit, err := strconv.Atoi(digits)
	switch {
	case errors.Is(err, strconv.ErrRange):
		if strings.HasPrefix(digits, "-") {
			return minRecentLimit
		}
		return maxRecentLimit
	case err != nil || limit == 0:
		limit = defaultRecentLimit
	}
	if limit < minRecentLimit {
		return minRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
