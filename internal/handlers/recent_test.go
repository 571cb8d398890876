package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sdko-org/photo-insights/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecord(t *testing.T, env *testEnv, n int) {
	t.Helper()

	caption := fmt.Sprintf("caption %d", n)
	confidence := 0.5
	record := models.Recognition{
		ID:                fmt.Sprintf("id-%d", n),
		BlobName:          fmt.Sprintf("blob-%d.jpg", n),
		Container:         "uploads",
		ContentType:       "image/jpeg",
		FileName:          fmt.Sprintf("file-%d.jpg", n),
		Caption:           &caption,
		CaptionConfidence: &confidence,
		Objects:           []models.Label{{Name: "fish", Confidence: 0.9}},
		AnalyzedAt:        "2024-03-01T12:00:00.000Z",
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)

	env.store.seed("analysis-metadata", record.BlobName+".json", raw, time.Unix(int64(n)*60, 0))
}

func getRecent(t *testing.T, env *testEnv, query string) []models.RecentItem {
	t.Helper()

	rec := env.do(t, http.MethodGet, "/api/recent"+query, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp recentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Items
}

func ids(items []models.RecentItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestRecentNewestFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	for n := 1; n <= 4; n++ {
		seedRecord(t, env, n)
	}

	items := getRecent(t, env, "?limit=3")

	assert.Equal(t, []string{"id-4", "id-3", "id-2"}, ids(items))
	first := items[0]
	assert.Equal(t, "blob-4.jpg", first.BlobName)
	assert.Equal(t, "file-4.jpg", first.FileName)
	assert.Equal(t, "https://account.blob.core.windows.net/uploads/blob-4.jpg?sp=r&sig=test", first.SASURL)
	require.NotNil(t, first.Caption)
	assert.Equal(t, "caption 4", *first.Caption)
	assert.Equal(t, []models.Label{{Name: "fish", Confidence: 0.9}}, first.Objects)
}

func TestRecentDefaultLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	for n := 1; n <= 8; n++ {
		seedRecord(t, env, n)
	}

	items := getRecent(t, env, "")
	assert.Len(t, items, 5)
}

func TestRecentSkipsMalformedRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	seedRecord(t, env, 1)
	seedRecord(t, env, 2)
	env.store.seed("analysis-metadata", "broken.json", []byte("{not json"), time.Unix(1000, 0))
	env.store.seed("analysis-metadata", "empty.json", []byte(`{}`), time.Unix(999, 0))

	items := getRecent(t, env, "?limit=2")

	assert.Equal(t, []string{"id-2", "id-1"}, ids(items))
}

func TestRecentReadsAtMostTwiceTheLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	seedRecord(t, env, 1)
	env.store.seed("analysis-metadata", "broken.json", []byte("{not json"), time.Unix(1000, 0))
	env.store.seed("analysis-metadata", "empty.json", []byte(`{}`), time.Unix(999, 0))

	items := getRecent(t, env, "?limit=1")

	assert.Empty(t, items)
	assert.Equal(t, 2, env.store.gets)

	items = getRecent(t, env, "?limit=2")

	assert.Equal(t, []string{"id-1"}, ids(items))
	assert.Equal(t, 5, env.store.gets)
}

func TestRecentFallsBackToBlobNameForID(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.seed("analysis-metadata", "legacy.jpg.json", []byte(`{"blobName":"legacy.jpg","fileName":"legacy.jpg"}`), time.Unix(10, 0))

	items := getRecent(t, env, "?limit=1")

	require.Len(t, items, 1)
	assert.Equal(t, "legacy.jpg", items[0].ID)
	assert.Equal(t, []models.Label{}, items[0].Objects)
	assert.Nil(t, items[0].Caption)
}

func TestRecentServesFromCacheWithinTTL(t *testing.T) {
	env := newTestEnv(t, nil)
	for n := 1; n <= 3; n++ {
		seedRecord(t, env, n)
	}

	first := getRecent(t, env, "?limit=2")
	require.Equal(t, 1, env.store.lists)

	seedRecord(t, env, 9)
	env.clock.Advance(30 * time.Second)

	second := getRecent(t, env, "?limit=2")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.store.lists)

	smaller := getRecent(t, env, "?limit=1")
	assert.Equal(t, first[:1], smaller)
	assert.Equal(t, 1, env.store.lists)

	env.clock.Advance(31 * time.Second)

	refreshed := getRecent(t, env, "?limit=2")
	assert.Equal(t, 2, env.store.lists)
	assert.Equal(t, []string{"id-9", "id-3"}, ids(refreshed))
}

func TestRecentLargerLimitBypassesCache(t *testing.T) {
	env := newTestEnv(t, nil)
	for n := 1; n <= 5; n++ {
		seedRecord(t, env, n)
	}

	getRecent(t, env, "?limit=2")
	items := getRecent(t, env, "?limit=4")

	assert.Len(t, items, 4)
	assert.Equal(t, 2, env.store.lists)
}

func TestRecentMissingContainer(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/recent", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestRecentWithoutSigningCredential(t *testing.T) {
	env := newTestEnv(t, nil)
	seedRecord(t, env, 1)
	env.store.noCredential = true

	rec := env.do(t, http.MethodGet, "/api/recent", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeError(t, rec.Body.Bytes()), "storage credential not available")
}

func TestRecentRequiresAPIKey(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.APIKey = "secret"
	})
	seedRecord(t, env, 1)

	rec := env.do(t, http.MethodGet, "/api/recent", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/recent", "", map[string]string{"x-api-key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/recent?api_key=secret", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseLimit(t *testing.T) {
	tests := map[string]int{
		"":                      5,
		"abc":                   5,
		"0":                     5,
		"3":                     3,
		"-4":                    1,
		"50":                    50,
		"100":                   50,
		" 7 ":                   7,
		"1":                     1,
		"10abc":                 10,
		"3.7":                   3,
		"+6":                    6,
		"x5":                    5,
		"99999999999999999999":  50,
		"-99999999999999999999": 1,
	}
	for raw, want := range tests {
		assert.Equal(t, want, parseLimit(raw), "limit %q", raw)
	}
}
