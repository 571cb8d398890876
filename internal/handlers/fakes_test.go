package handlers

import (
	"context"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sdko-org/photo-insights/internal/cache"
	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sdko-org/photo-insights/internal/storage"
	"github.com/sdko-org/photo-insights/internal/vision"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

type memObject struct {
	content     []byte
	contentType string
	modified    time.Time
}

// memStore is an in-memory storage.Storage that counts calls.
type memStore struct {
	mu           sync.Mutex
	containers   map[string]map[string]memObject
	ensured      map[string]int
	puts         int
	gets         int
	lists        int
	signed       int
	noCredential bool
	seq          int
}

func newMemStore() *memStore {
	return &memStore{
		containers: make(map[string]map[string]memObject),
		ensured:    make(map[string]int),
	}
}

func (s *memStore) EnsureContainer(_ context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured[container]++
	if _, ok := s.containers[container]; !ok {
		s.containers[container] = make(map[string]memObject)
	}
	return nil
}

func (s *memStore) Put(_ context.Context, container, name string, content []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.seq++
	if _, ok := s.containers[container]; !ok {
		return storage.ErrContainerNotFound
	}
	s.containers[container][name] = memObject{
		content:     append([]byte(nil), content...),
		contentType: contentType,
		modified:    time.Unix(int64(1000+s.seq), 0),
	}
	return nil
}

// seed writes an object directly with an explicit modification time.
func (s *memStore) seed(container, name string, content []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[container]; !ok {
		s.containers[container] = make(map[string]memObject)
	}
	s.containers[container][name] = memObject{content: content, contentType: "application/json", modified: modified}
}

func (s *memStore) Get(_ context.Context, container, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	objects, ok := s.containers[container]
	if !ok {
		return nil, storage.ErrContainerNotFound
	}
	obj, ok := objects[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return obj.content, nil
}

func (s *memStore) List(_ context.Context, container string) ([]storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	objects, ok := s.containers[container]
	if !ok {
		return nil, storage.ErrContainerNotFound
	}
	out := make([]storage.Object, 0, len(objects))
	for name, obj := range objects {
		out = append(out, storage.Object{Name: name, LastModified: obj.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) ObjectURL(container, name string) string {
	return "https://account.blob.core.windows.net/" + container + "/" + name
}

func (s *memStore) SignedURL(_ context.Context, container, name string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noCredential {
		return "", storage.ErrNoCredential
	}
	s.signed++
	return s.ObjectURL(container, name) + "?sp=r&sig=test", nil
}

func (s *memStore) objectNames(container string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.containers[container] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, image []byte, contentType string) (*vision.Analysis, error) {
	args := m.Called(ctx, image, contentType)
	analysis, _ := args.Get(0).(*vision.Analysis)
	return analysis, args.Error(1)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	cfg      *config.Config
	store    *memStore
	analyzer *mockAnalyzer
	clock    *fakeClock
	handler  *APIHandler
	router   *mux.Router
}

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			Backend:           config.BackendAzure,
			ConnectionString:  "AccountName=account;AccountKey=a2V5",
			ImagesContainer:   "uploads",
			MetadataContainer: "analysis-metadata",
		},
		Vision:            config.VisionConfig{Endpoint: "https://vision.example.com", Key: "key"},
		RecentCacheTTLMs:  60000,
		MaxImageSizeBytes: 6 * 1024 * 1024,
		SASExpiry:         time.Hour,
	}
}

// newTestEnv wires an APIHandler over fakes. mutate may adjust the config
// before the handler is built.
func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	env := &testEnv{
		cfg:      cfg,
		store:    newMemStore(),
		analyzer: &mockAnalyzer{},
		clock:    &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	recent := cache.NewRecentCache(cfg.RecentCacheTTL()).WithClock(env.clock.Now)
	env.handler = NewAPIHandler(logger, cfg, env.store, env.analyzer, recent)
	env.handler.now = env.clock.Now

	env.router = mux.NewRouter()
	RegisterRoutes(env.router, logger, env.handler, cfg.APIKey)
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
