package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSignedURLExpiry is used when no expiry is configured.
	DefaultSignedURLExpiry = 60 * time.Minute
	// clockSkew backdates the start of every signed URL.
	clockSkew = 5 * time.Minute
)

var (
	ErrNoCredential      = errors.New("storage credential not available; ensure a shared key connection string or access keys are configured")
	ErrContainerNotFound = errors.New("container not found")
	ErrNotFound          = errors.New("object not found")
)

// Object describes a stored object as returned by List.
type Object struct {
	Name         string
	LastModified time.Time
}

type Storage interface {
	EnsureContainer(ctx context.Context, container string) error
	Put(ctx context.Context, container, name string, content []byte, contentType string) error
	Get(ctx context.Context, container, name string) ([]byte, error)
	List(ctx context.Context, container string) ([]Object, error)
	ObjectURL(container, name string) string
	SignedURL(ctx context.Context, container, name string, expiry time.Duration) (string, error)
}

// New builds the backend selected by cfg.Backend.
func New(logger *logrus.Logger, cfg config.StorageConfig) (Storage, error) {
	var (
		store Storage
		err   error
	)
	switch cfg.Backend {
	case config.BackendS3:
		store, err = NewS3Storage(logger, cfg)
	case config.BackendMinio:
		store, err = NewMinioStorage(logger, cfg)
	case config.BackendAzure:
		store, err = NewAzureStorage(logger, cfg.ConnectionString)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
