package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sirupsen/logrus"
)

// MinioStorage maps containers onto MinIO buckets.
type MinioStorage struct {
	client   *minio.Client
	region   string
	signable bool
	log      *logrus.Entry
}

func NewMinioStorage(logger *logrus.Logger, cfg config.StorageConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init failed: %w", err)
	}

	return &MinioStorage{
		client:   client,
		region:   cfg.MinioRegion,
		signable: cfg.MinioAccessKey != "" && cfg.MinioSecretKey != "",
		log:      logger.WithField("component", "minio_storage"),
	}, nil
}

func (s *MinioStorage) EnsureContainer(ctx context.Context, container string) error {
	exists, err := s.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("bucket lookup %s: %w", container, err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, container, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", container, err)
	}
	s.log.WithField("bucket", container).Info("Created bucket")
	return nil
}

func (s *MinioStorage) Put(ctx context.Context, container, name string, content []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, container, name, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio upload failed: %w", err)
	}
	return nil
}

func (s *MinioStorage) Get(ctx context.Context, container, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err, "minio download failed")
	}
	defer obj.Close()

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateMinioError(err, "minio download failed")
	}
	return content, nil
}

func (s *MinioStorage) List(ctx context.Context, container string) ([]Object, error) {
	var objects []Object
	for item := range s.client.ListObjects(ctx, container, minio.ListObjectsOptions{Recursive: true}) {
		if item.Err != nil {
			return nil, translateMinioError(item.Err, "minio list failed")
		}
		objects = append(objects, Object{
			Name:         item.Key,
			LastModified: item.LastModified,
		})
	}
	return objects, nil
}

func (s *MinioStorage) ObjectURL(container, name string) string {
	endpoint := strings.TrimRight(s.client.EndpointURL().String(), "/")
	return endpoint + "/" + container + "/" + (&url.URL{Path: name}).EscapedPath()
}

func (s *MinioStorage) SignedURL(ctx context.Context, container, name string, expiry time.Duration) (string, error) {
	if !s.signable {
		return "", ErrNoCredential
	}
	if expiry <= 0 {
		expiry = DefaultSignedURLExpiry
	}

	signed, err := s.client.PresignedGetObject(ctx, container, name, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("minio presign failed: %w", err)
	}
	return signed.String(), nil
}

func translateMinioError(err error, msg string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket":
		return ErrContainerNotFound
	case "NoSuchKey":
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
