package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sdko-org/photo-insights/internal/config"
	"github.com/sirupsen/logrus"
)

// S3Storage maps containers onto S3 buckets.
type S3Storage struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	signable bool
	log      *logrus.Entry
}

func NewS3Storage(logger *logrus.Logger, cfg config.StorageConfig) (*S3Storage, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(cfg.S3Region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.S3AccessKey, cfg.S3SecretKey, "")
	}
	if cfg.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.S3Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("aws session init failed: %w", err)
	}

	return &S3Storage{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		signable: awsConfig.Credentials != nil,
		log:      logger.WithField("component", "s3_storage"),
	}, nil
}

func (s *S3Storage) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(container),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) &&
			(aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou || aerr.Code() == s3.ErrCodeBucketAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", container, err)
	}
	return nil
}

func (s *S3Storage) Put(ctx context.Context, container, name string, content []byte, contentType string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(container),
		Key:         aws.String(name),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

func (s *S3Storage) Get(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, translateS3Error(err, "s3 download failed")
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (s *S3Storage) List(ctx context.Context, container string) ([]Object, error) {
	var objects []Object
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(container),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, item := range page.Contents {
			objects = append(objects, Object{
				Name:         aws.StringValue(item.Key),
				LastModified: aws.TimeValue(item.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, translateS3Error(err, "s3 list failed")
	}
	return objects, nil
}

func (s *S3Storage) ObjectURL(container, name string) string {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	if err := req.Build(); err != nil {
		s.log.WithError(err).Warn("Failed to build object URL")
		return ""
	}
	return req.HTTPRequest.URL.String()
}

func (s *S3Storage) SignedURL(_ context.Context, container, name string, expiry time.Duration) (string, error) {
	if !s.signable {
		return "", ErrNoCredential
	}
	if expiry <= 0 {
		expiry = DefaultSignedURLExpiry
	}

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(name),
	})
	signed, err := req.Presign(expiry)
	if err != nil {
		return "", fmt.Errorf("s3 presign failed: %w", err)
	}
	return signed, nil
}

func translateS3Error(err error, msg string) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket:
			return ErrContainerNotFound
		case s3.ErrCodeNoSuchKey:
			return ErrNotFound
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
