package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/sirupsen/logrus"
)

// AzureStorage keeps images and metadata in Azure Blob Storage containers.
type AzureStorage struct {
	client     *azblob.Client
	credential *azblob.SharedKeyCredential
	log        *logrus.Entry
	now        func() time.Time
}

func NewAzureStorage(logger *logrus.Logger, connectionString string) (*AzureStorage, error) {
	if connectionString == "" {
		return nil, errors.New("missing AZURE_STORAGE_CONNECTION_STRING configuration value")
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client init failed: %w", err)
	}

	log := logger.WithField("component", "azure_storage")

	// Connection strings holding a SAS token instead of an account key
	// can read and write but cannot sign new URLs.
	cred, err := SharedKeyFromConnectionString(connectionString)
	if err != nil {
		log.WithError(err).Warn("Shared key unavailable, signed URLs disabled")
	}

	return &AzureStorage{
		client:     client,
		credential: cred,
		log:        log,
		now:        time.Now,
	}, nil
}

func (s *AzureStorage) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", container, err)
	}
	return nil
}

func (s *AzureStorage) Put(ctx context.Context, container, name string, content []byte, contentType string) error {
	_, err := s.client.UploadBuffer(ctx, container, name, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	if err != nil {
		return fmt.Errorf("azure upload failed: %w", err)
	}
	return nil
}

func (s *AzureStorage) Get(ctx context.Context, container, name string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return nil, ErrContainerNotFound
		}
		return nil, fmt.Errorf("azure download failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (s *AzureStorage) List(ctx context.Context, container string) ([]Object, error) {
	var objects []Object

	pager := s.client.NewListBlobsFlatPager(container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if bloberror.HasCode(err, bloberror.ContainerNotFound) {
				return nil, ErrContainerNotFound
			}
			return nil, fmt.Errorf("azure list failed: %w", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			obj := Object{Name: *item.Name}
			if item.Properties != nil && item.Properties.LastModified != nil {
				obj.LastModified = *item.Properties.LastModified
			}
			objects = append(objects, obj)
		}
	}

	return objects, nil
}

func (s *AzureStorage) ObjectURL(container, name string) string {
	return s.client.ServiceClient().NewContainerClient(container).NewBlobClient(name).URL()
}

func (s *AzureStorage) SignedURL(_ context.Context, container, name string, expiry time.Duration) (string, error) {
	return SignReadURL(s.ObjectURL(container, name), container, name, s.credential, expiry, s.now())
}

// SignReadURL appends a read-only, HTTPS-only SAS to objectURL. The token is
// valid from five minutes before now until now+expiry.
func SignReadURL(objectURL, container, name string, cred *azblob.SharedKeyCredential, expiry time.Duration, now time.Time) (string, error) {
	if cred == nil {
		return "", ErrNoCredential
	}
	if expiry <= 0 {
		expiry = DefaultSignedURLExpiry
	}

	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-clockSkew).UTC(),
		ExpiryTime:    now.Add(expiry).UTC(),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: container,
		BlobName:      name,
	}.SignWithSharedKey(cred)
	if err != nil {
		return "", fmt.Errorf("sas signing failed: %w", err)
	}

	return objectURL + "?" + params.Encode(), nil
}

// SharedKeyFromConnectionString extracts the account name and key from an
// Azure storage connection string.
func SharedKeyFromConnectionString(connectionString string) (*azblob.SharedKeyCredential, error) {
	fields := parseConnectionString(connectionString)
	name, key := fields["AccountName"], fields["AccountKey"]
	if name == "" || key == "" {
		return nil, ErrNoCredential
	}
	return azblob.NewSharedKeyCredential(name, key)
}

func parseConnectionString(connectionString string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(connectionString, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			fields[kv[0]] = kv[1]
		}
	}
	return fields
}
