package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccountKey       = "C2FhYWEwMTIzNDU2Nzg5MDEyMzQ1Njc4OTA="
	testConnectionString = "DefaultEndpointsProtocol=https;AccountName=account;AccountKey=" + testAccountKey + ";EndpointSuffix=core.windows.net"
)

func TestSignReadURLWithoutCredential(t *testing.T) {
	_, err := SignReadURL("https://example.com/blob", "c", "blob", nil, 10*time.Minute, time.Now())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestSignReadURL(t *testing.T) {
	cred, err := azblob.NewSharedKeyCredential("account", testAccountKey)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signed, err := SignReadURL("https://example.com/blob", "c", "blob", cred, 10*time.Minute, now)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(signed, "https://example.com/blob?"))

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	q := parsed.Query()
	assert.NotEmpty(t, q.Get("sig"))
	assert.Equal(t, "r", q.Get("sp"))
	assert.Equal(t, "https", q.Get("spr"))
	assert.Equal(t, "2024-03-01T11:55:00Z", q.Get("st"))
	assert.Equal(t, "2024-03-01T12:10:00Z", q.Get("se"))
}

func TestSignReadURLDefaultExpiry(t *testing.T) {
	cred, err := azblob.NewSharedKeyCredential("account", testAccountKey)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	signed, err := SignReadURL("https://example.com/blob", "c", "blob", cred, 0, now)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T13:00:00Z", parsed.Query().Get("se"))
}

func TestSharedKeyFromConnectionString(t *testing.T) {
	cred, err := SharedKeyFromConnectionString(testConnectionString)
	require.NoError(t, err)
	assert.Equal(t, "account", cred.AccountName())

	_, err = SharedKeyFromConnectionString("BlobEndpoint=https://account.blob.core.windows.net/;SharedAccessSignature=sv=2021&sig=abc")
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestParseConnectionStringKeepsPadding(t *testing.T) {
	fields := parseConnectionString(testConnectionString)
	assert.Equal(t, testAccountKey, fields["AccountKey"])
	assert.Equal(t, "core.windows.net", fields["EndpointSuffix"])
}

func TestAzureStorageURLs(t *testing.T) {
	s, err := NewAzureStorage(logrus.New(), testConnectionString)
	require.NoError(t, err)

	objectURL := s.ObjectURL("uploads", "abc-photo.jpg")
	assert.Equal(t, "https://account.blob.core.windows.net/uploads/abc-photo.jpg", objectURL)

	signed, err := s.SignedURL(context.Background(), "uploads", "abc-photo.jpg", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, objectURL+"?"))
	assert.Contains(t, signed, "sig=")
}

func TestNewAzureStorageRequiresConnectionString(t *testing.T) {
	_, err := NewAzureStorage(logrus.New(), "")
	assert.Error(t, err)
}
