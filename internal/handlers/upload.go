package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/sdko-org/photo-insights/internal/models"
	"github.com/sdko-org/photo-insights/internal/vision"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultFileName    = "upload.jpg"
	defaultContentType = "application/octet-stream"
	metadataSuffix     = ".json"
	timestampLayout    = "2006-01-02T15:04:05.000Z07:00"
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

type uploadRequest struct {
	FileName    string          `json:"fileName"`
	ContentType string          `json:"contentType"`
	Data        json.RawMessage `json:"data"`
}

type uploadResponse struct {
	ID          string         `json:"id"`
	BlobName    string         `json:"blobName"`
	BlobURL     string         `json:"blobUrl"`
	SASURL      string         `json:"sasUrl"`
	Description string         `json:"description"`
	Tags        []models.Label `json:"tags"`
	Objects     []models.Label `json:"objects"`
	AnalyzedAt  string         `json:"analyzedAt"`
}

// validatedUpload is an upload that passed every request check.
type validatedUpload struct {
	fileName    string
	contentType string
	image       []byte
}

func (h *APIHandler) UploadAndAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "upload_and_analyze"
	const fallback = "Unexpected server error."
	ctx := r.Context()

	h.log.WithField("operation", op).Debug("Request received")

	if err := h.requireStorage(); err != nil {
		h.fail(w, op, err, fallback)
		return
	}
	if err := h.requireAnalyzer(); err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	upload, err := h.validateUpload(w, r)
	if err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	images := h.cfg.Storage.ImagesContainer
	metadata := h.cfg.Storage.MetadataContainer

	g, gctx := errgroup.WithContext(ctx)
	for _, container := range []string{images, metadata} {
		container := container
		g.Go(func() error {
			return h.storage.EnsureContainer(gctx, container)
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	blobName := uuid.NewString() + "-" + safeFilename(upload.fileName)
	log := h.log.WithFields(logrus.Fields{
		"operation": op,
		"blob":      blobName,
		"bytes":     len(upload.image),
	})

	if err := h.storage.Put(ctx, images, blobName, upload.image, upload.contentType); err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	sasURL, err := h.storage.SignedURL(ctx, images, blobName, h.cfg.SASExpiry)
	if err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	analysis, err := h.analyzer.Analyze(ctx, upload.image, upload.contentType)
	if err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	record := newRecognition(analysis, blobName, images, upload, h.now().UTC().Format(timestampLayout))

	body, err := json.Marshal(record)
	if err != nil {
		h.fail(w, op, err, fallback)
		return
	}
	if err := h.storage.Put(ctx, metadata, blobName+metadataSuffix, body, "application/json"); err != nil {
		h.fail(w, op, err, fallback)
		return
	}

	log.WithFields(logrus.Fields{
		"id":   record.ID,
		"tags": len(record.Tags),
	}).Info("Image analyzed")

	writeJSON(w, http.StatusOK, uploadResponse{
		ID:          record.ID,
		BlobName:    blobName,
		BlobURL:     h.storage.ObjectURL(images, blobName),
		SASURL:      sasURL,
		Description: describe(analysis.FirstCaption()),
		Tags:        record.Tags,
		Objects:     record.Objects,
		AnalyzedAt:  record.AnalyzedAt,
	})
}

// validateUpload parses and checks the request body. It never touches
// storage.
func (h *APIHandler) validateUpload(w http.ResponseWriter, r *http.Request) (*validatedUpload, error) {
	maxBytes := h.cfg.MaxImageSizeBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*2+1<<20)

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, sizeError(maxBytes)
		}
		return nil, &ValidationError{Message: "Request body must be a JSON object."}
	}

	var data string
	if len(req.Data) == 0 || json.Unmarshal(req.Data, &data) != nil || data == "" {
		return nil, &ValidationError{Message: "Request body must include a base64 encoded image in the `data` field."}
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = defaultFileName
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	contentType = strings.ToLower(contentType)
	if !allowedContentTypes[contentType] {
		return nil, &ValidationError{Message: "Unsupported image content type."}
	}

	image, err := decodeImage(data)
	if err != nil {
		return nil, &ValidationError{Message: "Unable to decode image payload. Ensure the data is base64 encoded."}
	}
	if len(image) == 0 || int64(len(image)) > maxBytes {
		return nil, sizeError(maxBytes)
	}

	return &validatedUpload{
		fileName:    fileName,
		contentType: contentType,
		image:       image,
	}, nil
}

func sizeError(maxBytes int64) error {
	mb := math.Round(float64(maxBytes) / (1024 * 1024))
	return &ValidationError{Message: fmt.Sprintf("Image exceeds maximum size of %d MB or is empty.", int64(mb))}
}

// decodeImage strips an optional data URL prefix and decodes the base64
// payload, accepting padded, unpadded and URL-safe alphabets.
func decodeImage(data string) ([]byte, error) {
	if i := strings.LastIndex(data, ","); i >= 0 {
		data = data[i+1:]
	}
	data = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data)

	var lastErr error
	for _, enc := range base64Encodings {
		decoded, err := enc.DecodeString(data)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func newRecognition(analysis *vision.Analysis, blobName, container string, upload *validatedUpload, analyzedAt string) *models.Recognition {
	record := &models.Recognition{
		ID:          uuid.NewString(),
		BlobName:    blobName,
		Container:   container,
		ContentType: upload.contentType,
		FileName:    upload.fileName,
		Tags:        make([]models.Label, 0, len(analysis.Tags)),
		Objects:     make([]models.Label, 0, len(analysis.Objects)),
		AnalyzedAt:  analyzedAt,
	}

	if caption := analysis.FirstCaption(); caption != nil {
		text, confidence := caption.Text, caption.Confidence
		record.Caption = &text
		record.CaptionConfidence = &confidence
	}
	for _, tag := range analysis.Tags {
		record.Tags = append(record.Tags, models.Label{Name: tag.Name, Confidence: tag.Confidence})
	}
	for _, obj := range analysis.Objects {
		record.Objects = append(record.Objects, models.Label{Name: obj.Object, Confidence: obj.Confidence})
	}

	return record
}

func describe(caption *vision.Caption) string {
	if caption == nil {
		return "No description available."
	}
	return fmt.Sprintf("%s (%d%% confidence)", caption.Text, int(math.Round(caption.Confidence*100)))
}
