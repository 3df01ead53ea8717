// Package blobstore stores note attachments and issues the opaque
// descriptors the note layer embeds verbatim. It defines the BlobStore
// interface, an in-memory implementation suitable for testing and
// development, and Echo HTTP handlers for multipart upload and
// download.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinnotes/clinnotes/internal/platform/auth"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (100 MB).
const MaxFileSize = 100 * 1024 * 1024

// AllowedContentTypes lists common medical file MIME types.
var AllowedContentTypes = map[string]bool{
	"image/png":         true,
	"image/jpeg":        true,
	"image/dicom":       true,
	"application/pdf":   true,
	"application/dicom": true,
	"text/plain":        true,
	"application/json":  true,
}

// Descriptor identifies a stored blob. The note layer persists it
// unchanged and never opens the referenced object.
type Descriptor struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Upload(ctx context.Context, fileName, contentType, clinicID string, content io.Reader) (*Descriptor, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *Descriptor, error)
	Delete(ctx context.Context, id string) error
}

type storedBlob struct {
	descriptor Descriptor
	content    []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for
// testing and development.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

// Upload validates inputs, reads the content and returns a descriptor.
// The storage key is content-addressed inside the clinic's namespace.
func (s *InMemoryBlobStore) Upload(_ context.Context, fileName, contentType, clinicID string, content io.Reader) (*Descriptor, error) {
	if fileName == "" {
		return nil, ErrMissingFileName
	}
	if !AllowedContentTypes[contentType] {
		return nil, ErrInvalidContentType
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	d := Descriptor{
		ID:          uuid.NewString(),
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		StorageKey:  fmt.Sprintf("%s/%x", clinicID, h),
		UploadedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[d.ID] = &storedBlob{descriptor: d, content: data}
	s.mu.Unlock()

	out := d
	return &out, nil
}

// Download returns an io.ReadCloser over the blob content and its
// descriptor.
func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *Descriptor, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	d := blob.descriptor
	return io.NopCloser(bytes.NewReader(blob.content)), &d, nil
}

// Delete removes a blob by ID.
func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// BlobHandler provides Echo HTTP handlers for blob operations.
type BlobHandler struct {
	store BlobStore
}

// NewBlobHandler creates a new BlobHandler.
func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// RegisterRoutes mounts blob routes on the supplied Echo group.
func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/blobs", h.handleUpload)
	g.GET("/blobs/:id", h.handleDownload)
	g.DELETE("/blobs/:id", h.handleDelete)
}

// handleUpload accepts a multipart form with a single "file" part and
// responds with the attachment descriptor to embed in a note.
func (h *BlobHandler) handleUpload(c echo.Context) error {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "identity required")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "file is required"})
	}
	src, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open uploaded file"})
	}
	defer src.Close()

	d, err := h.store.Upload(c.Request().Context(), file.Filename, file.Header.Get("Content-Type"), id.ClinicID, src)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrMissingFileName):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvalidContentType):
			return c.JSON(http.StatusUnsupportedMediaType, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	rc, d, err := h.store.Download(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrBlobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "blob not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "download failed"})
	}
	defer rc.Close()
	return c.Stream(http.StatusOK, d.ContentType, rc)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	err := h.store.Delete(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrBlobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "blob not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
