// Package blobstore stores uploaded prescription images. Uploads are
// content-sniffed, size-limited and hashed before they reach a backend;
// the Postgres backend is used in production and the in-memory one in
// tests and development.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medconnect/medconnect/internal/platform/apperr"
)

// MaxImageSize is the largest accepted upload in bytes (5 MB).
const MaxImageSize = 5 * 1024 * 1024

// AllowedContentTypes lists the sniffed MIME types accepted as images.
var AllowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Metadata describes a stored upload.
type Metadata struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
}

// Blob is an upload together with its content.
type Blob struct {
	Metadata
	Content []byte
}

// Store is a storage backend. Put receives an already validated blob.
type Store interface {
	Put(ctx context.Context, b *Blob) error
	Get(ctx context.Context, id uuid.UUID) (*Blob, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Metadata, int, error)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

// Images validates uploads and hands them to a Store.
type Images struct {
	store Store
	now   func() time.Time
}

func NewImages(store Store) *Images {
	return &Images{store: store, now: time.Now}
}

// Upload reads content, rejects anything that is not an image or exceeds
// MaxImageSize, and stores it for ownerID.
func (s *Images) Upload(ctx context.Context, ownerID uuid.UUID, fileName string, content io.Reader) (*Metadata, error) {
	fileName = path.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, apperr.Validation("invalid upload", map[string]string{"file": "file name is required"})
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, apperr.Validation("invalid upload", map[string]string{"file": "file is empty"})
	case len(data) > MaxImageSize:
		return nil, apperr.Validation("invalid upload", map[string]string{"file": "file exceeds 5 MB"})
	}

	contentType := http.DetectContentType(data)
	if !AllowedContentTypes[contentType] {
		return nil, apperr.Validation("invalid upload", map[string]string{"file": "unsupported image type " + contentType})
	}

	sum := sha256.Sum256(data)
	b := &Blob{
		Metadata: Metadata{
			ID:          uuid.New(),
			OwnerID:     ownerID,
			FileName:    fileName,
			ContentType: contentType,
			Size:        int64(len(data)),
			Hash:        hex.EncodeToString(sum[:]),
			CreatedAt:   s.now().UTC(),
		},
		Content: data,
	}
	if err := s.store.Put(ctx, b); err != nil {
		return nil, err
	}
	meta := b.Metadata
	return &meta, nil
}

// Open returns the upload content as a reader.
func (s *Images) Open(ctx context.Context, id uuid.UUID) (io.Reader, *Metadata, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	meta := b.Metadata
	return bytes.NewReader(b.Content), &meta, nil
}

// Delete removes an upload. Only its owner may delete it.
func (s *Images) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if b.OwnerID != ownerID {
		return apperr.Forbidden("only the uploader can delete this file")
	}
	return s.store.Delete(ctx, id)
}

func (s *Images) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Metadata, int, error) {
	return s.store.ListByOwner(ctx, ownerID, limit, offset)
}
