// Package services coordinates work that spans several domain boundaries. ExportStore, for
// example, uploads a finished CSV artifact to object storage, records it in the export
// catalogue and hands back a time-limited download link.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/export"
	"github.com/aitool-portal/aitool-portal/internal/storage"
)

// DefaultSignedURLTTL applies when the configured TTL is not positive
const DefaultSignedURLTTL = 15 * time.Minute

// ErrChecksumMismatch means the backend stored different bytes than the artifact holds
var ErrChecksumMismatch = errors.New("stored export checksum mismatch")

// ArtifactCatalogue persists export catalogue rows
type ArtifactCatalogue interface {
	CreateExportArtifact(ctx context.Context, a *models.ExportArtifact) error
}

// ExportStore persists export artifacts to the configured storage backend
type ExportStore struct {
	storage     storage.Storage
	backendName string
	catalogue   ArtifactCatalogue
	ttl         time.Duration
	now         func() time.Time
}

// NewExportStore creates an ExportStore. backendName is recorded on each catalogue row.
func NewExportStore(backend storage.Storage, backendName string, catalogue ArtifactCatalogue, ttl time.Duration) *ExportStore {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return &ExportStore{
		storage:     backend,
		backendName: backendName,
		catalogue:   catalogue,
		ttl:         ttl,
		now:         time.Now,
	}
}

// StoredExport is the outcome of one storage delivery
type StoredExport struct {
	Artifact *models.ExportArtifact
	// URL is empty when the backend cannot sign URLs; clients use the download route
	URL string
}

// Sink returns an export.Sink that stores one artifact on behalf of requestedBy.
// After a successful Deliver, Result holds the catalogue row and link.
func (s *ExportStore) Sink(requestedBy string) *StorageSink {
	return &StorageSink{store: s, requestedBy: requestedBy}
}

// StorageSink delivers an artifact into an ExportStore
type StorageSink struct {
	store       *ExportStore
	requestedBy string
	Result      *StoredExport
}

// Deliver uploads the artifact, records it and mints a download URL. A catalogue failure
// removes the uploaded object so storage never holds unreferenced exports.
func (k *StorageSink) Deliver(ctx context.Context, a *export.Artifact) error {
	s := k.store
	id := uuid.New()
	createdAt := s.now().UTC()
	objectPath := storage.ExportPath(id.String(), a.Filename, createdAt)

	res, err := s.storage.Upload(ctx, objectPath, bytes.NewReader(a.Body), storage.UploadOptions{
		Size:               int64(len(a.Body)),
		ContentType:        a.ContentType,
		ContentDisposition: export.ContentDisposition(a.Filename),
	})
	if err != nil {
		return fmt.Errorf("failed to upload export: %w", err)
	}
	if res.Checksum != "" && res.Checksum != a.Checksum {
		s.discard(ctx, objectPath)
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, objectPath)
	}

	row := &models.ExportArtifact{
		ID:             id,
		Filename:       a.Filename,
		ContentType:    a.ContentType,
		StorageBackend: s.backendName,
		StoragePath:    objectPath,
		SizeBytes:      res.Size,
		Checksum:       a.Checksum,
		RowCount:       a.Rows,
		CreatedAt:      createdAt,
	}
	if k.requestedBy != "" {
		row.RequestedBy = &k.requestedBy
	}
	if err := s.catalogue.CreateExportArtifact(ctx, row); err != nil {
		s.discard(ctx, objectPath)
		return err
	}

	url, err := s.SignedURL(ctx, row)
	if err != nil && !errors.Is(err, storage.ErrSignedURLUnsupported) {
		return fmt.Errorf("failed to sign export URL: %w", err)
	}
	k.Result = &StoredExport{Artifact: row, URL: url}
	return nil
}

// SignedURL returns a time-limited link to a stored export
func (s *ExportStore) SignedURL(ctx context.Context, a *models.ExportArtifact) (string, error) {
	return s.storage.GetURL(ctx, a.StoragePath, s.ttl)
}

// Open streams a stored export from the backend
func (s *ExportStore) Open(ctx context.Context, a *models.ExportArtifact) (io.ReadCloser, error) {
	return s.storage.Download(ctx, a.StoragePath)
}

// TTL is the lifetime of signed URLs
func (s *ExportStore) TTL() time.Duration {
	return s.ttl
}

func (s *ExportStore) discard(ctx context.Context, objectPath string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), objectPath); err != nil {
		slog.ErrorContext(ctx, "failed to remove orphaned export object", "path", objectPath, "error", err)
	}
}
