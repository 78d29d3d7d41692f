// Package storage defines the Storage interface that persists export artifacts, plus the
// registry that maps a backend name (local, s3, gcs, azure) to its constructor.
//
// Backends register themselves from init() in their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// cmd/server blank-imports every backend so the configured one is available.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"
)

// Sentinel errors shared by all backends
var (
	ErrNotFound = errors.New("object not found")

	// ErrSignedURLUnsupported means the backend cannot mint a URL the client can follow;
	// callers stream the object through Download instead.
	ErrSignedURLUnsupported = errors.New("backend does not issue signed URLs")
)

// Storage is implemented by every artifact backend
type Storage interface {
	// Upload stores body at objectPath and returns its size and SHA-256
	Upload(ctx context.Context, objectPath string, body io.Reader, opts UploadOptions) (*UploadResult, error)

	// Download opens the object for reading. Missing objects yield ErrNotFound.
	Download(ctx context.Context, objectPath string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// GetURL returns a time-limited download URL
	GetURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)

	// Exists reports whether the object is present
	Exists(ctx context.Context, objectPath string) (bool, error)

	// GetMetadata returns size, checksum and modification time without reading the body
	GetMetadata(ctx context.Context, objectPath string) (*FileMetadata, error)
}

// UploadOptions carries the HTTP attributes stored alongside the object so that a signed
// URL download arrives with the right type and filename.
type UploadOptions struct {
	Size               int64 // -1 when unknown
	ContentType        string
	ContentDisposition string
}

// UploadResult describes a stored object
type UploadResult struct {
	Path     string
	Size     int64
	Checksum string // hex SHA-256
}

// FileMetadata describes a stored object without its body
type FileMetadata struct {
	Path         string
	Size         int64
	Checksum     string
	ContentType  string
	LastModified time.Time
}

// ChecksumMetadataKey is the object metadata key holding the hex SHA-256
const ChecksumMetadataKey = "sha256"

// ExportPath lays out stored exports as exports/<yyyy>/<mm>/<id>/<filename>
func ExportPath(id, filename string, at time.Time) string {
	at = at.UTC()
	return path.Join("exports", fmt.Sprintf("%04d", at.Year()), fmt.Sprintf("%02d", int(at.Month())), id, filename)
}
