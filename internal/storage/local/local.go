// Package local implements the filesystem storage backend. It suits development and
// single-node deployments; several replicas need a shared volume. It cannot mint signed
// URLs, so downloads are streamed by the API.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/storage"
	"github.com/aitool-portal/aitool-portal/pkg/checksum"
)

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local)
	})
}

// LocalStorage stores objects as files under basePath
type LocalStorage struct {
	basePath string
}

// New creates the base directory if needed
func New(cfg *config.LocalStorageConfig) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base_path is required")
	}
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: abs}, nil
}

// resolve maps an object path to a file under basePath, rejecting escapes
func (s *LocalStorage) resolve(objectPath string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(objectPath))
	rel, err := filepath.Rel(s.basePath, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path: %q", objectPath)
	}
	return full, nil
}

// Upload writes to a temp file in the target directory and renames it into place, so a
// reader never sees a partial object.
func (s *LocalStorage) Upload(ctx context.Context, objectPath string, body io.Reader, _ storage.UploadOptions) (*storage.UploadResult, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}

	return &storage.UploadResult{
		Path:     objectPath,
		Size:     written,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Download opens the file
func (s *LocalStorage) Download(_ context.Context, objectPath string) (io.ReadCloser, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, objectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes the file and prunes empty parent directories up to basePath
func (s *LocalStorage) Delete(_ context.Context, objectPath string) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	for dir := filepath.Dir(full); dir != s.basePath; dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// GetURL always fails with storage.ErrSignedURLUnsupported; callers stream via Download
func (s *LocalStorage) GetURL(ctx context.Context, objectPath string, _ time.Duration) (string, error) {
	exists, err := s.Exists(ctx, objectPath)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, objectPath)
	}
	return "", storage.ErrSignedURLUnsupported
}

// Exists stats the file
func (s *LocalStorage) Exists(_ context.Context, objectPath string) (bool, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// GetMetadata stats the file and hashes its content
func (s *LocalStorage) GetMetadata(_ context.Context, objectPath string) (*storage.FileMetadata, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, objectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}
	sum, err := checksum.CalculateSHA256(f)
	if err != nil {
		return nil, err
	}

	return &storage.FileMetadata{
		Path:         objectPath,
		Size:         stat.Size(),
		Checksum:     sum,
		ContentType:  contentTypeFor(objectPath),
		LastModified: stat.ModTime(),
	}, nil
}

func contentTypeFor(objectPath string) string {
	if strings.EqualFold(filepath.Ext(objectPath), ".csv") {
		return "text/csv;charset=utf-8"
	}
	return "application/octet-stream"
}
