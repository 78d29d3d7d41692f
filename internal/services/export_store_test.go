package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/export"
	"github.com/aitool-portal/aitool-portal/internal/storage"
	"github.com/aitool-portal/aitool-portal/pkg/checksum"
)

// memStorage is an in-memory storage.Storage
type memStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	opts      map[string]storage.UploadOptions
	uploadErr error
	urlErr    error
	corrupt   bool
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, opts: map[string]storage.UploadOptions{}}
}

func (m *memStorage) Upload(_ context.Context, p string, body io.Reader, opts storage.UploadOptions) (*storage.UploadResult, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[p] = data
	m.opts[p] = opts
	sum := checksum.Sum(data)
	if m.corrupt {
		sum = "0000"
	}
	return &storage.UploadResult{Path: p, Size: int64(len(data)), Checksum: sum}, nil
}

func (m *memStorage) Download(_ context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[p]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, p)
	return nil
}

func (m *memStorage) GetURL(_ context.Context, p string, ttl time.Duration) (string, error) {
	if m.urlErr != nil {
		return "", m.urlErr
	}
	return "https://objects.example.com/" + p + "?ttl=" + ttl.String(), nil
}

func (m *memStorage) Exists(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[p]
	return ok, nil
}

func (m *memStorage) GetMetadata(context.Context, string) (*storage.FileMetadata, error) {
	return nil, storage.ErrNotFound
}

type memCatalogue struct {
	rows []*models.ExportArtifact
	err  error
}

func (c *memCatalogue) CreateExportArtifact(_ context.Context, a *models.ExportArtifact) error {
	if c.err != nil {
		return c.err
	}
	c.rows = append(c.rows, a)
	return nil
}

func sampleArtifact() *export.Artifact {
	body := append(append([]byte{}, export.BOM...), `"ID"`+"\n"+`"1"`...)
	return &export.Artifact{
		Filename:    "audit.csv",
		ContentType: export.ContentTypeCSV,
		Body:        body,
		Checksum:    checksum.Sum(body),
		Rows:        1,
	}
}

func newTestStore(st *memStorage, cat *memCatalogue) *ExportStore {
	s := NewExportStore(st, "memory", cat, time.Minute)
	s.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestNewExportStore_DefaultTTL(t *testing.T) {
	s := NewExportStore(newMemStorage(), "memory", &memCatalogue{}, 0)
	assert.Equal(t, DefaultSignedURLTTL, s.TTL())
}

func TestStorageSink_Deliver(t *testing.T) {
	st, cat := newMemStorage(), &memCatalogue{}
	sink := newTestStore(st, cat).Sink("user-1")
	a := sampleArtifact()

	require.NoError(t, sink.Deliver(context.Background(), a))
	require.NotNil(t, sink.Result)

	row := sink.Result.Artifact
	require.Len(t, cat.rows, 1)
	assert.Same(t, row, cat.rows[0])
	assert.True(t, strings.HasPrefix(row.StoragePath, "exports/2026/03/"+row.ID.String()+"/"))
	assert.True(t, strings.HasSuffix(row.StoragePath, "/audit.csv"))
	assert.Equal(t, "memory", row.StorageBackend)
	assert.Equal(t, a.Checksum, row.Checksum)
	assert.Equal(t, int64(len(a.Body)), row.SizeBytes)
	assert.Equal(t, 1, row.RowCount)
	require.NotNil(t, row.RequestedBy)
	assert.Equal(t, "user-1", *row.RequestedBy)

	assert.Equal(t, a.Body, st.objects[row.StoragePath])
	assert.Equal(t, export.ContentTypeCSV, st.opts[row.StoragePath].ContentType)
	assert.Contains(t, st.opts[row.StoragePath].ContentDisposition, `filename="audit.csv"`)
	assert.Contains(t, sink.Result.URL, row.StoragePath)
	assert.Contains(t, sink.Result.URL, "ttl=1m0s")
}

func TestStorageSink_AnonymousRequester(t *testing.T) {
	sink := newTestStore(newMemStorage(), &memCatalogue{}).Sink("")
	require.NoError(t, sink.Deliver(context.Background(), sampleArtifact()))
	assert.Nil(t, sink.Result.Artifact.RequestedBy)
}

func TestStorageSink_UnsignedBackend(t *testing.T) {
	st := newMemStorage()
	st.urlErr = storage.ErrSignedURLUnsupported
	sink := newTestStore(st, &memCatalogue{}).Sink("u")

	require.NoError(t, sink.Deliver(context.Background(), sampleArtifact()))
	assert.Empty(t, sink.Result.URL)
}

func TestStorageSink_SigningFailure(t *testing.T) {
	st := newMemStorage()
	st.urlErr = errors.New("kms unavailable")
	sink := newTestStore(st, &memCatalogue{}).Sink("u")

	assert.Error(t, sink.Deliver(context.Background(), sampleArtifact()))
	assert.Nil(t, sink.Result)
}

func TestStorageSink_UploadFailure(t *testing.T) {
	st, cat := newMemStorage(), &memCatalogue{}
	st.uploadErr = errors.New("bucket gone")

	err := newTestStore(st, cat).Sink("u").Deliver(context.Background(), sampleArtifact())
	assert.ErrorIs(t, err, st.uploadErr)
	assert.Empty(t, cat.rows)
}

func TestStorageSink_CatalogueFailureRemovesObject(t *testing.T) {
	st := newMemStorage()
	cat := &memCatalogue{err: errors.New("db down")}

	err := newTestStore(st, cat).Sink("u").Deliver(context.Background(), sampleArtifact())
	assert.ErrorIs(t, err, cat.err)
	assert.Empty(t, st.objects, "orphaned object left in storage")
}

func TestStorageSink_ChecksumMismatch(t *testing.T) {
	st, cat := newMemStorage(), &memCatalogue{}
	st.corrupt = true

	err := newTestStore(st, cat).Sink("u").Deliver(context.Background(), sampleArtifact())
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Empty(t, st.objects)
	assert.Empty(t, cat.rows)
}

func TestExportStore_ThroughExportService(t *testing.T) {
	st, cat := newMemStorage(), &memCatalogue{}
	store := newTestStore(st, cat)
	sink := store.Sink("u-2")

	a, err := export.NewService(sink, "storage").ExportToTable(context.Background(),
		[]export.Record{{"id": "1", "action": "LOGIN"}}, "logins",
		[]export.Header{{Key: "id", Label: "ID"}, {Key: "action", Label: "Action"}})
	require.NoError(t, err)

	rc, err := store.Open(context.Background(), sink.Result.Artifact)
	require.NoError(t, err)
	defer rc.Close()
	stored, _ := io.ReadAll(rc)
	assert.Equal(t, a.Body, stored)
	assert.Equal(t, "logins.csv", sink.Result.Artifact.Filename)
}
