package export

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifact() *Artifact {
	body := append(append([]byte{}, BOM...), `"ID"`...)
	return &Artifact{
		Filename:    "audit-2026.csv",
		ContentType: ContentTypeCSV,
		Body:        body,
		Checksum:    "abc123",
		Rows:        0,
	}
}

// ---- ResponseSink --------------------------------------------------------------

func TestResponseSink_SetsDownloadHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	a := sampleArtifact()
	require.NoError(t, NewResponseSink(rec).Deliver(context.Background(), a))

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "text/csv;charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="audit-2026.csv"; filename*=UTF-8''audit-2026.csv`,
		rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "7", rec.Header().Get("Content-Length"))
	assert.Equal(t, "abc123", rec.Header().Get("X-Content-Checksum"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, a.Body, rec.Body.Bytes())
}

func TestContentDisposition(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "log.csv", `attachment; filename="log.csv"; filename*=UTF-8''log.csv`},
		{"space", "my log.csv", `attachment; filename="my log.csv"; filename*=UTF-8''my%20log.csv`},
		{"quote", `a"b.csv`, `attachment; filename="a\"b.csv"; filename*=UTF-8''a%22b.csv`},
		{"non-ascii", "감사.csv", `attachment; filename="__.csv"; filename*=UTF-8''%EA%B0%90%EC%82%AC.csv`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ContentDisposition(tc.in))
		})
	}
}

// ---- WriterSink ------------------------------------------------------------------

func TestWriterSink_WritesBodyOnly(t *testing.T) {
	var buf bytes.Buffer
	a := sampleArtifact()
	require.NoError(t, (&WriterSink{W: &buf}).Deliver(context.Background(), a))
	assert.Equal(t, a.Body, buf.Bytes())
}

func TestWriterSink_Error(t *testing.T) {
	err := (&WriterSink{W: failingWriter{}}).Deliver(context.Background(), sampleArtifact())
	assert.ErrorContains(t, err, "disk full")
}

// ---- MultiSink ---------------------------------------------------------------------

func TestMultiSink_AttemptsAllReturnsFirstError(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	var calls []string
	sink := MultiSink{
		SinkFunc(func(context.Context, *Artifact) error { calls = append(calls, "a"); return nil }),
		SinkFunc(func(context.Context, *Artifact) error { calls = append(calls, "b"); return first }),
		SinkFunc(func(context.Context, *Artifact) error { calls = append(calls, "c"); return second }),
	}
	err := sink.Deliver(context.Background(), sampleArtifact())
	assert.ErrorIs(t, err, first)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestMultiSink_Empty(t *testing.T) {
	assert.NoError(t, MultiSink{}.Deliver(context.Background(), sampleArtifact()))
}
