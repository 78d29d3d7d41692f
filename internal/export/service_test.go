package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitool-portal/aitool-portal/internal/telemetry"
	"github.com/aitool-portal/aitool-portal/pkg/checksum"
)

// recordingSink keeps every artifact it receives
type recordingSink struct {
	got []*Artifact
	err error
}

func (s *recordingSink) Deliver(_ context.Context, a *Artifact) error {
	s.got = append(s.got, a)
	return s.err
}

// ---- ExportToTable ---------------------------------------------------------------

func TestExportToTable_Scenario(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(sink, "test")

	a, err := svc.ExportToTable(context.Background(),
		[]Record{{"id": "1", "action": "LOGIN"}}, "log", idActionHeaders)
	require.NoError(t, err)
	require.Len(t, sink.got, 1, "download triggered exactly once")
	assert.Same(t, a, sink.got[0])

	assert.Equal(t, "log.csv", a.Filename)
	assert.Equal(t, "text/csv;charset=utf-8", a.ContentType)
	assert.Equal(t, 1, a.Rows)
	assert.Equal(t, append(append([]byte{}, BOM...), "\"ID\",\"Action\"\n\"1\",\"LOGIN\""...), a.Body)
	assert.Equal(t, checksum.Sum(a.Body), a.Checksum)
}

func TestExportToTable_EmptyRecordsStillDelivers(t *testing.T) {
	sink := &recordingSink{}
	a, err := NewService(sink, "test").ExportToTable(context.Background(), nil, "log", idActionHeaders)
	require.NoError(t, err)
	require.Len(t, sink.got, 1)
	assert.Equal(t, 0, a.Rows)
	assert.Equal(t, `"ID","Action"`, string(a.Body[len(BOM):]))
}

func TestExportToTable_IdenticalCallsIdenticalArtifacts(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(sink, "test")
	records := propertyRecords()

	first, err := svc.ExportToTable(context.Background(), records, "audit", propertyHeaders)
	require.NoError(t, err)
	second, err := svc.ExportToTable(context.Background(), records, "audit", propertyHeaders)
	require.NoError(t, err)

	require.Len(t, sink.got, 2, "two independent deliveries")
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.NotSame(t, &first.Body[0], &second.Body[0], "bodies must not share the pooled buffer")
}

func TestExportToTable_BodyOutlivesPooledBuffer(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(sink, "test")

	a, err := svc.ExportToTable(context.Background(), []Record{{"id": "keep"}}, "a", idActionHeaders)
	require.NoError(t, err)
	want := bytes.Clone(a.Body)

	// Reuse the pool; the earlier artifact must not change.
	_, err = svc.ExportToTable(context.Background(), []Record{{"id": "overwrite-attempt"}}, "b", idActionHeaders)
	require.NoError(t, err)
	assert.Equal(t, want, a.Body)
}

func TestExportToTable_InvalidFilename(t *testing.T) {
	for _, name := range []string{"", "   ", "../etc/passwd", "a/b", `a\b`, "x..y", "bad\x00name"} {
		sink := &recordingSink{}
		_, err := NewService(sink, "test").ExportToTable(context.Background(), nil, name, idActionHeaders)
		assert.ErrorIs(t, err, ErrInvalidFilename, "name %q", name)
		assert.Empty(t, sink.got, "nothing delivered for %q", name)
	}
}

func TestExportToTable_FilenameUsedVerbatim(t *testing.T) {
	sink := &recordingSink{}
	a, err := NewService(sink, "test").ExportToTable(context.Background(), nil, "report.csv", idActionHeaders)
	require.NoError(t, err)
	assert.Equal(t, "report.csv.csv", a.Filename)
}

func TestExportToTable_EncodingFailureSkipsSink(t *testing.T) {
	sink := &recordingSink{}
	_, err := NewService(sink, "test").ExportToTable(context.Background(),
		[]Record{{"id": map[string]any{}}}, "log", idActionHeaders)
	assert.ErrorIs(t, err, ErrUnserializableValue)
	assert.Empty(t, sink.got)

	_, err = NewService(sink, "test").ExportToTable(context.Background(), nil, "log", nil)
	assert.ErrorIs(t, err, ErrNoHeaders)
	assert.Empty(t, sink.got)
}

func TestExportToTable_SinkFailureWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	sink := &recordingSink{err: cause}
	_, err := NewService(sink, "test").ExportToTable(context.Background(), nil, "log", idActionHeaders)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.ErrorIs(t, err, cause)
}

func TestExportToTable_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}
	_, err := NewService(sink, "test").ExportToTable(ctx, nil, "log", idActionHeaders)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.got)
}

func TestExportToTable_CountsOutcomes(t *testing.T) {
	ok := telemetry.ExportsTotal.WithLabelValues("csv", "metrics-test", "success")
	failed := telemetry.ExportsTotal.WithLabelValues("csv", "metrics-test", "error")
	okBefore, failedBefore := counterValue(t, ok), counterValue(t, failed)

	svc := NewService(&recordingSink{}, "metrics-test")
	_, err := svc.ExportToTable(context.Background(), nil, "log", idActionHeaders)
	require.NoError(t, err)
	_, err = svc.ExportToTable(context.Background(), nil, "", idActionHeaders)
	require.Error(t, err)

	assert.Equal(t, okBefore+1, counterValue(t, ok))
	assert.Equal(t, failedBefore+1, counterValue(t, failed))
}

func TestReleaseBuffer_DropsOversized(t *testing.T) {
	big := bytes.NewBuffer(make([]byte, 0, maxPooledBuffer+1))
	releaseBuffer(big) // must not panic or retain
	small := new(bytes.Buffer)
	small.WriteString("leftover")
	releaseBuffer(small)
	assert.Zero(t, small.Len(), "released buffers are reset")
}

// ---- ExportToPrintArtifact ----------------------------------------------------------

type printerFunc func(ctx context.Context) error

func (f printerFunc) Print(ctx context.Context) error { return f(ctx) }

func TestExportToPrintArtifact_Delegates(t *testing.T) {
	called := 0
	svc := NewService(&recordingSink{}, "test")
	err := svc.ExportToPrintArtifact(context.Background(), printerFunc(func(context.Context) error {
		called++
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestExportToPrintArtifact_PropagatesError(t *testing.T) {
	cause := errors.New("no dialog")
	svc := NewService(&recordingSink{}, "test")
	err := svc.ExportToPrintArtifact(context.Background(), printerFunc(func(context.Context) error { return cause }))
	assert.ErrorIs(t, err, cause)
}

func TestExportToPrintArtifact_NilPrinter(t *testing.T) {
	svc := NewService(&recordingSink{}, "test")
	assert.ErrorIs(t, svc.ExportToPrintArtifact(context.Background(), nil), ErrNoPrinter)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
