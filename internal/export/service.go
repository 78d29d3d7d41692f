package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aitool-portal/aitool-portal/internal/telemetry"
	"github.com/aitool-portal/aitool-portal/pkg/checksum"
)

// Buffers above this capacity are dropped instead of pooled so one huge export does not
// pin memory for the life of the process.
const maxPooledBuffer = 4 << 20

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Service builds CSV artifacts and delivers them to a sink. A Service holds no
// per-call state; handlers typically build one per request around a request-scoped sink.
type Service struct {
	sink        Sink
	destination string // metrics label: download, storage, writer
}

// NewService creates a Service delivering to sink. destination labels the export metrics.
func NewService(sink Sink, destination string) *Service {
	return &Service{sink: sink, destination: destination}
}

// ExportToTable encodes records under headers, names the artifact <filename>.csv and
// hands it to the sink. An empty records slice yields a header-only artifact.
//
// The encoding buffer is borrowed from a pool and returned on every path, whether
// encoding or delivery fail.
func (s *Service) ExportToTable(ctx context.Context, records []Record, filename string, headers []Header) (*Artifact, error) {
	if err := ValidateFilename(filename); err != nil {
		s.count("error")
		return nil, err
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer releaseBuffer(buf)

	if err := EncodeCSV(buf, records, headers); err != nil {
		s.count("error")
		return nil, err
	}

	body := bytes.Clone(buf.Bytes())
	artifact := &Artifact{
		Filename:    filename + ".csv",
		ContentType: ContentTypeCSV,
		Body:        body,
		Checksum:    checksum.Sum(body),
		Rows:        len(records),
	}

	if err := ctx.Err(); err != nil {
		s.count("error")
		return nil, err
	}
	if err := s.sink.Deliver(ctx, artifact); err != nil {
		s.count("error")
		slog.ErrorContext(ctx, "export delivery failed",
			"filename", artifact.Filename, "destination", s.destination, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.count("success")
	telemetry.ExportRows.Observe(float64(artifact.Rows))
	telemetry.ExportBytes.Observe(float64(len(artifact.Body)))
	slog.InfoContext(ctx, "export delivered",
		"filename", artifact.Filename,
		"destination", s.destination,
		"rows", artifact.Rows,
		"bytes", len(artifact.Body),
		"checksum", artifact.Checksum,
	)
	return artifact, nil
}

// ExportToPrintArtifact delegates to the host print facility. It adds no logic of its own.
func (s *Service) ExportToPrintArtifact(ctx context.Context, p Printer) error {
	if p == nil {
		return ErrNoPrinter
	}
	err := p.Print(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	telemetry.ExportsTotal.WithLabelValues("print", s.destination, outcome).Inc()
	return err
}

func (s *Service) count(outcome string) {
	telemetry.ExportsTotal.WithLabelValues("csv", s.destination, outcome).Inc()
}

func releaseBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// ValidateFilename checks an export base name: non-empty, no path separators, no "..",
// no control characters. The name is used verbatim; a trailing ".csv" is not stripped.
func ValidateFilename(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidFilename)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, name)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q contains ..", ErrInvalidFilename, name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains a control character", ErrInvalidFilename, name)
		}
	}
	return nil
}
