package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// ResponseSink writes the artifact as an HTTP attachment. It is the browser download path.
type ResponseSink struct {
	W http.ResponseWriter
}

// NewResponseSink wraps w
func NewResponseSink(w http.ResponseWriter) *ResponseSink {
	return &ResponseSink{W: w}
}

// Deliver sets the download headers and writes the body with status 200
func (s *ResponseSink) Deliver(_ context.Context, a *Artifact) error {
	h := s.W.Header()
	h.Set("Content-Type", a.ContentType)
	h.Set("Content-Disposition", ContentDisposition(a.Filename))
	h.Set("Content-Length", strconv.Itoa(len(a.Body)))
	h.Set("X-Content-Checksum", a.Checksum)
	h.Set("Cache-Control", "no-store")
	s.W.WriteHeader(http.StatusOK)
	if _, err := s.W.Write(a.Body); err != nil {
		return fmt.Errorf("failed to write export response: %w", err)
	}
	return nil
}

// ContentDisposition builds an attachment header carrying a quoted ASCII filename and the
// RFC 5987 filename* form for names with non-ASCII characters.
func ContentDisposition(filename string) string {
	fallback := make([]byte, 0, len(filename))
	for _, r := range filename {
		switch {
		case r == '"' || r == '\\':
			fallback = append(fallback, '\\', byte(r))
		case r < 0x20 || r > 0x7e:
			fallback = append(fallback, '_')
		default:
			fallback = append(fallback, byte(r))
		}
	}
	return `attachment; filename="` + string(fallback) + `"; filename*=UTF-8''` + encodeRFC5987(filename)
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			out = append(out, c)
			continue
		}
		out = append(out, '%', hex[c>>4], hex[c&0x0f])
	}
	return string(out)
}

// WriterSink writes only the artifact body to W (files, stdout)
type WriterSink struct {
	W io.Writer
}

// Deliver writes the body
func (s *WriterSink) Deliver(_ context.Context, a *Artifact) error {
	if _, err := s.W.Write(a.Body); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

// MultiSink delivers to every sink in order. All sinks are attempted; the first error
// is returned.
type MultiSink []Sink

// Deliver fans the artifact out
func (m MultiSink) Deliver(ctx context.Context, a *Artifact) error {
	var first error
	for _, s := range m {
		if err := s.Deliver(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}
