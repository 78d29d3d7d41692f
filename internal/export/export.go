// Package export turns ordered records plus a header projection into CSV artifacts and
// hands them to an artifact sink (HTTP download, writer, object storage). It also offers
// a print view that delegates "save as PDF" to the browser's print dialog.
//
// Serialisation is host-independent: EncodeCSV only needs an io.Writer, so the rules
// below are testable without any sink.
//
//   - output starts with the UTF-8 byte-order marker EF BB BF
//   - every field, header labels included, is wrapped in double quotes
//   - embedded double quotes are doubled
//   - an absent or nil value is the empty field ""
//   - lines are separated by a single '\n' with no trailing newline
package export

import (
	"context"
	"errors"
)

// Sentinel errors. Callers inspect them with errors.Is.
var (
	ErrNoHeaders           = errors.New("export requires at least one header")
	ErrInvalidHeader       = errors.New("export header key must not be empty")
	ErrUnserializableValue = errors.New("value cannot be serialised to CSV")
	ErrInvalidFilename     = errors.New("invalid export filename")
	ErrDeliveryFailed      = errors.New("export delivery failed")
	ErrNoPrinter           = errors.New("no print facility configured")
)

// BOM is the UTF-8 byte-order marker written at the start of every CSV artifact
var BOM = []byte{0xEF, 0xBB, 0xBF}

// ContentTypeCSV is the MIME type of CSV artifacts
const ContentTypeCSV = "text/csv;charset=utf-8"

// Header selects one column: the record key to read and the label shown in the header line
type Header struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Record is one row, keyed by field name
type Record map[string]any

// Artifact is a fully built export ready for delivery
type Artifact struct {
	Filename    string // <base>.csv
	ContentType string
	Body        []byte
	Checksum    string // hex SHA-256 of Body
	Rows        int    // data rows, header line excluded
}

// Sink receives a finished artifact. It is the only place an export touches the outside world.
type Sink interface {
	Deliver(ctx context.Context, a *Artifact) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, a *Artifact) error

// Deliver calls f(ctx, a)
func (f SinkFunc) Deliver(ctx context.Context, a *Artifact) error {
	return f(ctx, a)
}

// Printer is the host print facility
type Printer interface {
	Print(ctx context.Context) error
}
