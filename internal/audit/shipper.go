// Package audit records audit events and ships copies of them to external destinations.
// The database row is the record of truth; shipped copies (a JSON-lines file, a SIEM
// webhook, a Kafka topic) are best-effort and never fail the request that produced the
// event. Every shipped entry carries the action's category so downstream consumers can
// route on it without knowing the action set.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/telemetry"
)

// LogEntry is the shipped form of an audit record: the record's JSON plus its category
type LogEntry struct {
	models.AuditLog
	Category models.AuditCategory `json:"category"`
}

// NewLogEntry wraps a persisted audit record for shipping
func NewLogEntry(log *models.AuditLog) *LogEntry {
	return &LogEntry{AuditLog: *log, Category: log.Action.Category()}
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close flushes pending entries and releases resources
	Close() error
}

type namedShipper struct {
	name string
	Shipper
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []namedShipper
	mu       sync.RWMutex
}

// NewMultiShipper builds the enabled shippers. Already-built shippers are closed when a
// later one fails to build.
func NewMultiShipper(configs []config.AuditShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "syslog":
			slog.Warn("syslog audit shipper is not supported, skipping")
			continue
		case "webhook":
			if cfg.Webhook == nil {
				err = fmt.Errorf("webhook config is required for webhook shipper")
				break
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				err = fmt.Errorf("file config is required for file shipper")
				break
			}
			shipper, err = NewFileShipper(cfg.File)
		case "kafka":
			if cfg.Kafka == nil {
				err = fmt.Errorf("kafka config is required for kafka shipper")
				break
			}
			shipper, err = NewKafkaShipper(cfg.Kafka)
		default:
			err = fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}
		ms.Add(cfg.Type, shipper)
	}

	return ms, nil
}

// Add registers a shipper under name, which labels its error metric
func (ms *MultiShipper) Add(name string, s Shipper) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.shippers = append(ms.shippers, namedShipper{name: name, Shipper: s})
}

// Len reports how many shippers are active
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends the entry to every shipper. One failing destination does not stop the others;
// the failures are joined.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			telemetry.AuditShipErrorsTotal.WithLabelValues(s.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	ms.shippers = nil
	return errors.Join(errs...)
}
