package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aitool-portal/aitool-portal/internal/db/models"
	"github.com/aitool-portal/aitool-portal/internal/safego"
	"github.com/aitool-portal/aitool-portal/internal/telemetry"
)

// DefaultShipTimeout bounds one asynchronous shipment of a recorded event
const DefaultShipTimeout = 5 * time.Second

// Store persists audit records; *repositories.AuditRepository satisfies it
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder is the single write path for audit events
type Recorder struct {
	store       Store
	shipper     Shipper
	shipTimeout time.Duration
	inflight    safego.Group
}

// NewRecorder returns a recorder persisting to store. shipper may be nil.
func NewRecorder(store Store, shipper Shipper) *Recorder {
	return &Recorder{store: store, shipper: shipper, shipTimeout: DefaultShipTimeout}
}

// Record validates and persists one event, then ships a copy in the background.
// Only validation and persistence errors are returned.
func (r *Recorder) Record(ctx context.Context, in models.AuditLogInput) (*models.AuditLog, error) {
	log, err := models.NewAuditLog(in)
	if err != nil {
		return nil, err
	}
	if err := r.store.CreateAuditLog(ctx, log); err != nil {
		return nil, err
	}

	category := log.Action.Category()
	telemetry.AuditEventsRecordedTotal.WithLabelValues(string(log.Action), string(category)).Inc()

	if r.shipper != nil {
		entry := NewLogEntry(log)
		shipCtx := context.WithoutCancel(ctx)
		r.inflight.Go("audit-ship", func() {
			ctx, cancel := context.WithTimeout(shipCtx, r.shipTimeout)
			defer cancel()
			if err := r.shipper.Ship(ctx, entry); err != nil {
				slog.WarnContext(ctx, "failed to ship audit entry",
					"id", entry.ID, "action", entry.Action, "error", err)
			}
		})
	}

	return log, nil
}

// Wait blocks until every in-flight shipment has finished
func (r *Recorder) Wait() {
	r.inflight.Wait()
}

// Close waits for in-flight shipments and closes the shipper
func (r *Recorder) Close() error {
	r.inflight.Wait()
	if r.shipper == nil {
		return nil
	}
	return r.shipper.Close()
}
