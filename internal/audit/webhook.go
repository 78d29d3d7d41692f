package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aitool-portal/aitool-portal/internal/config"
	"github.com/aitool-portal/aitool-portal/internal/safego"
	"github.com/aitool-portal/aitool-portal/internal/telemetry"
)

const (
	defaultWebhookTimeout         = 10 * time.Second
	defaultWebhookFlushInterval   = 5 * time.Second
	defaultBreakerFailures uint32 = 5
	breakerOpenTimeout            = 30 * time.Second
	webhookQueueSize              = 1000
)

// WebhookShipper POSTs audit entries as JSON, one per request or as a JSON array when
// batching is enabled. Requests go through a circuit breaker so a dead endpoint fails
// fast instead of tying up shipping goroutines until their timeout.
type WebhookShipper struct {
	cfg           *config.AuditWebhookConfig
	client        *http.Client
	breaker       *gobreaker.CircuitBreaker[struct{}]
	timeout       time.Duration
	flushInterval time.Duration

	// mu orders enqueues against Close so the drain sees every queued entry
	mu        sync.RWMutex
	closed    bool
	queue     chan *LogEntry
	closeCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper validates the endpoint and starts the batch loop when batching is on
func NewWebhookShipper(cfg *config.AuditWebhookConfig) (*WebhookShipper, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", cfg.URL)
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	flushInterval := time.Duration(cfg.FlushIntervalSecs) * time.Second
	if flushInterval <= 0 {
		flushInterval = defaultWebhookFlushInterval
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}

	ws := &WebhookShipper{
		cfg:           cfg,
		client:        &http.Client{Timeout: timeout},
		timeout:       timeout,
		flushInterval: flushInterval,
		closeCh:       make(chan struct{}),
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "audit-webhook:" + u.Host,
			MaxRequests: 1,
			Timeout:     breakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("audit webhook circuit breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}

	if cfg.BatchSize > 0 {
		ws.queue = make(chan *LogEntry, webhookQueueSize)
		ws.done = make(chan struct{})
		safego.Go("audit-webhook-batcher", ws.processBatches)
	}

	return ws, nil
}

// State reports the circuit breaker state
func (ws *WebhookShipper) State() gobreaker.State {
	return ws.breaker.State()
}

// Ship queues the entry when batching, otherwise sends it immediately. A full queue or a
// closed shipper falls back to a direct send.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.queue != nil && ws.enqueue(entry) {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return ws.send(ctx, data)
}

func (ws *WebhookShipper) enqueue(entry *LogEntry) bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if ws.closed {
		return false
	}
	select {
	case ws.queue <- entry:
		return true
	default:
		return false
	}
}

func (ws *WebhookShipper) processBatches() {
	defer close(ws.done)

	ticker := time.NewTicker(ws.flushInterval)
	defer ticker.Stop()

	batch := make([]*LogEntry, 0, ws.cfg.BatchSize)
	for {
		select {
		case entry := <-ws.queue:
			batch = append(batch, entry)
			if len(batch) >= ws.cfg.BatchSize {
				batch = ws.flush(batch)
			}
		case <-ticker.C:
			batch = ws.flush(batch)
		case <-ws.closeCh:
			for {
				select {
				case entry := <-ws.queue:
					batch = append(batch, entry)
				default:
					ws.flush(batch)
					return
				}
			}
		}
	}
}

// flush sends the batch and returns it emptied; failures are logged and counted
func (ws *WebhookShipper) flush(batch []*LogEntry) []*LogEntry {
	if len(batch) == 0 {
		return batch
	}

	data, err := json.Marshal(batch)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), ws.timeout)
		err = ws.send(ctx, data)
		cancel()
	}
	if err != nil {
		telemetry.AuditShipErrorsTotal.WithLabelValues("webhook").Inc()
		slog.Error("failed to send audit batch", "entries", len(batch), "error", err)
	}
	return batch[:0]
}

func (ws *WebhookShipper) send(ctx context.Context, data []byte) error {
	_, err := ws.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, ws.post(ctx, data)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("audit webhook circuit open: %w", err)
	}
	return err
}

func (ws *WebhookShipper) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close stops the batch loop after flushing whatever is queued
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		ws.mu.Lock()
		ws.closed = true
		close(ws.closeCh)
		ws.mu.Unlock()
	})
	if ws.done != nil {
		<-ws.done
	}
	return nil
}
