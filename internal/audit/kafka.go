package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/aitool-portal/aitool-portal/internal/config"
)

// producer is the subset of *kgo.Client the shipper uses
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaShipper publishes each entry to a topic, keyed by audit id so every copy of a
// record lands on the same partition
type KafkaShipper struct {
	client producer
	topic  string
}

// NewKafkaShipper creates the producer client. Brokers are dialled lazily.
func NewKafkaShipper(cfg *config.AuditKafkaConfig) (*KafkaShipper, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &KafkaShipper{client: client, topic: cfg.Topic}, nil
}

// Ship produces the entry and waits for the broker acknowledgement
func (ks *KafkaShipper) Ship(ctx context.Context, entry *LogEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	rec := &kgo.Record{
		Topic: ks.topic,
		Key:   []byte(entry.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(entry.Action)},
			{Key: "category", Value: []byte(entry.Category)},
		},
	}
	if err := ks.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce audit entry to %s: %w", ks.topic, err)
	}
	return nil
}

// Close flushes buffered records and closes the client
func (ks *KafkaShipper) Close() error {
	ks.client.Close()
	return nil
}
