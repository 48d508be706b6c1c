// Package notify publishes "dataset updated" events so downstream consumers
// can react to new bars without polling the data directory.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather"
)

var (
	_ gather.Notifier = (*Producer)(nil)
	_ gather.Notifier = Noop{}
)

// Event is the JSON payload of one dataset update.
type Event struct {
	EventType string    `json:"event_type"`
	Dataset   string    `json:"dataset"`
	Category  string    `json:"category"`
	Symbol    string    `json:"symbol"`
	Path      string    `json:"path"`
	RowsAdded int       `json:"rows_added"`
	Through   time.Time `json:"through"`
	Timestamp time.Time `json:"timestamp"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes dataset events to Kafka, keyed by dataset so events of
// one dataset stay ordered within a partition.
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a Kafka producer.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer, topic: topic, now: time.Now}
}

// DatasetUpdated publishes a DATASET_UPDATED event.
func (p *Producer) DatasetUpdated(ctx context.Context, ds domain.Dataset, rowsAdded int, through time.Time) error {
	event := Event{
		EventType: "DATASET_UPDATED",
		Dataset:   ds.String(),
		Category:  string(ds.Category),
		Symbol:    ds.Symbol,
		Path:      ds.RelPath(),
		RowsAdded: rowsAdded,
		Through:   through,
		Timestamp: p.now(),
	}
	return p.publish(ctx, ds.String(), event)
}

func (p *Producer) publish(ctx context.Context, key string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing message to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Noop discards events. It is used when no brokers are configured.
type Noop struct{}

// DatasetUpdated does nothing.
func (Noop) DatasetUpdated(context.Context, domain.Dataset, int, time.Time) error { return nil }
