// Package events publishes engagement events for downstream consumers
// (analytics, notifications). Publishing is best effort and never affects
// the outcome of the mutation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ddevcap/rollfeed/metrics"
)

// Event describes one successful engagement mutation.
type Event struct {
	Action     string    `json:"action"`
	Direction  string    `json:"direction"`
	ItemID     string    `json:"itemId"`
	ViewerID   string    `json:"viewerId,omitempty"`
	Count      *int64    `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// KafkaPublisher writes events as JSON, keyed by item id so that all events
// of one item land on the same partition in order.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher builds an asynchronous writer for the comma-separated
// broker list. Delivery errors are reported through metrics only.
func NewKafkaPublisher(brokers, topic string) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("events: no kafka brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("events: no kafka topic configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			metrics.EventsPublished.WithLabelValues(result).Add(float64(len(messages)))
		},
	}
	return &KafkaPublisher{w: w}, nil
}

// Publish enqueues ev. With an async writer this returns before delivery.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ItemID),
		Value: b,
		Time:  ev.OccurredAt,
	})
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
