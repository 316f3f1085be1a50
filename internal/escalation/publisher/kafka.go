// Package publisher streams committed escalation domain events to Kafka.
// Records are keyed by escalation id so one escalation's events land on a
// single partition and keep their commit order.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"safecircle/internal/escalation/models"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

type Option func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewKafkaPublisher(producer Producer, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish enqueues one record per event and returns without waiting for the
// broker. Delivery failures after franz-go's own retries are logged.
func (p *KafkaPublisher) Publish(ctx context.Context, events []models.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("safecircle/publisher").Start(ctx, "kafka.produce")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", p.topic),
		attribute.Int("messaging.batch.message_count", len(events)),
	)
	defer span.End()

	records := make([]*kgo.Record, 0, len(events))
	for _, ev := range events {
		r, err := p.record(ev)
		if err != nil {
			span.RecordError(err)
			return err
		}
		records = append(records, r)
	}
	for _, r := range records {
		p.producer.Produce(ctx, r, p.onDelivered)
	}
	return nil
}

func (p *KafkaPublisher) record(ev models.DomainEvent) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.EscalationID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "version", Value: []byte(strconv.FormatInt(ev.Version, 10))},
			{Key: "sequence", Value: []byte(strconv.Itoa(ev.Sequence))},
		},
		Timestamp: ev.OccurredAt,
	}, nil
}

func (p *KafkaPublisher) onDelivered(r *kgo.Record, err error) {
	if err == nil {
		return
	}
	p.logger.Error("failed to deliver escalation event",
		"topic", r.Topic,
		"escalation_id", string(r.Key),
		"error", err,
	)
}
