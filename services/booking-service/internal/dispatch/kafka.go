package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/anathi-mjali/branchbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to Kafka, topic per event type.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers string, timeout time.Duration) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  kafkax.SplitBrokers(brokers),
			Balancer: &kafka.Hash{},
		}),
		timeout: timeout,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType, aggregateID, eventID string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Topic: eventType,
		Key:   []byte(aggregateID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaDeadLetterSink republishes exhausted events on a dedicated DLQ topic
// for operator inspection and replay.
type KafkaDeadLetterSink struct {
	pub    *KafkaPublisher
	topic  string
	logger *slog.Logger
}

func NewKafkaDeadLetterSink(pub *KafkaPublisher, topic string, logger *slog.Logger) *KafkaDeadLetterSink {
	return &KafkaDeadLetterSink{pub: pub, topic: topic, logger: logger}
}

func (s *KafkaDeadLetterSink) Quarantine(ctx context.Context, rec RetryRecord, reason string) error {
	s.logger.Error("quarantining event",
		"event_id", rec.EventID, "event_type", rec.EventType, "reason", reason)

	original := json.RawMessage(rec.Payload)
	if len(original) == 0 {
		original = json.RawMessage("null")
	}
	envelope, err := json.Marshal(map[string]any{
		"event_id":     rec.EventID,
		"event_type":   rec.EventType,
		"aggregate_id": rec.AggregateID,
		"attempts":     rec.Attempts,
		"reason":       reason,
		"payload":      original,
	})
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, s.topic, rec.AggregateID, rec.EventID, envelope)
}
