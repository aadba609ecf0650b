// Package events publishes compliance domain events onto Kafka, the way the
// teacher's internal/events/kafka.go publishes user-lifecycle events. Here
// the event taxonomy is the webhook event set of spec.md §4.8: every
// mutation in C3-C7 publishes here after its transaction commits, and the
// webhook dispatcher (C8) consumes from Kafka to fan out deliveries,
// decoupling "mutation committed" from "webhook posted" per spec.md §5.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gdprengine/internal/config"
	"gdprengine/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// ComplianceEvent is the envelope published to Kafka and, after consumption,
// handed to the webhook dispatcher as its delivery payload.
type ComplianceEvent struct {
	ID           string      `json:"id"`
	Event        string      `json:"event"`
	SubjectEmail string      `json:"subject_email,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Data         interface{} `json:"data"`
}

// Publisher publishes compliance events. Implementations must not block the
// caller's database transaction; Publish is always called after commit.
type Publisher interface {
	Publish(ctx context.Context, event string, subjectEmail string, data interface{}) error
	Close() error
}

// KafkaPublisher implements Publisher using a single Kafka topic, matching
// the teacher's per-topic kafka.Writer configuration.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg *config.Config) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopicComplianceEvents,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event string, subjectEmail string, data interface{}) error {
	log := logger.WithContext(ctx).WithField("event", event)

	envelope := ComplianceEvent{
		ID:           uuid.New().String(),
		Event:        event,
		SubjectEmail: subjectEmail,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal compliance event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(envelope.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event", Value: []byte(event)},
		},
		Time: time.Now(),
	}

	const maxRetries = 3
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = p.writer.WriteMessages(ctx, message)
		if err == nil {
			log.WithField("attempt", attempt).Debug("compliance event published")
			return nil
		}

		log.WithError(err).WithField("attempt", attempt).Warn("failed to publish compliance event")

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt*attempt) * 100 * time.Millisecond)
		}
	}

	return fmt.Errorf("failed to publish compliance event after %d attempts: %w", maxRetries, err)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoOpPublisher is used in tests and in deployments without Kafka — events
// are dropped rather than queued.
type NoOpPublisher struct{}

func NewNoOpPublisher() *NoOpPublisher { return &NoOpPublisher{} }

func (p *NoOpPublisher) Publish(ctx context.Context, event string, subjectEmail string, data interface{}) error {
	return nil
}

func (p *NoOpPublisher) Close() error { return nil }
