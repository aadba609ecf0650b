package events

import (
	"context"
	"encoding/json"

	"gdprengine/internal/config"
	"gdprengine/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Handler processes one consumed compliance event, typically by handing it
// to the webhook dispatcher's Dispatch/DispatchAsync entry point.
type Handler func(ctx context.Context, event ComplianceEvent)

// Consumer reads compliance events off Kafka and invokes a Handler for each.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumer(cfg *config.Config, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopicComplianceEvents,
		GroupID: groupID,
	})
	return &Consumer{reader: reader}
}

// Run blocks, consuming messages until ctx is cancelled, then returns nil.
// A failed fetch is logged and the loop keeps reading.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	log := logger.GetLogger().WithField("component", "events.consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Error("failed to fetch compliance event")
			continue
		}

		var event ComplianceEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.WithError(err).Error("failed to decode compliance event")
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		handle(ctx, event)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.WithError(err).Error("failed to commit compliance event offset")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
