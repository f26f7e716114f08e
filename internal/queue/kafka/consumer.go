package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/queue"
)

// Consumer implements queue.Consumer using Kafka
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader: reader,
		topic:  topic,
	}
}

// Consume reads jobs until ctx is cancelled. Malformed messages and failed
// jobs are logged and skipped; offsets are committed as messages are read.
func (c *Consumer) Consume(ctx context.Context, handler queue.JobHandler) error {
	logger.Infof("Starting Kafka consumer for topic %s", c.topic)

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Kafka consumer context cancelled")
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message from Kafka: %w", err)
		}

		job, err := queue.DecodeJob(msg.Value, headerValue(msg.Headers, "job-id"))
		if err != nil {
			logger.Errorf("Skipping Kafka message at offset %d: %v", msg.Offset, err)
			continue
		}

		logger.Infof("Processing migration job %s from Kafka", job.ID)

		result, err := handler(ctx, job)
		if err != nil {
			logger.Errorf("Failed to process migration job %s: %v", job.ID, err)
			continue
		}
		queue.LogResult(result, logger.Infof, logger.Warnf)
	}
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, header := range headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}
