package pulsar

import (
	"context"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/queue"
)

// Consumer implements queue.Consumer using Pulsar. It receives on a client
// it does not own.
type Consumer struct {
	consumer pulsar.Consumer
	topic    string
}

// NewConsumer subscribes to topic on client with a shared subscription, so
// every worker takes its own jobs
func NewConsumer(client pulsar.Client, topic, subscriptionName string) (*Consumer, error) {
	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topic,
		SubscriptionName: subscriptionName,
		Type:             pulsar.Shared,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pulsar consumer: %w", err)
	}

	return &Consumer{
		consumer: consumer,
		topic:    topic,
	}, nil
}

// Consume receives jobs until ctx is cancelled. A job whose handler returns
// an error is nacked for redelivery; malformed payloads are acked and dropped.
func (c *Consumer) Consume(ctx context.Context, handler queue.JobHandler) error {
	logger.Infof("Starting Pulsar consumer for topic %s", c.topic)

	for {
		msg, err := c.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Pulsar consumer context cancelled")
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive message from Pulsar: %w", err)
		}

		job, err := queue.DecodeJob(msg.Payload(), messageJobID(msg.Properties(), msg.Key()))
		if err != nil {
			logger.Errorf("Dropping Pulsar message %v: %v", msg.ID(), err)
			_ = c.consumer.Ack(msg)
			continue
		}

		logger.Infof("Processing migration job %s from Pulsar", job.ID)

		result, err := handler(ctx, job)
		if err != nil {
			logger.Errorf("Failed to process migration job %s: %v", job.ID, err)
			c.consumer.Nack(msg)
			continue
		}

		if err := c.consumer.Ack(msg); err != nil {
			logger.Errorf("Failed to acknowledge message for job %s: %v", job.ID, err)
		}
		queue.LogResult(result, logger.Infof, logger.Warnf)
	}
}

// Close closes the subscription consumer; the client stays open
func (c *Consumer) Close() error {
	c.consumer.Close()
	return nil
}

func messageJobID(properties map[string]string, key string) string {
	if id, ok := properties["job-id"]; ok && id != "" {
		return id
	}
	return key
}
