package pulsar

import (
	"context"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/toolsascode/schemaflow/internal/logger"
	"github.com/toolsascode/schemaflow/internal/queue"
)

// Producer implements queue.Producer using Pulsar. It sends on a client it
// does not own.
type Producer struct {
	producer pulsar.Producer
	topic    string
}

// NewProducer creates a producer for topic on client
func NewProducer(client pulsar.Client, topic string) (*Producer, error) {
	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pulsar producer: %w", err)
	}

	return &Producer{
		producer: producer,
		topic:    topic,
	}, nil
}

// PublishJob publishes a migration job to Pulsar
func (p *Producer) PublishJob(ctx context.Context, job *queue.Job) error {
	jobData, err := queue.EncodeJob(job)
	if err != nil {
		return err
	}

	msg := &pulsar.ProducerMessage{
		Payload: jobData,
		Key:     job.ID,
		Properties: map[string]string{
			"job-id":       job.ID,
			"requested-by": job.RequestedBy,
		},
	}

	if _, err := p.producer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send message to Pulsar: %w", err)
	}

	logger.Infof("Published migration job %s to Pulsar topic %s", job.ID, p.topic)
	return nil
}

// Close flushes and closes the producer; the client stays open
func (p *Producer) Close() error {
	p.producer.Close()
	return nil
}
