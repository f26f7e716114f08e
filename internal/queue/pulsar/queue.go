package pulsar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/toolsascode/schemaflow/internal/queue"
)

// Queue publishes run jobs and consumes them over one Pulsar client. The
// subscription is created on the first Consume call, so processes that only
// publish never receive jobs.
type Queue struct {
	client       pulsar.Client
	topic        string
	subscription string

	producer *Producer

	mu       sync.Mutex
	consumer *Consumer
	closed   bool
}

// NewQueue connects to url and creates the producer for topic
func NewQueue(url, topic, subscription string) (*Queue, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pulsar client: %w", err)
	}

	producer, err := NewProducer(client, topic)
	if err != nil {
		client.Close()
		return nil, err
	}

	return &Queue{
		client:       client,
		topic:        topic,
		subscription: subscription,
		producer:     producer,
	}, nil
}

// PublishJob publishes a run job
func (q *Queue) PublishJob(ctx context.Context, job *queue.Job) error {
	return q.producer.PublishJob(ctx, job)
}

// Consume subscribes and handles jobs until ctx is cancelled
func (q *Queue) Consume(ctx context.Context, handler queue.JobHandler) error {
	c, err := q.subscribe()
	if err != nil {
		return err
	}
	return c.Consume(ctx, handler)
}

func (q *Queue) subscribe() (*Consumer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, queue.ErrClosed
	}
	if q.consumer == nil {
		c, err := NewConsumer(q.client, q.topic, q.subscription)
		if err != nil {
			return nil, err
		}
		q.consumer = c
	}
	return q.consumer, nil
}

// Close closes the consumer, the producer and then the shared client
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	var errs []error
	if q.consumer != nil {
		errs = append(errs, q.consumer.Close())
	}
	if q.producer != nil {
		errs = append(errs, q.producer.Close())
	}
	if q.client != nil {
		q.client.Close()
	}
	return errors.Join(errs...)
}
