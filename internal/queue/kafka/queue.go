package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/toolsascode/schemaflow/internal/queue"
)

// Queue publishes run jobs to a topic and consumes them in a consumer group.
// The group reader is created on the first Consume call, so processes that
// only publish never join the group.
type Queue struct {
	brokers []string
	topic   string
	groupID string

	producer *Producer

	mu       sync.Mutex
	consumer *Consumer
	closed   bool
}

// NewQueue creates a Kafka queue. No broker connection is made until a job
// is published or consumed.
func NewQueue(brokers []string, topic, groupID string) *Queue {
	return &Queue{
		brokers:  brokers,
		topic:    topic,
		groupID:  groupID,
		producer: NewProducer(brokers, topic),
	}
}

// PublishJob publishes a run job
func (q *Queue) PublishJob(ctx context.Context, job *queue.Job) error {
	return q.producer.PublishJob(ctx, job)
}

// Consume joins the consumer group and handles jobs until ctx is cancelled
func (q *Queue) Consume(ctx context.Context, handler queue.JobHandler) error {
	c, err := q.groupConsumer()
	if err != nil {
		return err
	}
	return c.Consume(ctx, handler)
}

func (q *Queue) groupConsumer() (*Consumer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, queue.ErrClosed
	}
	if q.consumer == nil {
		q.consumer = NewConsumer(q.brokers, q.topic, q.groupID)
	}
	return q.consumer, nil
}

// Close closes the writer and, if Consume ran, the group reader
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	errs := []error{q.producer.Close()}
	if q.consumer != nil {
		errs = append(errs, q.consumer.Close())
	}
	return errors.Join(errs...)
}
