package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/queue"
)

func TestQueueDoesNotJoinGroupUntilConsume(t *testing.T) {
	q := NewQueue([]string{"localhost:9092"}, "schemaflow-runs", "schemaflow-workers")
	assert.Nil(t, q.consumer, "publishing processes never join the consumer group")

	require.NoError(t, q.Close())
	assert.NoError(t, q.Close(), "closing twice is a no-op")
}

func TestQueueConsumeAfterClose(t *testing.T) {
	q := NewQueue([]string{"localhost:9092"}, "schemaflow-runs", "schemaflow-workers")
	require.NoError(t, q.Close())

	err := q.Consume(context.Background(), func(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
		t.Fatal("handler must not run on a closed queue")
		return nil, nil
	})
	assert.True(t, errors.Is(err, queue.ErrClosed))
	assert.Nil(t, q.consumer)
}
