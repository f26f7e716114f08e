package pulsar

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/queue"
)

func TestMessageJobID(t *testing.T) {
	assert.Equal(t, "from-prop", messageJobID(map[string]string{"job-id": "from-prop"}, "from-key"))
	assert.Equal(t, "from-key", messageJobID(map[string]string{"job-id": ""}, "from-key"))
	assert.Equal(t, "from-key", messageJobID(nil, "from-key"))
}

func TestClosedQueueRefusesToSubscribe(t *testing.T) {
	q := &Queue{topic: "schemaflow-runs", subscription: "schemaflow-workers"}
	require.NoError(t, q.Close())

	err := q.Consume(context.Background(), func(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
		t.Fatal("handler must not run on a closed queue")
		return nil, nil
	})
	assert.True(t, errors.Is(err, queue.ErrClosed))
	assert.Nil(t, q.consumer, "no subscription is made after close")
	assert.NoError(t, q.Close())
}
