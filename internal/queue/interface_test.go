package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeJob(t *testing.T) {
	failOnError := true
	job := &Job{FailOnError: &failOnError, RequestedBy: "api", Metadata: map[string]interface{}{"ticket": "OPS-1"}}

	data, err := EncodeJob(job)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID, "an id is assigned on publish")

	decoded, err := DecodeJob(data, "ignored")
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	require.NotNil(t, decoded.FailOnError)
	assert.True(t, *decoded.FailOnError)
	assert.Equal(t, "OPS-1", decoded.Metadata["ticket"])
}

func TestDecodeJobFallbackID(t *testing.T) {
	job, err := DecodeJob([]byte(`{"requested_by":"cli"}`), "from-header")
	require.NoError(t, err)
	assert.Equal(t, "from-header", job.ID)
	assert.Nil(t, job.FailOnError)

	_, err = DecodeJob([]byte(`{not json`), "x")
	assert.Error(t, err)
}

func TestLogResult(t *testing.T) {
	var infos, warns []string
	infof := func(format string, args ...interface{}) { infos = append(infos, fmt.Sprintf(format, args...)) }
	warnf := func(format string, args ...interface{}) { warns = append(warns, fmt.Sprintf(format, args...)) }

	LogResult(nil, infof, warnf)
	LogResult(&JobResult{JobID: "j1", Success: true, ScriptCount: 2}, infof, warnf)
	LogResult(&JobResult{JobID: "j2", Errors: []string{"boom"}}, infof, warnf)

	require.Len(t, infos, 1)
	assert.Contains(t, infos[0], "j1")
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "boom")
}
