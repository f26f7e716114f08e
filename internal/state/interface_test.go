package state

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusDone(t *testing.T) {
	tests := []struct {
		status Status
		done   bool
	}{
		{StatusNA, false},
		{StatusFailed, false},
		{StatusSuccessful, true},
		{StatusApplied, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.done, tt.status.Done(), string(tt.status))
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" applied ")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, s)

	_, err = ParseStatus("pending")
	assert.Error(t, err)
}

func TestFiltersWhere(t *testing.T) {
	dollar := func(n int) string { return fmt.Sprintf("$%d", n) }

	where, args := (*Filters)(nil).Where(dollar)
	assert.Equal(t, " WHERE 1=1", where)
	assert.Empty(t, args)

	where, args = (&Filters{Module: "core", Status: StatusFailed}).Where(dollar)
	assert.Equal(t, " WHERE 1=1 AND module = $1 AND status = $2", where)
	assert.Equal(t, []any{"core", "FAILED"}, args)
}

func TestFiltersLimitClause(t *testing.T) {
	assert.Equal(t, "", (*Filters)(nil).LimitClause())
	assert.Equal(t, "", (&Filters{}).LimitClause())
	assert.Equal(t, " LIMIT 20", (&Filters{Limit: 20}).LimitClause())
}
