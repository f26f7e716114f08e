package lockfactory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/schemaflow/internal/lock"
)

func TestNewLocker(t *testing.T) {
	l, err := NewLocker(&LockConfig{})
	require.NoError(t, err)
	assert.IsType(t, &lock.Local{}, l)

	l, err = NewLocker(&LockConfig{Type: "NONE"})
	require.NoError(t, err)
	assert.IsType(t, lock.Noop{}, l)
}

func TestNewLockerErrors(t *testing.T) {
	tests := []struct {
		name    string
		config  LockConfig
		wantErr string
	}{
		{name: "advisory lock without pool", config: LockConfig{Type: "postgresql"}, wantErr: "requires a postgresql target"},
		{name: "etcd without endpoints", config: LockConfig{Type: "etcd"}, wantErr: "endpoint"},
		{name: "unknown", config: LockConfig{Type: "consul"}, wantErr: "unsupported lock type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocker(&tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
