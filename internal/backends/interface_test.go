package backends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres", "postgresql"},
		{"PostgreSQL", "postgresql"},
		{"mariadb", "mysql"},
		{" sqlite3 ", "sqlite"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := Normalize("greptimedb")
	assert.Error(t, err)
}

func TestExtraOrDefault(t *testing.T) {
	var nilConfig *ConnectionConfig
	assert.Equal(t, "x", nilConfig.ExtraOrDefault("k", "x"))

	cfg := &ConnectionConfig{Extra: map[string]string{"sslmode": "require", "empty": ""}}
	assert.Equal(t, "require", cfg.ExtraOrDefault("sslmode", "disable"))
	assert.Equal(t, "d", cfg.ExtraOrDefault("empty", "d"))
	assert.Equal(t, "d", cfg.ExtraOrDefault("missing", "d"))
}
