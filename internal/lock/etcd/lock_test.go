package etcd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoints(t *testing.T) {
	assert.Equal(t, []string{"a:2379", "b:2379"}, ParseEndpoints(" a:2379, ,b:2379 "))
	assert.Nil(t, ParseEndpoints(""))
}

func TestConfigDefaults(t *testing.T) {
	c := Config{Prefix: "/custom"}
	c.setDefaults()
	assert.Equal(t, "/custom/", c.Prefix)
	assert.Equal(t, 5*time.Second, c.DialTimeout)
	assert.Equal(t, 60*time.Second, c.TTL)

	l := &Locker{config: c}
	assert.Equal(t, "/custom/schemaflow:migrate", l.lockKey("/schemaflow:migrate"))
}

func TestNewLockerRequiresEndpoints(t *testing.T) {
	_, err := NewLocker(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}
