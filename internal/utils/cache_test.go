package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheExpiry(t *testing.T) {
	c, err := NewCache(10)
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set("k", "v", time.Minute)
	assert.Equal(t, "v", c.Get("k"))

	now = now.Add(2 * time.Minute)
	assert.Nil(t, c.Get("k"))
}

func TestCacheSeenRecently(t *testing.T) {
	c, err := NewCache(2)
	require.NoError(t, err)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	assert.False(t, c.SeenRecently("e1", time.Minute))
	assert.True(t, c.SeenRecently("e1", time.Minute))

	now = now.Add(time.Hour)
	assert.False(t, c.SeenRecently("e1", time.Minute))

	c.SeenRecently("e2", time.Hour)
	c.SeenRecently("e3", time.Hour)
	// e1 was evicted by size, not by time
	assert.False(t, c.SeenRecently("e1", time.Hour))
}

func TestNewCacheRejectsBadSize(t *testing.T) {
	_, err := NewCache(0)
	assert.Error(t, err)
}
