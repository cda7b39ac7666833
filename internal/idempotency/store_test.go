package idempotency

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenAndMark(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "deliveries.json"))
	require.NoError(t, err)

	assert.False(t, s.Seen("slack:D1"), "first delivery passes through")
	s.Mark("slack:D1", time.Hour)
	assert.True(t, s.Seen("slack:D1"), "redelivery inside TTL is a duplicate")
	assert.False(t, s.Seen("slack:D2"), "distinct delivery passes through")
}

func TestExpiredKeysAreReusable(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "deliveries.json"))
	require.NoError(t, err)

	s.Mark("hook:D1", -time.Second)
	assert.False(t, s.Seen("hook:D1"), "expired key is not a duplicate")
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliveries.json")

	s, err := NewStore(path)
	require.NoError(t, err)
	s.Mark("slack:D1", time.Hour)
	require.NoError(t, s.Save())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	assert.True(t, reopened.Seen("slack:D1"))
}

func TestPrune(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "deliveries.json"))
	require.NoError(t, err)

	s.Mark("expired", -time.Minute)
	s.Mark("live", time.Hour)

	assert.Equal(t, 1, s.Prune())
	assert.True(t, s.Seen("live"))
}
