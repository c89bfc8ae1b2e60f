package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *Client {
	t.Helper()

	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := NewClient(s.Host(), port, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

type testSignals struct {
	AIScore   float64   `json:"ai_score"`
	Embedding []float32 `json:"embedding"`
}

func TestSignalsCacheRoundTrip(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()

	in := testSignals{AIScore: 92.5, Embedding: []float32{0.1, 0.2}}
	require.NoError(t, c.SetSignals(ctx, "hash-1", in, time.Hour))

	var out testSignals
	hit, err := c.GetSignals(ctx, "hash-1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)
}

func TestSignalsCacheMiss(t *testing.T) {
	c := setupTestRedis(t)

	var out testSignals
	hit, err := c.GetSignals(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestUnreadCounter(t *testing.T) {
	c := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.IncrementUnread(ctx, "user-1"))
	require.NoError(t, c.IncrementUnread(ctx, "user-1"))

	count, err := c.GetUnread(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, c.ResetUnread(ctx, "user-1"))

	count, err = c.GetUnread(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
