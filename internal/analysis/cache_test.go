package analysis

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshare/backend/internal/cache/redis"
)

type countingAnalyzer struct {
	calls   int
	signals *Signals
	err     error
}

func (a *countingAnalyzer) Analyze(ctx context.Context, text string) (*Signals, error) {
	a.calls++
	return a.signals, a.err
}

func setupCache(t *testing.T) SignalsCache {
	t.Helper()

	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := redis.NewClient(s.Host(), port, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestCachedAnalyzerMemoizesByContent(t *testing.T) {
	upstream := &countingAnalyzer{signals: &Signals{
		AIScore:          88,
		ReliabilityScore: 90,
		Embedding:        []float32{0.5, 0.5},
	}}
	cached := NewCachedAnalyzer(upstream, setupCache(t), time.Hour)
	ctx := context.Background()

	first, err := cached.Analyze(ctx, "same content")
	require.NoError(t, err)

	second, err := cached.Analyze(ctx, "same content")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, first.AIScore, second.AIScore)
	assert.Equal(t, first.Embedding, second.Embedding)
}

func TestCachedAnalyzerDistinguishesContent(t *testing.T) {
	upstream := &countingAnalyzer{signals: &Signals{AIScore: 88}}
	cached := NewCachedAnalyzer(upstream, setupCache(t), time.Hour)
	ctx := context.Background()

	_, err := cached.Analyze(ctx, "content a")
	require.NoError(t, err)
	_, err = cached.Analyze(ctx, "content b")
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.calls)
}

func TestCachedAnalyzerDoesNotCacheFailures(t *testing.T) {
	upstream := &countingAnalyzer{err: errors.New("upstream down")}
	cached := NewCachedAnalyzer(upstream, setupCache(t), time.Hour)
	ctx := context.Background()

	_, err := cached.Analyze(ctx, "content")
	require.Error(t, err)

	upstream.err = nil
	upstream.signals = &Signals{AIScore: 75}

	signals, err := cached.Analyze(ctx, "content")
	require.NoError(t, err)
	assert.Equal(t, 75.0, signals.AIScore)
	assert.Equal(t, 2, upstream.calls)
}
