package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/logger"
	"github.com/docshare/backend/pkg/utils"
)

type SignalsCache interface {
	GetSignals(ctx context.Context, contentHash string, signals interface{}) (bool, error)
	SetSignals(ctx context.Context, contentHash string, signals interface{}, ttl time.Duration) error
}

// CachedAnalyzer memoizes analyzer output by content hash, so resubmitting
// unchanged content skips the collaborator call.
type CachedAnalyzer struct {
	analyzer Analyzer
	cache    SignalsCache
	ttl      time.Duration
}

func NewCachedAnalyzer(analyzer Analyzer, cache SignalsCache, ttl time.Duration) *CachedAnalyzer {
	return &CachedAnalyzer{
		analyzer: analyzer,
		cache:    cache,
		ttl:      ttl,
	}
}

func (c *CachedAnalyzer) Analyze(ctx context.Context, text string) (*Signals, error) {
	contentHash := utils.HashContent(text)

	var cached Signals
	hit, err := c.cache.GetSignals(ctx, contentHash, &cached)
	if err != nil {
		logger.Warn("Failed to read signals cache", zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	signals, err := c.analyzer.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetSignals(ctx, contentHash, signals, c.ttl); err != nil {
		logger.Warn("Failed to write signals cache", zap.Error(err))
	}

	return signals, nil
}
