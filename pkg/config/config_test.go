package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSimilarity() SimilarityConfig {
	return SimilarityConfig{
		HashWeight:        0.3,
		TextWeight:        0.4,
		EmbeddingWeight:   0.3,
		JaccardWeight:     0.5,
		LevenshteinWeight: 0.5,
		DetectionFloor:    0.5,
		CandidateLimit:    20,
	}
}

func validModeration() ModerationConfig {
	return ModerationConfig{
		EnableAutoApproval:              true,
		AutoApprovalThreshold:           90,
		EnableAutoRejection:             true,
		AutoRejectThreshold:             20,
		SimilarityAutoReject:            true,
		SimilarityAutoRejectThreshold:   0.90,
		SimilarityManualReview:          true,
		SimilarityManualReviewThreshold: 0.70,
	}
}

func TestSimilarityValidateAcceptsDefaults(t *testing.T) {
	cfg := validSimilarity()
	require.NoError(t, cfg.Validate())
}

func TestSimilarityValidateRejectsBadCombinationSum(t *testing.T) {
	cfg := validSimilarity()
	cfg.HashWeight = 0.5 // 0.5+0.4+0.3 != 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "combination weights")
}

func TestSimilarityValidateRejectsBadTextSum(t *testing.T) {
	cfg := validSimilarity()
	cfg.JaccardWeight = 0.7
	cfg.LevenshteinWeight = 0.7
	require.Error(t, cfg.Validate())
}

func TestSimilarityValidateToleratesFloatDrift(t *testing.T) {
	cfg := validSimilarity()
	cfg.HashWeight = 0.1
	cfg.TextWeight = 0.2
	cfg.EmbeddingWeight = 0.7 // 0.1+0.2+0.7 accumulates float error within 1e-6
	require.NoError(t, cfg.Validate())
}

func TestSimilarityValidateRejectsWeightOutOfRange(t *testing.T) {
	cfg := validSimilarity()
	cfg.HashWeight = 1.3
	cfg.TextWeight = -0.6
	require.Error(t, cfg.Validate())
}

func TestModerationValidateRejectsReviewAboveReject(t *testing.T) {
	cfg := validModeration()
	cfg.SimilarityManualReviewThreshold = 0.95
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manual-review threshold")
}

func TestModerationValidateRejectsEqualThresholds(t *testing.T) {
	cfg := validModeration()
	cfg.SimilarityManualReviewThreshold = cfg.SimilarityAutoRejectThreshold
	require.Error(t, cfg.Validate())
}

func TestModerationValidateRejectsInvertedScoreThresholds(t *testing.T) {
	cfg := validModeration()
	cfg.AutoRejectThreshold = 95
	require.Error(t, cfg.Validate())
}

func TestModerationValidateAcceptsDisabledCheckpointRanges(t *testing.T) {
	// With auto-rejection disabled the reject threshold no longer constrains
	// the approval threshold.
	cfg := validModeration()
	cfg.EnableAutoRejection = false
	cfg.AutoRejectThreshold = 95
	require.NoError(t, cfg.Validate())
}
