package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshare/backend/internal/storage/models"
	"github.com/docshare/backend/pkg/config"
)

func testConfig() config.SimilarityConfig {
	return config.SimilarityConfig{
		HashWeight:        0.3,
		TextWeight:        0.4,
		EmbeddingWeight:   0.3,
		JaccardWeight:     0.5,
		LevenshteinWeight: 0.5,
		DetectionFloor:    0.5,
		CandidateLimit:    20,
	}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()

	d, err := NewDetector(testConfig())
	require.NoError(t, err)
	return d
}

func TestNewDetectorRejectsInvalidWeights(t *testing.T) {
	cfg := testConfig()
	cfg.JaccardWeight = 0.9 // 0.9 + 0.5 != 1.0

	_, err := NewDetector(cfg)
	require.Error(t, err)
}

func TestCompareIdenticalDocuments(t *testing.T) {
	d := newTestDetector(t)

	fp := Fingerprint{
		DocumentID:  "doc-1",
		ContentHash: "abc123",
		CleanText:   "the quick brown fox",
		TokenSet:    []string{"the", "quick", "brown", "fox"},
		Embedding:   []float32{0.5, 0.5, 0.1},
	}

	result := d.Compare(fp, fp)
	assert.InDelta(t, 1.0, result.Score, 1e-9)
	assert.Equal(t, models.SimilarityCombined, result.SimilarityType)
}

func TestCompareIsDeterministic(t *testing.T) {
	d := newTestDetector(t)

	a := Fingerprint{
		ContentHash: "h1",
		CleanText:   "machine learning pipelines in production",
		TokenSet:    []string{"machine", "learning", "pipelines", "in", "production"},
		Embedding:   []float32{0.2, 0.7, 0.1, 0.4},
	}
	b := Fingerprint{
		ContentHash: "h2",
		CleanText:   "machine learning systems in production environments",
		TokenSet:    []string{"machine", "learning", "systems", "in", "production", "environments"},
		Embedding:   []float32{0.25, 0.65, 0.15, 0.35},
	}

	first := d.Compare(a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.Compare(a, b))
	}
}

func TestCompareDisjointDocuments(t *testing.T) {
	d := newTestDetector(t)

	a := Fingerprint{
		ContentHash: "h1",
		CleanText:   "aaaa",
		TokenSet:    []string{"aaaa"},
		Embedding:   []float32{1, 0},
	}
	b := Fingerprint{
		ContentHash: "h2",
		CleanText:   "zzzz",
		TokenSet:    []string{"zzzz"},
		Embedding:   []float32{0, 1},
	}

	result := d.Compare(a, b)
	assert.Less(t, result.Score, 0.1)
	assert.False(t, d.AboveFloor(result))
}

func TestCompareMissingEmbeddingZeroesSignalOnly(t *testing.T) {
	d := newTestDetector(t)

	a := Fingerprint{
		ContentHash: "same",
		CleanText:   "identical text",
		TokenSet:    []string{"identical", "text"},
	}
	b := Fingerprint{
		ContentHash: "same",
		CleanText:   "identical text",
		TokenSet:    []string{"identical", "text"},
		Embedding:   []float32{0.1, 0.2},
	}

	// hash 1.0 and text 1.0 still contribute; embedding contributes 0.
	result := d.Compare(a, b)
	assert.InDelta(t, 0.7, result.Score, 1e-9)
}

func TestCompareHashOnlySignalType(t *testing.T) {
	d := newTestDetector(t)

	a := Fingerprint{ContentHash: "same"}
	b := Fingerprint{ContentHash: "same"}

	result := d.Compare(a, b)
	assert.InDelta(t, 0.3, result.Score, 1e-9)
	assert.Equal(t, models.SimilarityHash, result.SimilarityType)
}

func TestScoreMonotonicInSubScores(t *testing.T) {
	d := newTestDetector(t)

	base := Fingerprint{
		ContentHash: "h-base",
		CleanText:   "alpha beta gamma delta",
		TokenSet:    []string{"alpha", "beta", "gamma", "delta"},
	}
	distant := Fingerprint{
		ContentHash: "h-far",
		CleanText:   "omega psi chi",
		TokenSet:    []string{"omega", "psi", "chi"},
	}
	closer := Fingerprint{
		ContentHash: "h-near",
		CleanText:   "alpha beta gamma epsilon",
		TokenSet:    []string{"alpha", "beta", "gamma", "epsilon"},
	}

	assert.Greater(t, d.Compare(base, closer).Score, d.Compare(base, distant).Score)
}

func TestCompareScoredClampsIndexScore(t *testing.T) {
	d := newTestDetector(t)

	a := Fingerprint{ContentHash: "h1"}
	b := Fingerprint{ContentHash: "h2"}

	// inner-product index scores can drift slightly outside [0,1]
	inflated := d.CompareScored(a, b, 1.2)
	assert.InDelta(t, 0.3, inflated.Score, 1e-9)

	negative := d.CompareScored(a, b, -0.4)
	assert.InDelta(t, 0.0, negative.Score, 1e-9)
}

func TestJaccardSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, jaccardSimilarity([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 0.0, jaccardSimilarity([]string{"a"}, []string{"b"}), 1e-9)
	assert.InDelta(t, 1.0/3.0, jaccardSimilarity([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.InDelta(t, 0.0, jaccardSimilarity(nil, nil), 1e-9)
}

func TestLevenshteinSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, levenshteinSimilarity("kitten", "kitten"), 1e-9)
	// kitten -> sitting is 3 edits over max length 7.
	assert.InDelta(t, 1.0-3.0/7.0, levenshteinSimilarity("kitten", "sitting"), 1e-9)
	assert.InDelta(t, 0.0, levenshteinSimilarity("", "abcd"), 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}), 1e-9)
}
