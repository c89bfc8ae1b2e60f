package similarity

import (
	"fmt"
	"math"

	"github.com/docshare/backend/internal/storage/models"
	"github.com/docshare/backend/pkg/config"
)

// Fingerprint is the per-document input to pairwise comparison. The embedding
// comes from the external analysis collaborator and may be absent, in which
// case the embedding signal contributes zero.
type Fingerprint struct {
	DocumentID  string
	ContentHash string
	CleanText   string
	TokenSet    []string
	Embedding   []float32
}

type Result struct {
	Score          float64
	SimilarityType string
}

// Detector combines hash, text and embedding signals into one similarity
// score per document pair. Compare is deterministic and side-effect-free.
type Detector struct {
	cfg config.SimilarityConfig
}

func NewDetector(cfg config.SimilarityConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid similarity configuration: %w", err)
	}

	return &Detector{cfg: cfg}, nil
}

func (d *Detector) DetectionFloor() float64 {
	return d.cfg.DetectionFloor
}

func (d *Detector) CandidateLimit() int {
	return d.cfg.CandidateLimit
}

// Compare scores a document pair. The combined score is the weighted sum of
// the three signals; the dominant signal names the similarity type.
func (d *Detector) Compare(a, b Fingerprint) Result {
	embeddingScore := 0.0
	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		embeddingScore = cosineSimilarity(a.Embedding, b.Embedding)
	}

	return d.CompareScored(a, b, embeddingScore)
}

// CompareScored is Compare with the embedding signal supplied by the caller,
// for callers that hold an index-side vector score instead of the candidate's
// raw embedding.
func (d *Detector) CompareScored(a, b Fingerprint, embeddingScore float64) Result {
	hashScore := 0.0
	if a.ContentHash != "" && a.ContentHash == b.ContentHash {
		hashScore = 1.0
	}

	jaccard := jaccardSimilarity(a.TokenSet, b.TokenSet)
	levenshtein := levenshteinSimilarity(a.CleanText, b.CleanText)
	textScore := d.cfg.JaccardWeight*jaccard + d.cfg.LevenshteinWeight*levenshtein

	if embeddingScore < 0 {
		embeddingScore = 0
	}
	if embeddingScore > 1 {
		embeddingScore = 1
	}

	combined := d.cfg.HashWeight*hashScore +
		d.cfg.TextWeight*textScore +
		d.cfg.EmbeddingWeight*embeddingScore

	return Result{
		Score:          combined,
		SimilarityType: dominantType(d.cfg, hashScore, textScore, embeddingScore),
	}
}

// AboveFloor reports whether a pair should be recorded as a match at all.
// Below-floor pairs are discarded, not stored.
func (d *Detector) AboveFloor(r Result) bool {
	return r.Score >= d.cfg.DetectionFloor
}

func dominantType(cfg config.SimilarityConfig, hash, text, embedding float64) string {
	weighted := map[string]float64{
		models.SimilarityHash:      cfg.HashWeight * hash,
		models.SimilarityText:      cfg.TextWeight * text,
		models.SimilarityEmbedding: cfg.EmbeddingWeight * embedding,
	}

	contributing := 0
	best := models.SimilarityCombined
	bestScore := 0.0
	for name, score := range weighted {
		if score > 0 {
			contributing++
		}
		if score > bestScore {
			best = name
			bestScore = score
		}
	}

	if contributing > 1 {
		return models.SimilarityCombined
	}
	return best
}

func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(a))
	for _, token := range a {
		setA[token] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, token := range b {
		setB[token] = struct{}{}
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// levenshteinSimilarity normalizes edit distance into [0,1], where 1 means
// identical text. Runs on runes so multi-byte content compares correctly.
func levenshteinSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	distance := levenshteinDistance(ra, rb)
	return 1.0 - float64(distance)/float64(maxLen)
}

func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min3(
				prev[j]+1,
				curr[j-1]+1,
				prev[j-1]+cost,
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
