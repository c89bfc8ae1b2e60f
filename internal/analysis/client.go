package analysis

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/circuitbreaker"
	"github.com/docshare/backend/pkg/logger"
	"github.com/docshare/backend/pkg/retry"
)

// Signals is the raw scoring input produced by the external content-analysis
// collaborator. AIScore and ReliabilityScore are 0-100.
type Signals struct {
	AIScore          float64   `json:"ai_score"`
	ReliabilityScore float64   `json:"reliability_score"`
	SafetyFlags      []string  `json:"safety_flags"`
	Embedding        []float32 `json:"embedding"`
}

// Analyzer is the collaborator boundary. The decision engine consumes its
// output and never computes these features itself.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*Signals, error)
}

// Client is an Analyzer backed by the OpenAI moderation and embedding
// endpoints.
type Client struct {
	client         *openai.Client
	embeddingModel string
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(apiKey, embeddingModel string, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("analysis", circuitbreaker.Config{
		MaxRequests:      5,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Analysis client initialized", zap.String("embedding_model", embeddingModel))

	return &Client{
		client:         client,
		embeddingModel: embeddingModel,
		timeout:        time.Duration(timeoutSec) * time.Second,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Analyze(ctx context.Context, text string) (*Signals, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	signals := &Signals{}

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.Moderations(ctx, openai.ModerationRequest{
				Input: text,
				Model: openai.ModerationTextStable,
			})
			if err != nil {
				return fmt.Errorf("failed to run moderation: %w", err)
			}

			if len(resp.Results) == 0 {
				return fmt.Errorf("moderation returned no results")
			}

			result := resp.Results[0]
			scores := categoryScores(result)

			var maxScore, sum float64
			for flag, score := range scores {
				sum += score
				if score > maxScore {
					maxScore = score
				}
				if score >= 0.5 {
					signals.SafetyFlags = append(signals.SafetyFlags, flag)
				}
			}

			signals.AIScore = (1.0 - maxScore) * 100.0
			signals.ReliabilityScore = (1.0 - sum/float64(len(scores))) * 100.0

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	embedding, err := c.generateEmbedding(ctx, text)
	if err != nil {
		// The embedding signal is optional: scoring degrades to the
		// hash/text signals instead of failing the whole evaluation.
		logger.Warn("Failed to generate embedding", zap.Error(err))
	} else {
		signals.Embedding = embedding
	}

	logger.Debug("Document analyzed",
		zap.Float64("ai_score", signals.AIScore),
		zap.Int("safety_flags", len(signals.SafetyFlags)),
	)

	return signals, nil
}

func (c *Client) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			for i, v := range resp.Data[0].Embedding {
				embedding[i] = v
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return embedding, nil
}

func categoryScores(result openai.Result) map[string]float64 {
	return map[string]float64{
		"hate":             float64(result.CategoryScores.Hate),
		"hate/threatening": float64(result.CategoryScores.HateThreatening),
		"self-harm":        float64(result.CategoryScores.SelfHarm),
		"sexual":           float64(result.CategoryScores.Sexual),
		"sexual/minors":    float64(result.CategoryScores.SexualMinors),
		"violence":         float64(result.CategoryScores.Violence),
		"violence/graphic": float64(result.CategoryScores.ViolenceGraphic),
	}
}
