package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"
)

const weightTolerance = 1e-6

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Milvus     MilvusConfig
	Neo4j      Neo4jConfig
	Analysis   AnalysisConfig
	Auth       AuthConfig
	Moderation ModerationConfig
	Similarity SimilarityConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type MilvusConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type AnalysisConfig struct {
	APIKey         string
	EmbeddingModel string
	EmbeddingDim   int
	TimeoutSec     int
	CacheTTLMin    int
}

type AuthConfig struct {
	JWTSecret string
}

// ModerationConfig carries the decision thresholds. AI and reliability scores
// are 0-100, similarity thresholds 0.0-1.0.
type ModerationConfig struct {
	EnableAutoApproval              bool
	AutoApprovalThreshold           float64
	EnableAutoRejection             bool
	AutoRejectThreshold             float64
	SimilarityAutoReject            bool
	SimilarityAutoRejectThreshold   float64
	SimilarityManualReview          bool
	SimilarityManualReviewThreshold float64
}

// SimilarityConfig carries the five combination weights and the detection
// floor below which a pair is not recorded.
type SimilarityConfig struct {
	HashWeight        float64
	TextWeight        float64
	EmbeddingWeight   float64
	JaccardWeight     float64
	LevenshteinWeight float64
	DetectionFloor    float64
	CandidateLimit    int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/docshare")

	viper.SetEnvPrefix("DOCSHARE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that break the scoring invariants. Nothing
// is clamped or renormalized: an invalid change is refused outright so the
// previous configuration stays active.
func (c *Config) Validate() error {
	if err := c.Similarity.Validate(); err != nil {
		return err
	}
	return c.Moderation.Validate()
}

func (s *SimilarityConfig) Validate() error {
	for name, w := range map[string]float64{
		"hashWeight":        s.HashWeight,
		"textWeight":        s.TextWeight,
		"embeddingWeight":   s.EmbeddingWeight,
		"jaccardWeight":     s.JaccardWeight,
		"levenshteinWeight": s.LevenshteinWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("similarity weight %s out of range [0,1]: %v", name, w)
		}
	}

	if combined := s.HashWeight + s.TextWeight + s.EmbeddingWeight; math.Abs(combined-1.0) > weightTolerance {
		return fmt.Errorf("similarity combination weights must sum to 1.0, got %v", combined)
	}
	if text := s.JaccardWeight + s.LevenshteinWeight; math.Abs(text-1.0) > weightTolerance {
		return fmt.Errorf("text signal weights must sum to 1.0, got %v", text)
	}
	if s.DetectionFloor < 0 || s.DetectionFloor > 1 {
		return fmt.Errorf("detection floor out of range [0,1]: %v", s.DetectionFloor)
	}
	if s.CandidateLimit <= 0 {
		return fmt.Errorf("candidate limit must be positive, got %d", s.CandidateLimit)
	}

	return nil
}

func (m *ModerationConfig) Validate() error {
	if m.AutoApprovalThreshold < 0 || m.AutoApprovalThreshold > 100 {
		return fmt.Errorf("auto-approval threshold out of range [0,100]: %v", m.AutoApprovalThreshold)
	}
	if m.AutoRejectThreshold < 0 || m.AutoRejectThreshold > 100 {
		return fmt.Errorf("auto-reject threshold out of range [0,100]: %v", m.AutoRejectThreshold)
	}
	if m.EnableAutoApproval && m.EnableAutoRejection && m.AutoRejectThreshold >= m.AutoApprovalThreshold {
		return fmt.Errorf("auto-reject threshold (%v) must be below auto-approval threshold (%v)",
			m.AutoRejectThreshold, m.AutoApprovalThreshold)
	}

	for name, t := range map[string]float64{
		"similarityAutoRejectThreshold":   m.SimilarityAutoRejectThreshold,
		"similarityManualReviewThreshold": m.SimilarityManualReviewThreshold,
	} {
		if t < 0 || t > 1 {
			return fmt.Errorf("%s out of range [0,1]: %v", name, t)
		}
	}
	if m.SimilarityManualReviewThreshold >= m.SimilarityAutoRejectThreshold {
		return fmt.Errorf("manual-review threshold (%v) must be below auto-reject threshold (%v)",
			m.SimilarityManualReviewThreshold, m.SimilarityAutoRejectThreshold)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/docshare.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "document_embeddings")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("analysis.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("analysis.embeddingDim", 1536)
	viper.SetDefault("analysis.timeoutSec", 15)
	viper.SetDefault("analysis.cacheTTLMin", 1440)

	viper.SetDefault("auth.jwtSecret", "change-me")

	viper.SetDefault("moderation.enableAutoApproval", true)
	viper.SetDefault("moderation.autoApprovalThreshold", 90.0)
	viper.SetDefault("moderation.enableAutoRejection", true)
	viper.SetDefault("moderation.autoRejectThreshold", 20.0)
	viper.SetDefault("moderation.similarityAutoReject", true)
	viper.SetDefault("moderation.similarityAutoRejectThreshold", 0.90)
	viper.SetDefault("moderation.similarityManualReview", true)
	viper.SetDefault("moderation.similarityManualReviewThreshold", 0.70)

	viper.SetDefault("similarity.hashWeight", 0.3)
	viper.SetDefault("similarity.textWeight", 0.4)
	viper.SetDefault("similarity.embeddingWeight", 0.3)
	viper.SetDefault("similarity.jaccardWeight", 0.5)
	viper.SetDefault("similarity.levenshteinWeight", 0.5)
	viper.SetDefault("similarity.detectionFloor", 0.5)
	viper.SetDefault("similarity.candidateLimit", 20)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
