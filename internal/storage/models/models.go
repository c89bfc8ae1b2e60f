package models

import "time"

// Moderation statuses. Terminal states are re-entered only through an
// explicit re-submission, which inserts a new record version.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionReview  = "review"
)

// Similarity match decisions. DUPLICATE and DISTINCT are immutable once set;
// re-detection inserts a new match row.
const (
	MatchPending   = "PENDING"
	MatchDuplicate = "DUPLICATE"
	MatchDistinct  = "DISTINCT"
)

const (
	SimilarityHash      = "hash"
	SimilarityText      = "text"
	SimilarityEmbedding = "embedding"
	SimilarityCombined  = "combined"
)

type Document struct {
	ID          string
	OwnerID     string
	Title       string
	ContentHash string
	CleanText   string
	TokenSet    []string
	Visibility  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ModerationRecord is one versioned evaluation of a document. AIScore and
// ReliabilityScore are nil when the analysis collaborator produced no output
// for this version; a present zero is a real (worst-possible) score.
type ModerationRecord struct {
	ID                string
	DocumentID        string
	Version           int
	Status            string
	AIScore           *float64
	ReliabilityScore  *float64
	SafetyFlags       []string
	RecommendedAction string
	Notes             string
	ModeratedAt       *time.Time
	CreatedAt         time.Time
}

type SimilarityMatch struct {
	ID               string
	SourceDocumentID string
	TargetDocumentID string
	Score            float64
	SimilarityType   string
	Decision         string
	Notes            string
	CreatedAt        time.Time
	ResolvedAt       *time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	Payload   map[string]interface{}
	IsRead    bool
	ReadAt    *time.Time
	CreatedAt time.Time
}
