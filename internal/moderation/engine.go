package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docshare/backend/internal/analysis"
	"github.com/docshare/backend/internal/metrics"
	"github.com/docshare/backend/internal/notification"
	"github.com/docshare/backend/internal/similarity"
	"github.com/docshare/backend/internal/storage/models"
	"github.com/docshare/backend/internal/vector/milvus"
	"github.com/docshare/backend/pkg/config"
	"github.com/docshare/backend/pkg/logger"
)

// Store is the slice of the sqlite client the decision engine depends on.
type Store interface {
	InsertDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	InsertModerationRecord(record *models.ModerationRecord) error
	GetLatestModerationRecord(documentID string) (*models.ModerationRecord, error)
	UpdateModerationStatus(recordID, status, notes string, moderatedAt time.Time) error
	NextModerationVersion(documentID string) (int, error)
	InsertSimilarityMatch(match *models.SimilarityMatch) error
	GetSimilarityMatch(id string) (*models.SimilarityMatch, error)
	GetMatchesByDocument(documentID string) ([]models.SimilarityMatch, error)
	ResolveSimilarityMatch(id, decision, notes string, resolvedAt time.Time) error
	CountPendingMatches(documentID string) (int, error)
}

// CandidateIndex serves nearest-neighbour retrieval over document embeddings.
type CandidateIndex interface {
	Upsert(ctx context.Context, vec milvus.DocumentVector) error
	SearchCandidates(ctx context.Context, queryEmbedding []float32, topK int, excludeDocumentID string) ([]milvus.Candidate, error)
}

// DuplicateGraph records confirmed duplicate relations between documents.
type DuplicateGraph interface {
	UpsertDocument(ctx context.Context, documentID, ownerID string) error
	RecordDuplicate(ctx context.Context, sourceDocumentID, targetDocumentID string, score float64) error
}

// Notifier delivers moderation outcomes to the uploading user.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) (*models.Notification, error)
}

// Engine runs the moderation state machine: every submission produces a new
// versioned moderation record, and every status transition notifies the
// uploader. The active policy is swappable at runtime; an invalid replacement
// is refused and the previous policy stays live.
type Engine struct {
	mu     sync.RWMutex
	policy config.ModerationConfig

	detector *similarity.Detector
	analyzer analysis.Analyzer
	store    Store
	index    CandidateIndex
	graph    DuplicateGraph
	notifier Notifier
}

func NewEngine(
	policy config.ModerationConfig,
	detector *similarity.Detector,
	analyzer analysis.Analyzer,
	store Store,
	index CandidateIndex,
	graph DuplicateGraph,
	notifier Notifier,
) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid moderation policy: %w", err)
	}

	return &Engine{
		policy:   policy,
		detector: detector,
		analyzer: analyzer,
		store:    store,
		index:    index,
		graph:    graph,
		notifier: notifier,
	}, nil
}

// Policy returns the currently active thresholds.
func (e *Engine) Policy() config.ModerationConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// SetPolicy swaps the active thresholds. The replacement is validated first;
// on failure the previous policy remains in effect and the error is returned.
func (e *Engine) SetPolicy(policy config.ModerationConfig) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid moderation policy: %w", err)
	}

	e.mu.Lock()
	e.policy = policy
	e.mu.Unlock()

	logger.Info("Moderation policy updated",
		zap.Float64("auto_approval_threshold", policy.AutoApprovalThreshold),
		zap.Float64("auto_reject_threshold", policy.AutoRejectThreshold),
	)

	return nil
}

// Submit stores a fingerprinted document and runs the full evaluation:
// external analysis, similarity sweep against indexed candidates, threshold
// decision, a new versioned moderation record, and an uploader notification.
func (e *Engine) Submit(ctx context.Context, doc *models.Document) (*models.ModerationRecord, error) {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	if err := e.store.InsertDocument(doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	if e.graph != nil {
		if err := e.graph.UpsertDocument(ctx, doc.ID, doc.OwnerID); err != nil {
			logger.Warn("Failed to upsert document node",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		}
	}

	signals, err := e.analyzer.Analyze(ctx, doc.CleanText)
	if err != nil {
		// Missing analysis output is not fatal: the document lands in the
		// manual-review queue instead of being scored.
		logger.Warn("Analysis unavailable, routing to manual review",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
		signals = nil
	}

	topPending, pendingCount := e.sweepSimilarity(ctx, doc, signals)

	version, err := e.store.NextModerationVersion(doc.ID)
	if err != nil {
		return nil, err
	}

	status, action := e.decide(signals, topPending, pendingCount)

	record := &models.ModerationRecord{
		ID:                uuid.New().String(),
		DocumentID:        doc.ID,
		Version:           version,
		Status:            status,
		RecommendedAction: action,
		CreatedAt:         time.Now(),
	}
	if signals != nil {
		aiScore := signals.AIScore
		reliabilityScore := signals.ReliabilityScore
		record.AIScore = &aiScore
		record.ReliabilityScore = &reliabilityScore
		record.SafetyFlags = signals.SafetyFlags
	} else {
		record.Notes = "analysis unavailable"
	}

	if err := e.store.InsertModerationRecord(record); err != nil {
		return nil, err
	}
	metrics.DecisionsTotal.WithLabelValues(status, "auto").Inc()

	if e.index != nil && signals != nil && len(signals.Embedding) > 0 {
		vec := milvus.DocumentVector{
			DocumentID:  doc.ID,
			OwnerID:     doc.OwnerID,
			ContentHash: doc.ContentHash,
			Embedding:   signals.Embedding,
			Timestamp:   time.Now(),
		}
		if err := e.index.Upsert(ctx, vec); err != nil {
			logger.Warn("Failed to index document embedding",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		}
	}

	e.notifyTransition(ctx, doc.OwnerID, doc.ID, status, version)

	logger.Info("Document evaluated",
		zap.String("document_id", doc.ID),
		zap.Int("version", version),
		zap.String("status", status),
		zap.Int("pending_matches", pendingCount),
	)

	return record, nil
}

// Resubmit re-evaluates an existing document after its content changed. The
// document must already exist; the new record gets the next version number
// and previous versions stay untouched.
func (e *Engine) Resubmit(ctx context.Context, doc *models.Document) (*models.ModerationRecord, error) {
	if _, err := e.store.GetDocument(doc.ID); err != nil {
		return nil, err
	}
	return e.Submit(ctx, doc)
}

// RecordHumanDecision applies a moderator's verdict to the latest moderation
// record. Moderators settle a document, they don't queue it: only approve and
// reject are valid verdicts, and both are accepted regardless of scores.
func (e *Engine) RecordHumanDecision(ctx context.Context, documentID, action, notes string) (*models.ModerationRecord, error) {
	var status string
	switch action {
	case models.ActionApprove:
		status = models.StatusApproved
	case models.ActionReject:
		status = models.StatusRejected
	default:
		return nil, fmt.Errorf("unknown moderation action: %q", action)
	}

	record, err := e.store.GetLatestModerationRecord(documentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := e.store.UpdateModerationStatus(record.ID, status, notes, now); err != nil {
		return nil, err
	}
	metrics.DecisionsTotal.WithLabelValues(status, "human").Inc()

	record.Status = status
	record.Notes = notes
	record.ModeratedAt = &now

	if doc, err := e.store.GetDocument(documentID); err == nil {
		e.notifyTransition(ctx, doc.OwnerID, documentID, status, record.Version)
	} else {
		logger.Warn("Failed to load document for notification",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
	}

	return record, nil
}

// ResolveMatch settles a pending similarity match as DUPLICATE or DISTINCT
// and re-runs the source document's evaluation, since a resolution may
// unblock an auto-approval that the pending match was suppressing. Resolved
// matches are immutable; a second resolution attempt fails.
func (e *Engine) ResolveMatch(ctx context.Context, matchID, decision, notes string) (*models.SimilarityMatch, error) {
	if decision != models.MatchDuplicate && decision != models.MatchDistinct {
		return nil, fmt.Errorf("unknown match decision: %q", decision)
	}

	match, err := e.store.GetSimilarityMatch(matchID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := e.store.ResolveSimilarityMatch(matchID, decision, notes, now); err != nil {
		return nil, err
	}

	match.Decision = decision
	match.Notes = notes
	match.ResolvedAt = &now

	if decision == models.MatchDuplicate && e.graph != nil {
		if err := e.graph.RecordDuplicate(ctx, match.SourceDocumentID, match.TargetDocumentID, match.Score); err != nil {
			logger.Warn("Failed to record duplicate relation",
				zap.String("match_id", matchID),
				zap.Error(err),
			)
		}
	}

	e.reEvaluate(ctx, match.SourceDocumentID)

	return match, nil
}

// sweepSimilarity compares the submitted document against its nearest
// indexed candidates and records every pair at or above the detection floor.
// It returns the highest pending match score for the document and the number
// of pending matches, across all submissions.
func (e *Engine) sweepSimilarity(ctx context.Context, doc *models.Document, signals *analysis.Signals) (float64, int) {
	source := similarity.Fingerprint{
		DocumentID:  doc.ID,
		ContentHash: doc.ContentHash,
		CleanText:   doc.CleanText,
		TokenSet:    doc.TokenSet,
	}
	if signals != nil {
		source.Embedding = signals.Embedding
	}

	if e.index != nil && len(source.Embedding) > 0 {
		candidates, err := e.index.SearchCandidates(ctx, source.Embedding, e.detector.CandidateLimit(), doc.ID)
		if err != nil {
			logger.Warn("Candidate search failed",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
		}

		for _, cand := range candidates {
			candDoc, err := e.store.GetDocument(cand.DocumentID)
			if err != nil {
				logger.Warn("Candidate document missing from store",
					zap.String("document_id", cand.DocumentID),
					zap.Error(err),
				)
				continue
			}

			target := similarity.Fingerprint{
				DocumentID:  candDoc.ID,
				ContentHash: candDoc.ContentHash,
				CleanText:   candDoc.CleanText,
				TokenSet:    candDoc.TokenSet,
			}

			result := e.detector.CompareScored(source, target, float64(cand.Score))
			if !e.detector.AboveFloor(result) {
				continue
			}

			match := &models.SimilarityMatch{
				ID:               uuid.New().String(),
				SourceDocumentID: doc.ID,
				TargetDocumentID: candDoc.ID,
				Score:            result.Score,
				SimilarityType:   result.SimilarityType,
				Decision:         models.MatchPending,
				CreatedAt:        time.Now(),
			}
			if err := e.store.InsertSimilarityMatch(match); err != nil {
				logger.Warn("Failed to record similarity match",
					zap.String("document_id", doc.ID),
					zap.Error(err),
				)
				continue
			}

			metrics.SimilarityMatchesRecorded.Inc()
			metrics.SimilarityScore.Observe(result.Score)
		}
	}

	return e.pendingMatchState(doc.ID)
}

func (e *Engine) pendingMatchState(documentID string) (float64, int) {
	matches, err := e.store.GetMatchesByDocument(documentID)
	if err != nil {
		logger.Warn("Failed to load similarity matches",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return 0, 0
	}

	top := 0.0
	pending := 0
	for _, m := range matches {
		if m.Decision != models.MatchPending {
			continue
		}
		pending++
		if m.Score > top {
			top = m.Score
		}
	}

	return top, pending
}

// decide runs the checkpoints as an ordered cascade: similarity auto-reject,
// then the similarity manual-review band (which holds the document for a
// human regardless of how it scored), and only then the score policy.
// Missing analysis output means manual review, and auto-approval is
// suppressed while any similarity match is still pending.
func (e *Engine) decide(signals *analysis.Signals, topPendingScore float64, pendingCount int) (string, string) {
	policy := e.Policy()

	if policy.SimilarityAutoReject && topPendingScore >= policy.SimilarityAutoRejectThreshold {
		return models.StatusRejected, models.ActionReject
	}

	if policy.SimilarityManualReview && topPendingScore >= policy.SimilarityManualReviewThreshold {
		return models.StatusPending, models.ActionReview
	}

	if signals == nil {
		return models.StatusPending, models.ActionReview
	}

	if policy.EnableAutoRejection && signals.AIScore <= policy.AutoRejectThreshold {
		return models.StatusRejected, models.ActionReject
	}

	if policy.EnableAutoApproval && signals.AIScore >= policy.AutoApprovalThreshold {
		if pendingCount > 0 {
			return models.StatusPending, models.ActionReview
		}
		return models.StatusApproved, models.ActionApprove
	}

	return models.StatusPending, models.ActionReview
}

// reEvaluate reconsiders a document whose latest record is still PENDING,
// using the scores that record already holds and the current match state.
// Approved and rejected records are final for their version and stay put.
func (e *Engine) reEvaluate(ctx context.Context, documentID string) {
	record, err := e.store.GetLatestModerationRecord(documentID)
	if err != nil {
		logger.Warn("Failed to load moderation record for re-evaluation",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return
	}
	if record.Status != models.StatusPending {
		return
	}

	var signals *analysis.Signals
	if record.AIScore != nil {
		signals = &analysis.Signals{
			AIScore:     *record.AIScore,
			SafetyFlags: record.SafetyFlags,
		}
		if record.ReliabilityScore != nil {
			signals.ReliabilityScore = *record.ReliabilityScore
		}
	}

	topPending, pendingCount := e.pendingMatchState(documentID)
	status, _ := e.decide(signals, topPending, pendingCount)
	if status == record.Status {
		return
	}

	now := time.Now()
	if err := e.store.UpdateModerationStatus(record.ID, status, "re-evaluated after similarity resolution", now); err != nil {
		logger.Warn("Failed to update status after re-evaluation",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return
	}
	metrics.DecisionsTotal.WithLabelValues(status, "auto").Inc()

	if doc, err := e.store.GetDocument(documentID); err == nil {
		e.notifyTransition(ctx, doc.OwnerID, documentID, status, record.Version)
	}

	logger.Info("Document re-evaluated",
		zap.String("document_id", documentID),
		zap.String("status", status),
	)
}

func (e *Engine) notifyTransition(ctx context.Context, ownerID, documentID, status string, version int) {
	var eventType string
	switch status {
	case models.StatusApproved:
		eventType = notification.EventModerationApproved
	case models.StatusRejected:
		eventType = notification.EventModerationRejected
	default:
		eventType = notification.EventModerationPending
	}

	_, err := e.notifier.NotifyUser(ctx, ownerID, eventType, map[string]interface{}{
		"document_id": documentID,
		"version":     version,
		"status":      status,
	})
	if err != nil {
		logger.Error("Failed to notify uploader of moderation transition",
			zap.String("document_id", documentID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}
