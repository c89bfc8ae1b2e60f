package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docshare/backend/internal/storage/models"
	"github.com/docshare/backend/pkg/logger"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrMatchResolved = errors.New("similarity match already resolved")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		clean_text TEXT,
		token_set TEXT,
		visibility TEXT NOT NULL DEFAULT 'private',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
	CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);

	CREATE TABLE IF NOT EXISTS moderation_records (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		status TEXT NOT NULL,
		ai_score REAL,
		reliability_score REAL,
		safety_flags TEXT,
		recommended_action TEXT,
		notes TEXT,
		moderated_at INTEGER,
		created_at INTEGER NOT NULL,
		UNIQUE(document_id, version),
		FOREIGN KEY (document_id) REFERENCES documents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_moderation_document ON moderation_records(document_id);
	CREATE INDEX IF NOT EXISTS idx_moderation_status ON moderation_records(status);

	CREATE TABLE IF NOT EXISTS similarity_matches (
		id TEXT PRIMARY KEY,
		source_document_id TEXT NOT NULL,
		target_document_id TEXT NOT NULL,
		score REAL NOT NULL,
		similarity_type TEXT NOT NULL,
		decision TEXT NOT NULL DEFAULT 'PENDING',
		notes TEXT,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER,
		FOREIGN KEY (source_document_id) REFERENCES documents(id),
		FOREIGN KEY (target_document_id) REFERENCES documents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_matches_source ON similarity_matches(source_document_id);
	CREATE INDEX IF NOT EXISTS idx_matches_decision ON similarity_matches(decision);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		payload TEXT,
		is_read INTEGER NOT NULL DEFAULT 0,
		read_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
	CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(doc *models.Document) error {
	tokensJSON, _ := json.Marshal(doc.TokenSet)

	query := `
		INSERT INTO documents (id, owner_id, title, content_hash, clean_text, token_set, visibility, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content_hash = excluded.content_hash,
			clean_text = excluded.clean_text,
			token_set = excluded.token_set,
			visibility = excluded.visibility,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.ContentHash,
		doc.CleanText,
		string(tokensJSON),
		doc.Visibility,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID))
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, owner_id, title, content_hash, clean_text, token_set, visibility, created_at, updated_at
		FROM documents WHERE id = ?`

	var doc models.Document
	var tokensJSON string
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Title,
		&doc.ContentHash,
		&doc.CleanText,
		&tokensJSON,
		&doc.Visibility,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	json.Unmarshal([]byte(tokensJSON), &doc.TokenSet)
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

func (c *Client) InsertModerationRecord(record *models.ModerationRecord) error {
	flagsJSON, _ := json.Marshal(record.SafetyFlags)

	var moderatedAt interface{}
	if record.ModeratedAt != nil {
		moderatedAt = record.ModeratedAt.Unix()
	}

	query := `
		INSERT INTO moderation_records (id, document_id, version, status, ai_score, reliability_score,
			safety_flags, recommended_action, notes, moderated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.DocumentID,
		record.Version,
		record.Status,
		record.AIScore,
		record.ReliabilityScore,
		string(flagsJSON),
		record.RecommendedAction,
		record.Notes,
		moderatedAt,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert moderation record: %w", err)
	}

	logger.Info("Moderation record inserted",
		zap.String("document_id", record.DocumentID),
		zap.Int("version", record.Version),
		zap.String("status", record.Status),
	)

	return nil
}

func (c *Client) GetLatestModerationRecord(documentID string) (*models.ModerationRecord, error) {
	query := `
		SELECT id, document_id, version, status, ai_score, reliability_score, safety_flags,
			recommended_action, notes, moderated_at, created_at
		FROM moderation_records
		WHERE document_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	var r models.ModerationRecord
	var aiScore, reliabilityScore sql.NullFloat64
	var flagsJSON string
	var moderatedAt sql.NullInt64
	var createdAt int64

	err := c.db.QueryRow(query, documentID).Scan(
		&r.ID,
		&r.DocumentID,
		&r.Version,
		&r.Status,
		&aiScore,
		&reliabilityScore,
		&flagsJSON,
		&r.RecommendedAction,
		&r.Notes,
		&moderatedAt,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get moderation record: %w", err)
	}

	json.Unmarshal([]byte(flagsJSON), &r.SafetyFlags)
	if aiScore.Valid {
		r.AIScore = &aiScore.Float64
	}
	if reliabilityScore.Valid {
		r.ReliabilityScore = &reliabilityScore.Float64
	}
	if moderatedAt.Valid {
		t := time.Unix(moderatedAt.Int64, 0)
		r.ModeratedAt = &t
	}
	r.CreatedAt = time.Unix(createdAt, 0)

	return &r, nil
}

func (c *Client) UpdateModerationStatus(recordID, status, notes string, moderatedAt time.Time) error {
	query := `UPDATE moderation_records SET status = ?, notes = ?, moderated_at = ? WHERE id = ?`

	result, err := c.db.Exec(query, status, notes, moderatedAt.Unix(), recordID)
	if err != nil {
		return fmt.Errorf("failed to update moderation status: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	logger.Info("Moderation status updated",
		zap.String("record_id", recordID),
		zap.String("status", status),
	)

	return nil
}

func (c *Client) NextModerationVersion(documentID string) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) + 1 FROM moderation_records WHERE document_id = ?`

	var version int
	err := c.db.QueryRow(query, documentID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get next moderation version: %w", err)
	}

	return version, nil
}

func (c *Client) InsertSimilarityMatch(match *models.SimilarityMatch) error {
	query := `
		INSERT INTO similarity_matches (id, source_document_id, target_document_id, score,
			similarity_type, decision, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		match.ID,
		match.SourceDocumentID,
		match.TargetDocumentID,
		match.Score,
		match.SimilarityType,
		match.Decision,
		match.Notes,
		match.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert similarity match: %w", err)
	}

	logger.Info("Similarity match recorded",
		zap.String("source", match.SourceDocumentID),
		zap.String("target", match.TargetDocumentID),
		zap.Float64("score", match.Score),
	)

	return nil
}

func (c *Client) GetSimilarityMatch(id string) (*models.SimilarityMatch, error) {
	query := `SELECT id, source_document_id, target_document_id, score, similarity_type,
		decision, notes, created_at, resolved_at FROM similarity_matches WHERE id = ?`

	var m models.SimilarityMatch
	var createdAt int64
	var resolvedAt sql.NullInt64

	err := c.db.QueryRow(query, id).Scan(
		&m.ID,
		&m.SourceDocumentID,
		&m.TargetDocumentID,
		&m.Score,
		&m.SimilarityType,
		&m.Decision,
		&m.Notes,
		&createdAt,
		&resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get similarity match: %w", err)
	}

	m.CreatedAt = time.Unix(createdAt, 0)
	if resolvedAt.Valid {
		t := time.Unix(resolvedAt.Int64, 0)
		m.ResolvedAt = &t
	}

	return &m, nil
}

func (c *Client) GetMatchesByDocument(documentID string) ([]models.SimilarityMatch, error) {
	query := `SELECT id, source_document_id, target_document_id, score, similarity_type,
		decision, notes, created_at, resolved_at
		FROM similarity_matches WHERE source_document_id = ? ORDER BY score DESC`

	rows, err := c.db.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get similarity matches: %w", err)
	}
	defer rows.Close()

	var matches []models.SimilarityMatch
	for rows.Next() {
		var m models.SimilarityMatch
		var createdAt int64
		var resolvedAt sql.NullInt64

		err := rows.Scan(
			&m.ID,
			&m.SourceDocumentID,
			&m.TargetDocumentID,
			&m.Score,
			&m.SimilarityType,
			&m.Decision,
			&m.Notes,
			&createdAt,
			&resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.CreatedAt = time.Unix(createdAt, 0)
		if resolvedAt.Valid {
			t := time.Unix(resolvedAt.Int64, 0)
			m.ResolvedAt = &t
		}
		matches = append(matches, m)
	}

	return matches, nil
}

// ResolveSimilarityMatch flips a PENDING match to DUPLICATE or DISTINCT.
// Resolved matches are immutable: resolving twice returns ErrMatchResolved.
func (c *Client) ResolveSimilarityMatch(id, decision, notes string, resolvedAt time.Time) error {
	query := `UPDATE similarity_matches SET decision = ?, notes = ?, resolved_at = ?
		WHERE id = ? AND decision = 'PENDING'`

	result, err := c.db.Exec(query, decision, notes, resolvedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve similarity match: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		if _, getErr := c.GetSimilarityMatch(id); getErr != nil {
			return getErr
		}
		return ErrMatchResolved
	}

	logger.Info("Similarity match resolved",
		zap.String("match_id", id),
		zap.String("decision", decision),
	)

	return nil
}

func (c *Client) CountPendingMatches(documentID string) (int, error) {
	query := `SELECT COUNT(*) FROM similarity_matches WHERE source_document_id = ? AND decision = 'PENDING'`

	var count int
	err := c.db.QueryRow(query, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending matches: %w", err)
	}

	return count, nil
}

func (c *Client) InsertNotification(n *models.Notification) error {
	payloadJSON, _ := json.Marshal(n.Payload)

	query := `
		INSERT INTO notifications (id, user_id, type, title, message, payload, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`

	_, err := c.db.Exec(
		query,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		string(payloadJSON),
		n.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	logger.Debug("Notification persisted",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type),
	)

	return nil
}

func (c *Client) GetNotifications(userID string, limit int) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, type, title, message, payload, is_read, read_at, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var payloadJSON string
		var isRead int
		var readAt sql.NullInt64
		var createdAt int64

		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Message,
			&payloadJSON,
			&isRead,
			&readAt,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(payloadJSON), &n.Payload)
		n.IsRead = isRead == 1
		if readAt.Valid {
			t := time.Unix(readAt.Int64, 0)
			n.ReadAt = &t
		}
		n.CreatedAt = time.Unix(createdAt, 0)
		notifications = append(notifications, n)
	}

	return notifications, nil
}

func (c *Client) MarkNotificationRead(id string, readAt time.Time) error {
	query := `UPDATE notifications SET is_read = 1, read_at = ? WHERE id = ? AND is_read = 0`

	result, err := c.db.Exec(query, readAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (c *Client) CountUnreadNotifications(userID string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`

	var count int
	err := c.db.QueryRow(query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	return count, nil
}
