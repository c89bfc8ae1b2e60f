package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshare/backend/internal/storage/models"
)

func floatPtr(v float64) *float64 {
	return &v
}

func setupTestDB(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })

	return client
}

func insertTestDocument(t *testing.T, c *Client, id, owner string) {
	t.Helper()

	require.NoError(t, c.InsertDocument(&models.Document{
		ID:          id,
		OwnerID:     owner,
		Title:       "test doc",
		ContentHash: "hash-" + id,
		CleanText:   "some text",
		TokenSet:    []string{"some", "text"},
		Visibility:  "public",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))
}

func TestInsertAndGetDocument(t *testing.T) {
	c := setupTestDB(t)
	insertTestDocument(t, c, "doc-1", "user-1")

	doc, err := c.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", doc.OwnerID)
	assert.Equal(t, []string{"some", "text"}, doc.TokenSet)
}

func TestGetDocumentNotFound(t *testing.T) {
	c := setupTestDB(t)

	_, err := c.GetDocument("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestModerationRecordVersions(t *testing.T) {
	c := setupTestDB(t)
	insertTestDocument(t, c, "doc-1", "user-1")

	v, err := c.NextModerationVersion("doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, c.InsertModerationRecord(&models.ModerationRecord{
		ID:          "rec-1",
		DocumentID:  "doc-1",
		Version:     1,
		Status:      models.StatusPending,
		AIScore:     floatPtr(80),
		SafetyFlags: []string{"none"},
		CreatedAt:   time.Now(),
	}))

	require.NoError(t, c.InsertModerationRecord(&models.ModerationRecord{
		ID:         "rec-2",
		DocumentID: "doc-1",
		Version:    2,
		Status:     models.StatusApproved,
		AIScore:    floatPtr(95),
		CreatedAt:  time.Now(),
	}))

	latest, err := c.GetLatestModerationRecord("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-2", latest.ID)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, models.StatusApproved, latest.Status)
	require.NotNil(t, latest.AIScore)
	assert.Equal(t, 95.0, *latest.AIScore)
	// never scored, stored as NULL, read back as absent
	assert.Nil(t, latest.ReliabilityScore)

	v, err = c.NextModerationVersion("doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestUpdateModerationStatus(t *testing.T) {
	c := setupTestDB(t)
	insertTestDocument(t, c, "doc-1", "user-1")

	require.NoError(t, c.InsertModerationRecord(&models.ModerationRecord{
		ID:         "rec-1",
		DocumentID: "doc-1",
		Version:    1,
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}))

	require.NoError(t, c.UpdateModerationStatus("rec-1", models.StatusRejected, "spam", time.Now()))

	latest, err := c.GetLatestModerationRecord("doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, latest.Status)
	assert.Equal(t, "spam", latest.Notes)
	assert.NotNil(t, latest.ModeratedAt)

	assert.ErrorIs(t, c.UpdateModerationStatus("missing", models.StatusApproved, "", time.Now()), ErrNotFound)
}

func TestSimilarityMatchImmutableOnceResolved(t *testing.T) {
	c := setupTestDB(t)
	insertTestDocument(t, c, "doc-1", "user-1")
	insertTestDocument(t, c, "doc-2", "user-2")

	require.NoError(t, c.InsertSimilarityMatch(&models.SimilarityMatch{
		ID:               "match-1",
		SourceDocumentID: "doc-1",
		TargetDocumentID: "doc-2",
		Score:            0.85,
		SimilarityType:   models.SimilarityCombined,
		Decision:         models.MatchPending,
		CreatedAt:        time.Now(),
	}))

	require.NoError(t, c.ResolveSimilarityMatch("match-1", models.MatchDistinct, "different topics", time.Now()))

	err := c.ResolveSimilarityMatch("match-1", models.MatchDuplicate, "", time.Now())
	assert.ErrorIs(t, err, ErrMatchResolved)

	m, err := c.GetSimilarityMatch("match-1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchDistinct, m.Decision)
	assert.NotNil(t, m.ResolvedAt)
}

func TestCountPendingMatches(t *testing.T) {
	c := setupTestDB(t)
	insertTestDocument(t, c, "doc-1", "user-1")
	insertTestDocument(t, c, "doc-2", "user-2")
	insertTestDocument(t, c, "doc-3", "user-3")

	require.NoError(t, c.InsertSimilarityMatch(&models.SimilarityMatch{
		ID: "m1", SourceDocumentID: "doc-1", TargetDocumentID: "doc-2",
		Score: 0.8, SimilarityType: models.SimilarityCombined,
		Decision: models.MatchPending, CreatedAt: time.Now(),
	}))
	require.NoError(t, c.InsertSimilarityMatch(&models.SimilarityMatch{
		ID: "m2", SourceDocumentID: "doc-1", TargetDocumentID: "doc-3",
		Score: 0.7, SimilarityType: models.SimilarityCombined,
		Decision: models.MatchPending, CreatedAt: time.Now(),
	}))

	count, err := c.CountPendingMatches("doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, c.ResolveSimilarityMatch("m1", models.MatchDistinct, "", time.Now()))

	count, err = c.CountPendingMatches("doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotificationLifecycle(t *testing.T) {
	c := setupTestDB(t)

	require.NoError(t, c.InsertNotification(&models.Notification{
		ID:      "n1",
		UserID:  "user-1",
		Type:    "moderation.approved",
		Title:   "Document approved",
		Message: "Your document was approved",
		Payload: map[string]interface{}{"document_id": "doc-1"},
		CreatedAt: time.Now(),
	}))

	list, err := c.GetNotifications("user-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsRead)
	assert.Equal(t, "doc-1", list[0].Payload["document_id"])

	unread, err := c.CountUnreadNotifications("user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, c.MarkNotificationRead("n1", time.Now()))

	list, err = c.GetNotifications("user-1", 10)
	require.NoError(t, err)
	assert.True(t, list[0].IsRead)
	assert.NotNil(t, list[0].ReadAt)

	unread, err = c.CountUnreadNotifications("user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	assert.ErrorIs(t, c.MarkNotificationRead("n1", time.Now()), ErrNotFound)
}
