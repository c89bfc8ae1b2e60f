package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docshare/backend/internal/metrics"
	"github.com/docshare/backend/internal/realtime"
	"github.com/docshare/backend/internal/storage/models"
	"github.com/docshare/backend/pkg/logger"
	"github.com/docshare/backend/pkg/retry"
)

// ErrPersist marks a failed durable write. It is the one error class this
// subsystem never swallows: delivery is best-effort, persistence is the
// guarantee.
var ErrPersist = errors.New("failed to persist notification")

// Event types carried in Notification.Type and pushed live.
const (
	EventModerationApproved = "moderation.approved"
	EventModerationRejected = "moderation.rejected"
	EventModerationPending  = "moderation.pending"
	EventCommentNew         = "comment.new"
	EventCommentReply       = "comment.reply"
	EventCommentLike        = "comment.like"
)

var eventTexts = map[string]struct {
	Title   string
	Message string
}{
	EventModerationApproved: {"Document approved", "Your document passed moderation and is now visible."},
	EventModerationRejected: {"Document rejected", "Your document did not pass moderation."},
	EventModerationPending:  {"Document under review", "Your document is awaiting moderator review."},
	EventCommentNew:         {"New comment", "Someone commented on your document."},
	EventCommentReply:       {"New reply", "Someone replied to your comment."},
	EventCommentLike:        {"Comment liked", "Someone liked your comment."},
}

type Store interface {
	InsertNotification(n *models.Notification) error
}

// UnreadCounter is the optional redis-backed unread badge counter.
type UnreadCounter interface {
	IncrementUnread(ctx context.Context, userID string) error
}

// Gateway glues the durable store to the live broadcaster: every user-facing
// event is written first, then pushed best-effort to whatever connections
// are in the target room.
type Gateway struct {
	store       Store
	broadcaster *realtime.Broadcaster
	unread      UnreadCounter
	retryConfig retry.Config
}

func NewGateway(store Store, broadcaster *realtime.Broadcaster, unread UnreadCounter) *Gateway {
	return &Gateway{
		store:       store,
		broadcaster: broadcaster,
		unread:      unread,
		retryConfig: retry.Config{
			MaxAttempts:    3,
			InitialDelay:   50 * time.Millisecond,
			MaxDelay:       500 * time.Millisecond,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

// NotifyUser persists a notification and then pushes it to the user's room.
// The durable write happens strictly before any delivery attempt; a write
// failure propagates and nothing is pushed. Zero live connections is not an
// error — the row stays in the store for later retrieval.
func (g *Gateway) NotifyUser(ctx context.Context, userID, eventType string, payload map[string]interface{}) (*models.Notification, error) {
	title, message := textsFor(eventType)

	n := &models.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      eventType,
		Title:     title,
		Message:   message,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	err := retry.Do(ctx, g.retryConfig, func() error {
		return g.store.InsertNotification(n)
	})
	if err != nil {
		metrics.NotificationPersistFailures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	if g.unread != nil {
		if err := g.unread.IncrementUnread(ctx, userID); err != nil {
			logger.Warn("Failed to bump unread counter", zap.String("user_id", userID), zap.Error(err))
		}
	}

	delivered := g.broadcaster.Broadcast(realtime.UserRoom(userID), realtime.Event{
		Type: "notification",
		Payload: map[string]interface{}{
			"id":      n.ID,
			"type":    n.Type,
			"title":   n.Title,
			"message": n.Message,
			"payload": n.Payload,
		},
	})
	metrics.EventsDelivered.WithLabelValues("notification").Add(float64(delivered))

	logger.Info("User notified",
		zap.String("user_id", userID),
		zap.String("event_type", eventType),
		zap.Int("live_deliveries", delivered),
	)

	return n, nil
}

// NotifyDocumentViewers pushes an ephemeral UI-sync event to everyone
// currently viewing a document. No durable write: missing it is harmless,
// the viewer re-fetches on next load.
func (g *Gateway) NotifyDocumentViewers(documentID, action string, payload map[string]interface{}) int {
	event := realtime.Event{
		Type: "document_update",
		Payload: map[string]interface{}{
			"document_id": documentID,
			"action":      action,
			"data":        payload,
		},
	}

	delivered := g.broadcaster.Broadcast(realtime.DocumentRoom(documentID), event)
	metrics.EventsDelivered.WithLabelValues("document_update").Add(float64(delivered))
	return delivered
}

// BroadcastAll pushes a platform-wide event to every live connection.
func (g *Gateway) BroadcastAll(eventType string, payload map[string]interface{}) int {
	return g.broadcaster.BroadcastAll(realtime.Event{
		Type:    eventType,
		Payload: payload,
	})
}

func textsFor(eventType string) (string, string) {
	if texts, ok := eventTexts[eventType]; ok {
		return texts.Title, texts.Message
	}
	return "Notification", "You have a new notification."
}
