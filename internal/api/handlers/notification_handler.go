package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docshare/backend/internal/cache/redis"
	"github.com/docshare/backend/internal/storage/sqlite"
	"github.com/docshare/backend/pkg/logger"
)

const defaultNotificationLimit = 50

// NotificationHandler serves the durable notification feed. The redis unread
// counter is a fast path for badge counts; the sqlite store stays the source
// of truth when redis is unavailable.
type NotificationHandler struct {
	store *sqlite.Client
	cache *redis.Client
}

func NewNotificationHandler(store *sqlite.Client, cache *redis.Client) *NotificationHandler {
	return &NotificationHandler{
		store: store,
		cache: cache,
	}
}

// ListNotifications returns the user's feed, newest first. Opening the feed
// clears the unread badge.
func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	limit := c.QueryInt("limit", defaultNotificationLimit)
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}

	notifications, err := h.store.GetNotifications(userID, limit)
	if err != nil {
		logger.Error("Failed to load notifications", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load notifications",
		})
	}

	if h.cache != nil {
		if err := h.cache.ResetUnread(c.Context(), userID); err != nil {
			logger.Warn("Failed to reset unread counter", zap.String("user_id", userID), zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

func (h *NotificationHandler) GetUnreadCount(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	if h.cache != nil {
		count, err := h.cache.GetUnread(c.Context(), userID)
		if err == nil {
			return c.JSON(fiber.Map{
				"user_id": userID,
				"unread":  count,
			})
		}
		logger.Warn("Unread counter unavailable, falling back to store", zap.Error(err))
	}

	count, err := h.store.CountUnreadNotifications(userID)
	if err != nil {
		logger.Error("Failed to count unread notifications", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count unread notifications",
		})
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"unread":  count,
	})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	notificationID := c.Params("id")

	err := h.store.MarkNotificationRead(notificationID, time.Now())
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Notification not found or already read",
			})
		}
		logger.Error("Failed to mark notification read", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to mark notification read",
		})
	}

	return c.JSON(fiber.Map{
		"id":   notificationID,
		"read": true,
	})
}
