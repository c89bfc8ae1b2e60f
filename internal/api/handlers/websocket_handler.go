package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docshare/backend/internal/auth"
	"github.com/docshare/backend/internal/metrics"
	"github.com/docshare/backend/internal/realtime"
	"github.com/docshare/backend/pkg/logger"
)

// WebSocketHandler owns the control channel of a live connection. Events
// flow out through the registry; the only inbound traffic is the small set
// of control messages handled here.
type WebSocketHandler struct {
	registry *realtime.Registry
	verifier *auth.Verifier
}

func NewWebSocketHandler(registry *realtime.Registry, verifier *auth.Verifier) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		verifier: verifier,
	}
}

// UpgradeMiddleware gates the websocket route and captures the optional
// bearer token from the handshake (query param or Authorization header) for
// HandleConnection to pick up after the upgrade.
func (h *WebSocketHandler) UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			if header := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}
		}
		c.Locals("token", token)

		return c.Next()
	}
}

type controlMessage struct {
	Type       string `json:"type"`
	Token      string `json:"token"`
	DocumentID string `json:"document_id"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	connectionID := uuid.New().String()
	conn := h.registry.Register(connectionID, c)
	metrics.LiveConnections.Inc()

	logger.Info("WebSocket connection established", zap.String("connection_id", connectionID))

	// A bearer token presented at the handshake authenticates the connection
	// immediately. An invalid token is reported but keeps the socket open.
	if token, ok := c.Locals("token").(string); ok && token != "" {
		h.handleAuthenticate(conn, token)
	}

	defer func() {
		h.registry.Unregister(connectionID)
		metrics.LiveConnections.Dec()
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("connection_id", connectionID))
	}()

	for {
		var msg controlMessage
		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read failed", zap.String("connection_id", connectionID), zap.Error(err))
			break
		}

		switch msg.Type {
		case "authenticate":
			h.handleAuthenticate(conn, msg.Token)

		case "join_document":
			if msg.DocumentID == "" {
				continue
			}
			h.registry.Join(connectionID, realtime.DocumentRoom(msg.DocumentID))

		case "leave_document":
			if msg.DocumentID == "" {
				continue
			}
			h.registry.Leave(connectionID, realtime.DocumentRoom(msg.DocumentID))

		case "ping":
			conn.Send(realtime.Event{
				Type:    "pong",
				Payload: map[string]interface{}{"time": time.Now().Unix()},
			})

		default:
			continue
		}
	}
}

// handleAuthenticate verifies the presented token. Failure is reported back
// on the same connection and is not fatal: the socket stays open,
// unauthenticated, and can retry.
func (h *WebSocketHandler) handleAuthenticate(conn *realtime.Connection, token string) {
	userID, err := h.verifier.Verify(token)
	if err != nil {
		metrics.AuthFailures.Inc()
		logger.Warn("WebSocket authentication failed",
			zap.String("connection_id", conn.ID),
			zap.Error(err),
		)
		conn.Send(realtime.Event{
			Type: "auth_result",
			Payload: map[string]interface{}{
				"success": false,
				"error":   "invalid or expired token",
			},
		})
		return
	}

	h.registry.Authenticate(conn.ID, userID)
	conn.Send(realtime.Event{
		Type: "auth_result",
		Payload: map[string]interface{}{
			"success": true,
			"user_id": userID,
		},
	})
}
