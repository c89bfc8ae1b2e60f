package handlers

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshare/backend/internal/auth"
	"github.com/docshare/backend/internal/realtime"
)

type fakeSender struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (s *fakeSender) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, v.(realtime.Event))
	return nil
}

func (s *fakeSender) received() []realtime.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Event, len(s.events))
	copy(out, s.events)
	return out
}

func newTestWSHandler() (*WebSocketHandler, *realtime.Registry, *auth.Verifier) {
	registry := realtime.NewRegistry()
	verifier := auth.NewVerifier("test-secret")
	return NewWebSocketHandler(registry, verifier), registry, verifier
}

// tokenCaptureApp mounts the upgrade middleware in front of a plain handler
// so the captured token local can be observed without a real upgrade.
func tokenCaptureApp(h *WebSocketHandler, captured *string) *fiber.App {
	app := fiber.New()
	app.Use("/ws", h.UpgradeMiddleware())
	app.Get("/ws", func(c *fiber.Ctx) error {
		if token, ok := c.Locals("token").(string); ok {
			*captured = token
		}
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func upgradeRequest(target string) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return req
}

func TestUpgradeMiddlewareRejectsPlainRequests(t *testing.T) {
	h, _, _ := newTestWSHandler()
	var captured string
	app := tokenCaptureApp(h, &captured)

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestUpgradeMiddlewareCapturesQueryToken(t *testing.T) {
	h, _, _ := newTestWSHandler()
	var captured string
	app := tokenCaptureApp(h, &captured)

	resp, err := app.Test(upgradeRequest("/ws?token=handshake-token"))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "handshake-token", captured)
}

func TestUpgradeMiddlewareCapturesBearerHeader(t *testing.T) {
	h, _, _ := newTestWSHandler()
	var captured string
	app := tokenCaptureApp(h, &captured)

	req := upgradeRequest("/ws")
	req.Header.Set(fiber.HeaderAuthorization, "Bearer header-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "header-token", captured)
}

func TestUpgradeMiddlewarePrefersQueryToken(t *testing.T) {
	h, _, _ := newTestWSHandler()
	var captured string
	app := tokenCaptureApp(h, &captured)

	req := upgradeRequest("/ws?token=query-token")
	req.Header.Set(fiber.HeaderAuthorization, "Bearer header-token")

	_, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "query-token", captured)
}

func TestHandshakeTokenAuthenticatesConnection(t *testing.T) {
	h, registry, verifier := newTestWSHandler()

	token, err := verifier.Issue("alice", time.Minute)
	require.NoError(t, err)

	sender := &fakeSender{}
	conn := registry.Register("c1", sender)
	h.handleAuthenticate(conn, token)

	assert.Equal(t, "alice", conn.UserID())
	require.Len(t, registry.Members(realtime.UserRoom("alice")), 1)

	events := sender.received()
	require.Len(t, events, 1)
	assert.Equal(t, "auth_result", events[0].Type)
	assert.Equal(t, true, events[0].Payload["success"])
	assert.Equal(t, "alice", events[0].Payload["user_id"])
}

func TestInvalidHandshakeTokenKeepsConnectionOpen(t *testing.T) {
	h, registry, _ := newTestWSHandler()

	sender := &fakeSender{}
	conn := registry.Register("c1", sender)
	h.handleAuthenticate(conn, "not-a-token")

	assert.Empty(t, conn.UserID())
	assert.Equal(t, 1, registry.Count())

	events := sender.received()
	require.Len(t, events, 1)
	assert.Equal(t, "auth_result", events[0].Type)
	assert.Equal(t, false, events[0].Payload["success"])
}
