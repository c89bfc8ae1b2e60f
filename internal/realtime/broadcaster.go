package realtime

import (
	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/logger"
)

// Event is the wire shape of every outbound push message.
type Event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Broadcaster fans an event out to every connection currently in a room.
// It is constructed once at process start and passed to whoever needs to
// push; there is no ambient singleton.
type Broadcaster struct {
	registry *Registry
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast delivers at-most-once per connection. A failed send is logged
// and skipped: membership is eventually consistent and a dead socket will
// be unregistered by its own reader goroutine.
func (b *Broadcaster) Broadcast(room string, event Event) int {
	members := b.registry.Members(room)

	delivered := 0
	for _, conn := range members {
		if err := conn.Send(event); err != nil {
			logger.Warn("Failed to deliver event",
				zap.String("room", room),
				zap.String("connection_id", conn.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}

	logger.Debug("Event broadcast",
		zap.String("room", room),
		zap.String("event_type", event.Type),
		zap.Int("delivered", delivered),
	)

	return delivered
}

// BroadcastAll pushes an event to every live connection regardless of rooms.
func (b *Broadcaster) BroadcastAll(event Event) int {
	delivered := 0
	for _, conn := range b.registry.All() {
		if err := conn.Send(event); err != nil {
			logger.Warn("Failed to deliver event",
				zap.String("connection_id", conn.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}
