package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu     sync.Mutex
	events []Event
}

func (s *fakeSender) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, v.(Event))
	return nil
}

func (s *fakeSender) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestJoinLeaveIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", &fakeSender{})

	room := DocumentRoom("d1")
	r.Join("c1", room)
	r.Join("c1", room)
	assert.Len(t, r.Members(room), 1)

	r.Leave("c1", room)
	assert.Empty(t, r.Members(room))

	// leaving again, or leaving a room never joined, is a no-op
	r.Leave("c1", room)
	r.Leave("c1", DocumentRoom("never-joined"))
	r.Leave("unknown-conn", room)
}

func TestUnregisterRemovesFromAllRooms(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", &fakeSender{})
	r.Join("c1", DocumentRoom("d1"))
	r.Join("c1", DocumentRoom("d2"))
	r.Authenticate("c1", "alice")

	r.Unregister("c1")

	assert.Empty(t, r.Members(DocumentRoom("d1")))
	assert.Empty(t, r.Members(DocumentRoom("d2")))
	assert.Empty(t, r.Members(UserRoom("alice")))
	assert.Zero(t, r.Count())
}

func TestAuthenticateJoinsUserRoom(t *testing.T) {
	r := NewRegistry()
	conn := r.Register("c1", &fakeSender{})

	r.Authenticate("c1", "alice")

	assert.Equal(t, "alice", conn.UserID())
	require.Len(t, r.Members(UserRoom("alice")), 1)
}

func TestReauthIsolation(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	sender := &fakeSender{}
	r.Register("c1", sender)

	r.Authenticate("c1", "alice")
	r.Authenticate("c1", "bob")

	// events for alice must not reach the re-authenticated connection
	b.Broadcast(UserRoom("alice"), Event{Type: "notification"})
	assert.Empty(t, sender.received())

	delivered := b.Broadcast(UserRoom("bob"), Event{Type: "notification"})
	assert.Equal(t, 1, delivered)
	assert.Len(t, sender.received(), 1)
}

func TestReauthKeepsDocumentRooms(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	sender := &fakeSender{}
	r.Register("c1", sender)

	r.Join("c1", DocumentRoom("d1"))
	r.Authenticate("c1", "alice")
	r.Authenticate("c1", "bob")

	// document-room membership is independent of identity
	delivered := b.Broadcast(DocumentRoom("d1"), Event{Type: "document_update"})
	assert.Equal(t, 1, delivered)
}

func TestBroadcastReachesOnlyRoomMembers(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	s1 := &fakeSender{}
	s2 := &fakeSender{}
	s3 := &fakeSender{}
	r.Register("c1", s1)
	r.Register("c2", s2)
	r.Register("c3", s3)

	r.Join("c1", DocumentRoom("d1"))
	r.Join("c2", DocumentRoom("d1"))

	delivered := b.Broadcast(DocumentRoom("d1"), Event{
		Type:    "document_update",
		Payload: map[string]interface{}{"action": "comment.new"},
	})

	assert.Equal(t, 2, delivered)
	assert.Len(t, s1.received(), 1)
	assert.Len(t, s2.received(), 1)
	assert.Empty(t, s3.received())
}

func TestBroadcastToEmptyRoom(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	assert.Zero(t, b.Broadcast(UserRoom("nobody"), Event{Type: "notification"}))
}

func TestBroadcastAll(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	s1 := &fakeSender{}
	s2 := &fakeSender{}
	r.Register("c1", s1)
	r.Register("c2", s2)

	delivered := b.BroadcastAll(Event{Type: "announcement"})
	assert.Equal(t, 2, delivered)
}

func TestConcurrentJoinLeaveAndBroadcast(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)
	room := DocumentRoom("d1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		sender := &fakeSender{}
		id := string(rune('a' + i))
		r.Register(id, sender)

		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Join(connID, room)
				r.Leave(connID, room)
			}
		}(id)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			b.Broadcast(room, Event{Type: "notification"})
		}
	}()

	wg.Wait()
}
