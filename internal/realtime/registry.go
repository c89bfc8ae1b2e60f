package realtime

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/docshare/backend/pkg/logger"
)

const (
	userRoomPrefix     = "user:"
	documentRoomPrefix = "document:"
)

func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

func DocumentRoom(documentID string) string {
	return documentRoomPrefix + documentID
}

// Sender is the outbound half of a connection. *websocket.Conn satisfies it;
// tests substitute an in-memory implementation.
type Sender interface {
	WriteJSON(v interface{}) error
}

// Connection is one live bidirectional channel. Identity is empty until the
// connection authenticates; writes are serialized through mu so concurrent
// broadcasts never interleave frames.
type Connection struct {
	ID     string
	sender Sender

	mu     sync.Mutex
	userID string
}

func (c *Connection) Send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sender.WriteJSON(event)
}

func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Registry tracks live connections, their identities and their room
// memberships. A reverse index room→connections keeps broadcasts O(room
// size); all membership mutations happen under one mutex so a concurrent
// broadcast sees either the old or the new membership, never half of each.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	connRooms   map[string]map[string]struct{}  // connectionID -> set of rooms
	rooms       map[string]map[string]struct{}  // room -> set of connectionIDs
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		connRooms:   make(map[string]map[string]struct{}),
		rooms:       make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(connectionID string, sender Sender) *Connection {
	conn := &Connection{
		ID:     connectionID,
		sender: sender,
	}

	r.mu.Lock()
	r.connections[connectionID] = conn
	r.connRooms[connectionID] = make(map[string]struct{})
	r.mu.Unlock()

	logger.Debug("Connection registered", zap.String("connection_id", connectionID))

	return conn
}

// Unregister removes the connection from every room it joined. Safe to call
// for an unknown connection.
func (r *Registry) Unregister(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.connRooms[connectionID] {
		r.removeFromRoom(connectionID, room)
	}
	delete(r.connRooms, connectionID)
	delete(r.connections, connectionID)

	logger.Debug("Connection unregistered", zap.String("connection_id", connectionID))
}

// Join adds the connection to a room. Joining twice is a no-op.
func (r *Registry) Join(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joinLocked(connectionID, room)
}

func (r *Registry) joinLocked(connectionID, room string) {
	if _, ok := r.connections[connectionID]; !ok {
		return
	}

	r.connRooms[connectionID][room] = struct{}{}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]struct{})
	}
	r.rooms[room][connectionID] = struct{}{}
}

// Leave removes the connection from a room. Leaving a room the connection
// never joined is a no-op.
func (r *Registry) Leave(connectionID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connRooms[connectionID]; !ok {
		return
	}
	delete(r.connRooms[connectionID], room)
	r.removeFromRoom(connectionID, room)
}

func (r *Registry) removeFromRoom(connectionID, room string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Authenticate binds an identity to the connection and joins its user room.
// Any previously-joined user rooms are left first, so a re-authentication
// (token refresh, or login as a different user on the same transport) can
// never leak another identity's notifications to this socket.
func (r *Registry) Authenticate(connectionID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[connectionID]
	if !ok {
		return
	}

	for room := range r.connRooms[connectionID] {
		if strings.HasPrefix(room, userRoomPrefix) {
			delete(r.connRooms[connectionID], room)
			r.removeFromRoom(connectionID, room)
		}
	}

	conn.setUserID(userID)
	r.joinLocked(connectionID, UserRoom(userID))

	logger.Info("Connection authenticated",
		zap.String("connection_id", connectionID),
		zap.String("user_id", userID),
	)
}

// Members returns a snapshot of the connections currently in a room.
func (r *Registry) Members(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]*Connection, 0, len(r.rooms[room]))
	for connectionID := range r.rooms[room] {
		if conn, ok := r.connections[connectionID]; ok {
			members = append(members, conn)
		}
	}
	return members
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		all = append(all, conn)
	}
	return all
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
