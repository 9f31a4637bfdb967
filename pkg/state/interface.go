package state

import (
	"github.com/google/uuid"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(link Link, ipAddr string, identity domain.Identity) (*Connection, error)
	// DeregisterConnection removes the connection and silently drops its
	// room memberships. Returns the removed connection, if it was known.
	DeregisterConnection(connID uuid.UUID) (*Connection, bool)
	GetConnection(connID uuid.UUID) (*Connection, bool)
	AllConnections() []*Connection

	// --- Presence Table ---
	// RecordOnline upserts the user's presence entry, returning the
	// connection it displaced when the user was already online elsewhere.
	RecordOnline(userID string, connID uuid.UUID) (displaced *Connection, wasOnline bool)
	// RecordOffline removes the presence entry only when connID still
	// matches the registered connection. A false return means a stale
	// disconnect raced a newer registration and was ignored.
	RecordOffline(userID string, connID uuid.UUID) bool
	// OnlineUsers returns a snapshot of user ids with an active entry.
	OnlineUsers() []string
	FindPresent(userID string) (*Connection, bool)

	// --- Room & Membership Management ---
	// Join subscribes a connection to a room, creating the room on first use.
	Join(connID uuid.UUID, roomID string) (*Room, error)
	Leave(connID uuid.UUID, roomID string) error
	RoomMembers(roomID string) []*Connection
	FindRoom(roomID string) (*Room, bool)
}
