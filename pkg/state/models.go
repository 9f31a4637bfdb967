package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
)

// Link is the send side of a transport connection as the relay sees it.
// *transport.Connection satisfies it; tests substitute a recording fake.
type Link interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Connection is the canonical representation of a single authenticated
// transport-layer connection.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport Link
	Identity  domain.Identity
	Rooms     map[string]*Room // rooms this connection is subscribed to, keyed by room ID
	CreatedAt time.Time
}

// Room is an ephemeral broadcast group keyed by conversation id. Created on
// first join, removed when the last member leaves.
type Room struct {
	ID      string
	Members map[uuid.UUID]*Connection
}
