package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/state"
)

type InMemoryManager struct {
	conns    map[uuid.UUID]*state.Connection
	presence map[string]uuid.UUID // userID -> active connection id
	rooms    map[string]*state.Room

	connMu     sync.RWMutex
	presenceMu sync.RWMutex
	roomMu     sync.RWMutex

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:    make(map[uuid.UUID]*state.Connection),
		presence: make(map[string]uuid.UUID),
		rooms:    make(map[string]*state.Room),
		logger:   logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(link state.Link, ipAddr string, identity domain.Identity) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := link.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: link,
		Identity:  identity,
		Rooms:     make(map[string]*state.Room),
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()), slog.String("userID", identity.ID))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.Lock()
	conn, ok := m.conns[connID]
	if !ok {
		// connection is already deregistered
		m.connMu.Unlock()
		return nil, false
	}
	delete(m.conns, connID)
	m.connMu.Unlock()

	// Drop room memberships without notifying members; disconnect presence
	// is signalled separately via userOffline.
	m.roomMu.Lock()
	for roomID := range conn.Rooms {
		m.removeFromRoomLocked(conn, roomID)
	}
	m.roomMu.Unlock()

	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return conn, true
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) AllConnections() []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// --- Presence Table ---

func (m *InMemoryManager) RecordOnline(userID string, connID uuid.UUID) (*state.Connection, bool) {
	m.presenceMu.Lock()
	prevID, wasOnline := m.presence[userID]
	m.presence[userID] = connID
	m.presenceMu.Unlock()

	if !wasOnline || prevID == connID {
		m.logger.Debug("User online", slog.String("userID", userID), slog.String("connID", connID.String()))
		return nil, false
	}

	// Last connection wins: surface the displaced connection so the caller
	// can close it.
	m.connMu.RLock()
	displaced := m.conns[prevID]
	m.connMu.RUnlock()
	m.logger.Debug("User presence displaced older connection",
		slog.String("userID", userID),
		slog.String("oldConnID", prevID.String()),
		slog.String("connID", connID.String()),
	)
	return displaced, true
}

func (m *InMemoryManager) RecordOffline(userID string, connID uuid.UUID) bool {
	m.presenceMu.Lock()
	defer m.presenceMu.Unlock()

	current, ok := m.presence[userID]
	if !ok || current != connID {
		// A stale disconnect from a superseded connection; the newer
		// registration owns the entry now.
		m.logger.Debug("Ignored stale offline for user", slog.String("userID", userID), slog.String("connID", connID.String()))
		return false
	}
	delete(m.presence, userID)
	m.logger.Debug("User offline", slog.String("userID", userID))
	return true
}

func (m *InMemoryManager) OnlineUsers() []string {
	m.presenceMu.RLock()
	defer m.presenceMu.RUnlock()

	users := make([]string, 0, len(m.presence))
	for userID := range m.presence {
		users = append(users, userID)
	}
	return users
}

func (m *InMemoryManager) FindPresent(userID string) (*state.Connection, bool) {
	m.presenceMu.RLock()
	connID, ok := m.presence[userID]
	m.presenceMu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.GetConnection(connID)
}

// --- Room & Membership Management ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomID string) (*state.Room, error) {
	m.connMu.RLock()
	conn, ok := m.conns[connID]
	m.connMu.RUnlock()
	if !ok {
		return nil, errors.New("cannot join room: connection not found")
	}

	m.roomMu.Lock()
	defer m.roomMu.Unlock()

	// Find or create the room.
	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Members: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomID] = room
	}

	room.Members[connID] = conn
	conn.Rooms[roomID] = room

	m.logger.Debug("Connection joined room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return room, nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomID string) error {
	m.connMu.RLock()
	conn, ok := m.conns[connID]
	m.connMu.RUnlock()
	if !ok {
		m.logger.Warn("failed to leave room: connection doesn't exist",
			slog.String("connID", connID.String()),
			slog.String("roomID", roomID),
		)
		return nil
	}

	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	m.removeFromRoomLocked(conn, roomID)

	m.logger.Debug("Connection left room", slog.String("connID", connID.String()), slog.String("roomID", roomID))
	return nil
}

// removeFromRoomLocked unlinks a connection from a room and disposes of the
// room at zero members. Caller holds roomMu.
func (m *InMemoryManager) removeFromRoomLocked(conn *state.Connection, roomID string) {
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(room.Members, conn.ID)
	delete(conn.Rooms, roomID)

	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}
}

func (m *InMemoryManager) RoomMembers(roomID string) []*state.Connection {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]*state.Connection, 0, len(room.Members))
	for _, c := range room.Members {
		members = append(members, c)
	}
	return members
}

func (m *InMemoryManager) FindRoom(roomID string) (*state.Room, bool) {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}
