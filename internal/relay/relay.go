// Package relay implements the per-connection message relay: it decodes
// client commands at the transport boundary, routes them through the room
// table, persists messages to the session store and mirrors room broadcasts
// through the cross-process fanout adapter.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/fanout"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/metrics"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/store"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/protocol"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/state"
)

type Relay struct {
	logger    *slog.Logger
	states    state.Manager
	store     store.Store
	adapter   fanout.Adapter
	processID string
}

func New(logger *slog.Logger, states state.Manager, st store.Store, adapter fanout.Adapter, processID string) *Relay {
	return &Relay{
		logger:    logger.With(slog.String("component", "relay")),
		states:    states,
		store:     st,
		adapter:   adapter,
		processID: processID,
	}
}

// HandleMessage is the transport's message callback. Commands are only
// accepted from registered (active) connections; every failure is contained
// here and surfaced to the origin connection as a single error event.
func (r *Relay) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	conn, ok := r.states.GetConnection(connID)
	if !ok {
		r.logger.Warn("Dropping message from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	cmd, err := protocol.DecodeCommand(msg)
	if err != nil {
		r.logger.Warn("Failed to decode client command",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		r.emitError(conn, err.Error())
		return
	}

	switch c := cmd.(type) {
	case protocol.JoinRoom:
		r.handleJoinRoom(conn, c)
	case protocol.LeaveRoom:
		r.handleLeaveRoom(conn, c)
	case protocol.SendMessage:
		r.handleSendMessage(ctx, conn, c)
	case protocol.MarkAsRead:
		r.handleMarkAsRead(ctx, conn, c)
	case protocol.Typing:
		r.handleTyping(conn, c)
	}
}

// HandleRemote delivers an envelope published by another process instance to
// this instance's local room members. Membership is process-local, so an
// envelope for a room with no local members is a no-op.
func (r *Relay) HandleRemote(env fanout.Envelope) {
	metrics.FanoutReceived.Inc()
	frame, err := json.Marshal(protocol.Envelope{Event: env.Event, Payload: env.Payload})
	if err != nil {
		r.logger.Warn("Failed to encode remote envelope", slog.Any("error", err))
		return
	}
	for _, member := range r.states.RoomMembers(env.RoomID) {
		member.Transport.Send(frame)
	}
}

// broadcastToRoom fans an event out to every local member of a room, minus
// an optional excluded connection (uuid.Nil excludes nobody), and mirrors it
// through the fanout adapter for other process instances.
func (r *Relay) broadcastToRoom(roomID, event string, payload any, exclude uuid.UUID) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode room broadcast", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, member := range r.states.RoomMembers(roomID) {
		if member.ID == exclude {
			continue
		}
		member.Transport.Send(frame)
	}
	r.publish(roomID, event, payload)
}

// publish mirrors a room broadcast to other process instances. Best effort:
// a publish failure never affects local delivery.
func (r *Relay) publish(roomID, event string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("Failed to encode fanout payload", slog.String("event", event), slog.Any("error", err))
		return
	}
	env := fanout.Envelope{
		Origin:  r.processID,
		RoomID:  roomID,
		Event:   event,
		Payload: raw,
	}
	// Detached context: publishing may outlive the originating connection.
	if err := r.adapter.Publish(context.Background(), env); err != nil {
		r.logger.Warn("Fanout publish failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	metrics.FanoutPublished.Inc()
}

// BroadcastToAll sends an event to every connection on this instance. Used
// for presence transitions, which are process-scoped.
func (r *Relay) BroadcastToAll(event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode broadcast", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, conn := range r.states.AllConnections() {
		conn.Transport.Send(frame)
	}
}

// SendTo emits an event to a single connection.
func (r *Relay) SendTo(conn *state.Connection, event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		r.logger.Error("Failed to encode event", slog.String("event", event), slog.Any("error", err))
		return
	}
	conn.Transport.Send(frame)
}

func (r *Relay) emitError(conn *state.Connection, message string) {
	r.SendTo(conn, protocol.EventError, protocol.ErrorPayload{Message: message})
}
