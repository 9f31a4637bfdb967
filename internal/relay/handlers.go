package relay

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/metrics"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/protocol"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/state"
)

func (r *Relay) handleJoinRoom(conn *state.Connection, cmd protocol.JoinRoom) {
	if _, err := r.states.Join(conn.ID, cmd.ConversationID); err != nil {
		r.fail(conn, protocol.EventJoinRoom, err.Error())
		return
	}
	// Other members learn who arrived; the joiner gets no echo.
	r.broadcastToRoom(cmd.ConversationID, protocol.EventUserJoinedRoom, protocol.RoomPresencePayload{
		UserID:   conn.Identity.ID,
		Username: conn.Identity.Username,
	}, conn.ID)
}

func (r *Relay) handleLeaveRoom(conn *state.Connection, cmd protocol.LeaveRoom) {
	if err := r.states.Leave(conn.ID, cmd.ConversationID); err != nil {
		r.fail(conn, protocol.EventLeaveRoom, err.Error())
		return
	}
	r.broadcastToRoom(cmd.ConversationID, protocol.EventUserLeftRoom, protocol.RoomPresencePayload{
		UserID:   conn.Identity.ID,
		Username: conn.Identity.Username,
	}, conn.ID)
}

func (r *Relay) handleSendMessage(ctx context.Context, conn *state.Connection, cmd protocol.SendMessage) {
	msg, err := domain.NewMessage(conn.Identity.ID, cmd.ReceiverID, cmd.Content, cmd.ConversationID)
	if err != nil {
		r.fail(conn, protocol.EventSendMessage, err.Error())
		return
	}

	// Persistence may complete after the sender disconnects; the broadcast
	// to the room still happens, so the write must not die with the
	// sender's connection context.
	if err := r.store.InsertMessage(context.WithoutCancel(ctx), msg); err != nil {
		r.logger.Error("Failed to persist message",
			slog.String("conversationID", cmd.ConversationID),
			slog.Any("error", err),
		)
		r.fail(conn, protocol.EventSendMessage, "failed to send message")
		return
	}

	metrics.MessagesRelayed.Inc()
	// The sender is included so their client sees the persisted record with
	// its generated id and server timestamp.
	r.broadcastToRoom(cmd.ConversationID, protocol.EventReceiveMessage, msg, uuid.Nil)
}

func (r *Relay) handleMarkAsRead(ctx context.Context, conn *state.Connection, cmd protocol.MarkAsRead) {
	updated, err := r.store.MarkConversationRead(context.WithoutCancel(ctx), cmd.ConversationID, cmd.UserID)
	if err != nil {
		r.logger.Error("Failed to mark conversation read",
			slog.String("conversationID", cmd.ConversationID),
			slog.Any("error", err),
		)
		r.fail(conn, protocol.EventMarkAsRead, "failed to mark messages as read")
		return
	}
	r.logger.Debug("Marked conversation read",
		slog.String("conversationID", cmd.ConversationID),
		slog.String("userID", cmd.UserID),
		slog.Int64("updated", updated),
	)
	r.broadcastToRoom(cmd.ConversationID, protocol.EventMessagesRead, protocol.MessagesReadPayload{
		ConversationID: cmd.ConversationID,
		UserID:         cmd.UserID,
	}, uuid.Nil)
}

func (r *Relay) handleTyping(conn *state.Connection, cmd protocol.Typing) {
	// Stateless rebroadcast; clearing a dangling indicator is the client's
	// responsibility.
	r.broadcastToRoom(cmd.ConversationID, protocol.EventUserTyping, protocol.UserTypingPayload{
		UserID:   conn.Identity.ID,
		IsTyping: cmd.IsTyping,
	}, conn.ID)
}

func (r *Relay) fail(conn *state.Connection, command, message string) {
	metrics.CommandErrors.WithLabelValues(command).Inc()
	r.emitError(conn, message)
}
