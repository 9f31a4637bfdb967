package store

import (
	"context"
	"errors"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
)

var ErrUserNotFound = errors.New("user not found")

// Store is the session store consumed by the relay: identity lookups for
// authentication and message persistence. The relay never deletes anything.
type Store interface {
	// GetUserByID resolves an identity by its hex id, excluding the stored
	// password hash. Returns ErrUserNotFound when the id resolves to nothing.
	GetUserByID(ctx context.Context, id string) (*domain.User, error)

	// InsertMessage persists a message and fills in its generated id.
	InsertMessage(ctx context.Context, msg *domain.Message) error

	// MarkConversationRead flips read=false to read=true on every message in
	// the conversation addressed to receiverID. Returns the number of
	// messages updated; a repeat call updates zero.
	MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
