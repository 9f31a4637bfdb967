package domain

import (
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the session store's identity record. The relay only ever reads it;
// the password hash is excluded by projection on lookup and never serialized.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Username string             `bson:"username" json:"username"`
	Role     string             `bson:"role" json:"role"`
	Password string             `bson:"password,omitempty" json:"-"`
}

// Identity is the minimal slice of a User attached to an authenticated
// connection for its lifetime.
type Identity struct {
	ID       string
	Username string
	Role     string
}

func (u *User) Identity() Identity {
	return Identity{ID: u.ID.Hex(), Username: u.Username, Role: u.Role}
}

var ErrEmptyContent = errors.New("message content cannot be empty")

// Message is a persisted chat message. Field names match the wire shape of
// the receiveMessage event exactly.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	SenderID       string             `bson:"senderId" json:"senderId"`
	ReceiverID     string             `bson:"receiverId" json:"receiverId"`
	Content        string             `bson:"content" json:"content"`
	ConversationID string             `bson:"conversationId" json:"conversationId"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
	Read           bool               `bson:"read" json:"read"`
}

// NewMessage builds an unsent message with a server-assigned timestamp.
// Content is trimmed; whitespace-only content is rejected before it can
// reach the store.
func NewMessage(senderID, receiverID, content, conversationID string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	return &Message{
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Read:           false,
	}, nil
}
