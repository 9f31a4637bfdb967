// Package fanout provides the cross-process broadcast adapter: when more
// than one relay process hosts subscribers to the same room, room broadcasts
// are mirrored through an adapter so every instance can deliver them to its
// local members. Delivery across instances is eventual and unordered.
package fanout

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is one room broadcast in transit between process instances.
// Origin identifies the publishing process so instances can skip their own
// envelopes; local-only concerns (sender exclusion) are never forwarded.
type Envelope struct {
	Origin  string          `bson:"origin" json:"origin"`
	RoomID  string          `bson:"roomId" json:"roomId"`
	Event   string          `bson:"event" json:"event"`
	Payload json.RawMessage `bson:"payload" json:"payload"`
	SentAt  time.Time       `bson:"sentAt" json:"sentAt"`
}

// Handler receives envelopes published by other process instances.
type Handler func(env Envelope)

type Adapter interface {
	// Publish sends an envelope to every other process instance.
	Publish(ctx context.Context, env Envelope) error
	// Run blocks, delivering remote envelopes to handler until ctx is done.
	// Envelopes whose Origin matches this process are never delivered.
	Run(ctx context.Context, handler Handler) error
	Close(ctx context.Context) error
}

// Noop is the single-process adapter: publishes go nowhere and nothing is
// ever received.
type Noop struct{}

var _ Adapter = (*Noop)(nil)

func (Noop) Publish(ctx context.Context, env Envelope) error { return nil }

func (Noop) Run(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return nil
}

func (Noop) Close(ctx context.Context) error { return nil }
