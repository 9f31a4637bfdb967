package relay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/manjeet0505/SeniorJunior-sub000/internal/domain"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/fanout"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/relay"
	"github.com/manjeet0505/SeniorJunior-sub000/internal/store"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/protocol"
	"github.com/manjeet0505/SeniorJunior-sub000/pkg/state/statemanager"
)

// --- Fakes ---

// fakeLink records every frame sent to it.
type fakeLink struct {
	id     uuid.UUID
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newFakeLink() *fakeLink      { return &fakeLink{id: uuid.New()} }
func (l *fakeLink) ID() uuid.UUID { return l.id }

func (l *fakeLink) Send(message []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, message)
}

func (l *fakeLink) Close(err error) { l.closed = true }

// envelopes decodes everything sent to the link.
func (l *fakeLink) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	envs := make([]protocol.Envelope, 0, len(l.frames))
	for _, frame := range l.frames {
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("link received malformed frame %q: %v", frame, err)
		}
		envs = append(envs, env)
	}
	return envs
}

func (l *fakeLink) events(t *testing.T) []string {
	t.Helper()
	envs := l.envelopes(t)
	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = env.Event
	}
	return names
}

type markCall struct {
	conversationID string
	receiverID     string
}

// fakeStore is an in-memory session store with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	insertErr error
	markErr   error
	inserted  []*domain.Message
	marks     []markCall
}

var _ store.Store = (*fakeStore)(nil)

func (s *fakeStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return nil, store.ErrUserNotFound
}

func (s *fakeStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	msg.ID = primitive.NewObjectID()
	s.inserted = append(s.inserted, msg)
	return nil
}

func (s *fakeStore) MarkConversationRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return 0, s.markErr
	}
	s.marks = append(s.marks, markCall{conversationID, receiverID})
	return 1, nil
}

func (s *fakeStore) Ping(ctx context.Context) error  { return nil }
func (s *fakeStore) Close(ctx context.Context) error { return nil }

// fakeAdapter records published envelopes.
type fakeAdapter struct {
	mu        sync.Mutex
	published []fanout.Envelope
}

var _ fanout.Adapter = (*fakeAdapter)(nil)

func (a *fakeAdapter) Publish(ctx context.Context, env fanout.Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.published = append(a.published, env)
	return nil
}

func (a *fakeAdapter) Run(ctx context.Context, handler fanout.Handler) error {
	<-ctx.Done()
	return nil
}

func (a *fakeAdapter) Close(ctx context.Context) error { return nil }

// --- Fixture ---

type fixture struct {
	relay   *relay.Relay
	states  *statemanager.InMemoryManager
	store   *fakeStore
	adapter *fakeAdapter
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newFixture() *fixture {
	st := &fakeStore{}
	adapter := &fakeAdapter{}
	states := statemanager.NewInMemoryManager(newTestLogger())
	return &fixture{
		relay:   relay.New(newTestLogger(), states, st, adapter, "proc-1"),
		states:  states,
		store:   st,
		adapter: adapter,
	}
}

// connect registers a link for the given user and joins it to rooms.
func (f *fixture) connect(t *testing.T, userID string, rooms ...string) *fakeLink {
	t.Helper()
	link := newFakeLink()
	if _, err := f.states.RegisterConnection(link, "127.0.0.1", domain.Identity{ID: userID, Username: "name-" + userID, Role: "mentee"}); err != nil {
		t.Fatalf("RegisterConnection failed: %v", err)
	}
	f.states.RecordOnline(userID, link.ID())
	for _, room := range rooms {
		if _, err := f.states.Join(link.ID(), room); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
	}
	return link
}

func (f *fixture) handle(link *fakeLink, frame string) {
	f.relay.HandleMessage(context.Background(), link.ID(), []byte(frame))
}

// --- Tests ---

func TestSendMessageBroadcastToBothMembers(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")
	b := f.connect(t, "b", "a_b")

	f.handle(a, `{"event":"sendMessage","payload":{"receiverId":"b","content":"hi","conversationId":"a_b"}}`)

	if len(f.store.inserted) != 1 {
		t.Fatalf("Expected one persisted message, got %d", len(f.store.inserted))
	}

	var got [2]domain.Message
	for i, link := range []*fakeLink{a, b} {
		envs := link.envelopes(t)
		if len(envs) != 1 || envs[0].Event != protocol.EventReceiveMessage {
			t.Fatalf("Expected exactly one receiveMessage on link %d, got %v", i, link.events(t))
		}
		if err := json.Unmarshal(envs[0].Payload, &got[i]); err != nil {
			t.Fatalf("Bad receiveMessage payload: %v", err)
		}
	}

	if got[0].ID != got[1].ID {
		t.Error("Sender and receiver must see the same persisted id")
	}
	if got[0].ID.IsZero() {
		t.Error("Broadcast message must carry the generated id")
	}
	if got[0].Content != "hi" || got[0].Read {
		t.Errorf("Unexpected message payload: %+v", got[0])
	}
	if got[0].SenderID != "a" || got[0].ReceiverID != "b" {
		t.Errorf("Unexpected sender/receiver: %+v", got[0])
	}

	// The broadcast is mirrored for other process instances.
	if len(f.adapter.published) != 1 || f.adapter.published[0].RoomID != "a_b" {
		t.Errorf("Expected one fanout envelope for room a_b, got %+v", f.adapter.published)
	}
}

func TestSendMessageEmptyContentNeverReachesStore(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")
	b := f.connect(t, "b", "a_b")

	f.handle(a, `{"event":"sendMessage","payload":{"receiverId":"b","content":"   ","conversationId":"a_b"}}`)

	if len(f.store.inserted) != 0 {
		t.Fatal("Whitespace-only content must be rejected before persistence")
	}
	events := a.events(t)
	if len(events) != 1 || events[0] != protocol.EventError {
		t.Fatalf("Expected a single error event to the sender, got %v", events)
	}
	if len(b.events(t)) != 0 {
		t.Error("Other members must not observe a rejected send")
	}
}

func TestSendMessagePersistenceFailureContained(t *testing.T) {
	f := newFixture()
	f.store.insertErr = fmt.Errorf("write concern error")
	a := f.connect(t, "a", "a_b")
	b := f.connect(t, "b", "a_b")

	f.handle(a, `{"event":"sendMessage","payload":{"receiverId":"b","content":"hi","conversationId":"a_b"}}`)

	events := a.events(t)
	if len(events) != 1 || events[0] != protocol.EventError {
		t.Fatalf("Expected a single error event to the origin, got %v", events)
	}
	if len(b.events(t)) != 0 {
		t.Error("Persistence failure must not leak to other connections")
	}
	if len(f.adapter.published) != 0 {
		t.Error("A dropped message must not be mirrored cross-process")
	}
}

func TestTypingBroadcastsInOrderExcludingSender(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")
	b := f.connect(t, "b", "a_b")

	f.handle(a, `{"event":"typing","payload":{"conversationId":"a_b","isTyping":true}}`)
	f.handle(a, `{"event":"typing","payload":{"conversationId":"a_b","isTyping":false}}`)

	if len(a.events(t)) != 0 {
		t.Error("Typing must not echo back to the sender")
	}

	envs := b.envelopes(t)
	if len(envs) != 2 {
		t.Fatalf("Expected exactly two userTyping events, got %v", b.events(t))
	}
	var first, second protocol.UserTypingPayload
	if envs[0].Event != protocol.EventUserTyping || envs[1].Event != protocol.EventUserTyping {
		t.Fatalf("Expected userTyping events, got %v", b.events(t))
	}
	if err := json.Unmarshal(envs[0].Payload, &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(envs[1].Payload, &second); err != nil {
		t.Fatal(err)
	}
	if !first.IsTyping || second.IsTyping {
		t.Errorf("Expected isTyping true then false, got %v then %v", first.IsTyping, second.IsTyping)
	}
	if first.UserID != "a" {
		t.Errorf("Typing event must carry the sender's user id, got %q", first.UserID)
	}
}

func TestMarkAsReadUpdatesStoreAndNotifiesRoom(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")
	b := f.connect(t, "b", "a_b")

	f.handle(b, `{"event":"markAsRead","payload":{"conversationId":"a_b","userId":"b"}}`)

	if len(f.store.marks) != 1 {
		t.Fatalf("Expected one bulk read update, got %d", len(f.store.marks))
	}
	if f.store.marks[0] != (markCall{"a_b", "b"}) {
		t.Errorf("Unexpected mark filter: %+v", f.store.marks[0])
	}

	for _, link := range []*fakeLink{a, b} {
		envs := link.envelopes(t)
		if len(envs) != 1 || envs[0].Event != protocol.EventMessagesRead {
			t.Fatalf("Expected messagesRead on every member, got %v", link.events(t))
		}
		var payload protocol.MessagesReadPayload
		if err := json.Unmarshal(envs[0].Payload, &payload); err != nil {
			t.Fatal(err)
		}
		if payload.ConversationID != "a_b" || payload.UserID != "b" {
			t.Errorf("Unexpected messagesRead payload: %+v", payload)
		}
	}
}

func TestJoinRoomNotifiesExistingMembersOnly(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a")
	b := f.connect(t, "b")

	f.handle(a, `{"event":"joinRoom","payload":"a_b"}`)
	if len(a.events(t)) != 0 {
		t.Error("First joiner has nobody to be notified by")
	}

	f.handle(b, `{"event":"joinRoom","payload":"a_b"}`)
	envs := a.envelopes(t)
	if len(envs) != 1 || envs[0].Event != protocol.EventUserJoinedRoom {
		t.Fatalf("Expected userJoinedRoom on the existing member, got %v", a.events(t))
	}
	var payload protocol.RoomPresencePayload
	if err := json.Unmarshal(envs[0].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UserID != "b" || payload.Username != "name-b" {
		t.Errorf("Unexpected join payload: %+v", payload)
	}
	if len(b.events(t)) != 0 {
		t.Error("The joiner must not receive their own join notification")
	}
}

func TestLeaveRoomNotifiesRemainingMembers(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")
	b := f.connect(t, "b", "a_b")

	f.handle(b, `{"event":"leaveRoom","payload":"a_b"}`)

	envs := a.envelopes(t)
	if len(envs) != 1 || envs[0].Event != protocol.EventUserLeftRoom {
		t.Fatalf("Expected userLeftRoom on the remaining member, got %v", a.events(t))
	}
	if len(b.events(t)) != 0 {
		t.Error("The leaver must not receive a leave notification")
	}
}

func TestUnknownEventEmitsError(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")

	f.handle(a, `{"event":"selfDestruct","payload":{}}`)

	events := a.events(t)
	if len(events) != 1 || events[0] != protocol.EventError {
		t.Fatalf("Expected a single error event, got %v", events)
	}
}

func TestUnregisteredConnectionIsDropped(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")

	f.relay.HandleMessage(context.Background(), uuid.New(), []byte(`{"event":"joinRoom","payload":"a_b"}`))

	if len(a.events(t)) != 0 {
		t.Error("Messages from unregistered connections must be ignored")
	}
}

func TestDisconnectedSenderStopsReachingRoom(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")
	b := f.connect(t, "b", "a_b")

	// A drops without leaveRoom.
	f.states.DeregisterConnection(a.ID())
	f.handle(a, `{"event":"sendMessage","payload":{"receiverId":"b","content":"late","conversationId":"a_b"}}`)

	if len(b.events(t)) != 0 {
		t.Error("Commands from a deregistered connection must not reach the room")
	}
	if len(f.store.inserted) != 0 {
		t.Error("Nothing should be persisted for a deregistered connection")
	}
}

func TestHandleRemoteDeliversToLocalMembers(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a", "a_b")
	outsider := f.connect(t, "c", "other_room")

	payload, _ := json.Marshal(protocol.MessagesReadPayload{ConversationID: "a_b", UserID: "b"})
	f.relay.HandleRemote(fanout.Envelope{
		Origin:  "proc-2",
		RoomID:  "a_b",
		Event:   protocol.EventMessagesRead,
		Payload: payload,
	})

	envs := a.envelopes(t)
	if len(envs) != 1 || envs[0].Event != protocol.EventMessagesRead {
		t.Fatalf("Expected the remote event on local room members, got %v", a.events(t))
	}
	if len(outsider.events(t)) != 0 {
		t.Error("Remote events must only reach members of the target room")
	}
}

func TestBroadcastToAll(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "a")
	b := f.connect(t, "b")

	f.relay.BroadcastToAll(protocol.EventUserOnline, protocol.UserPresencePayload{UserID: "c"})

	for _, link := range []*fakeLink{a, b} {
		events := link.events(t)
		if len(events) != 1 || events[0] != protocol.EventUserOnline {
			t.Fatalf("Expected userOnline on every connection, got %v", events)
		}
	}
}
