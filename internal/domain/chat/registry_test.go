package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/websocket"
)

// -- Mock Repository --

type mockRepo struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*Room
	pairs    map[[2]uuid.UUID]uuid.UUID
	members  map[uuid.UUID]map[uuid.UUID]bool
	messages []*Message
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		rooms:   make(map[uuid.UUID]*Room),
		pairs:   make(map[[2]uuid.UUID]uuid.UUID),
		members: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (m *mockRepo) GetOrCreateRoom(_ context.Context, low, high uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uuid.UUID{low, high}
	if id, ok := m.pairs[key]; ok {
		return m.rooms[id], nil
	}
	room := &Room{ID: uuid.New(), Participants: []uuid.UUID{low, high}, CreatedAt: time.Now()}
	m.rooms[room.ID] = room
	m.pairs[key] = room.ID
	m.members[room.ID] = map[uuid.UUID]bool{low: true, high: true}
	return room, nil
}

func (m *mockRepo) GetRoom(_ context.Context, id uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, apperr.NotFound("chat room not found")
	}
	return room, nil
}

func (m *mockRepo) IsParticipant(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[roomID][userID], nil
}

func (m *mockRepo) ListRooms(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Room, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Room
	for id, members := range m.members {
		if members[userID] {
			out = append(out, m.rooms[id])
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) CreateMessage(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockRepo) ListMessages(_ context.Context, roomID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].RoomID == roomID {
			out = append(out, m.messages[i])
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) MarkRead(_ context.Context, roomID, readerID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages {
		if msg.RoomID == roomID && msg.SenderID != readerID && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestRegistry() (*Registry, *mockRepo, *websocket.Hub) {
	repo := newMockRepo()
	hub := websocket.NewHub(zerolog.Nop())
	return NewRegistry(repo, passthroughTx{}, hub, zerolog.Nop()), repo, hub
}

func patient() auth.Caller  { return auth.Caller{UserID: uuid.New(), Role: auth.RolePatient} }
func pharmacy() auth.Caller { return auth.Caller{UserID: uuid.New(), Role: auth.RolePharmacy} }

// -- Tests --

func TestGetOrCreateRoom_Idempotent(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	first, err := reg.GetOrCreateRoom(ctx, a, b)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, _ := reg.GetOrCreateRoom(ctx, a, b)
	swapped, _ := reg.GetOrCreateRoom(ctx, b, a)
	if first.ID != again.ID || first.ID != swapped.ID {
		t.Fatal("expected the same room for the pair in either order")
	}
	if len(first.Participants) != 2 {
		t.Errorf("expected 2 participants, got %d", len(first.Participants))
	}
}

func TestGetOrCreateRoom_Concurrent(t *testing.T) {
	reg, repo, _ := newTestRegistry()
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				reg.GetOrCreateRoom(context.Background(), a, b)
			} else {
				reg.GetOrCreateRoom(context.Background(), b, a)
			}
		}(i)
	}
	wg.Wait()
	if len(repo.rooms) != 1 {
		t.Errorf("expected exactly one room, got %d", len(repo.rooms))
	}
}

func TestGetOrCreateRoom_SameUser(t *testing.T) {
	reg, _, _ := newTestRegistry()
	id := uuid.New()
	if _, err := reg.GetOrCreateRoom(context.Background(), id, id); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSortedPair(t *testing.T) {
	low := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	high := uuid.MustParse("f0000000-0000-4000-8000-000000000000")
	if l, h := sortedPair(high, low); l != low || h != high {
		t.Error("pair should be ordered byte-wise")
	}
}

func TestSendMessage_PersistsThenBroadcasts(t *testing.T) {
	reg, repo, hub := newTestRegistry()
	ctx := context.Background()
	p, ph := patient(), pharmacy()
	room, _ := reg.GetOrCreateRoom(ctx, p.UserID, ph.UserID)

	listener := websocket.NewClient(ph.UserID, websocket.ChatTopic(room.ID))
	hub.Register(listener)
	defer hub.Unregister(listener)

	m, err := reg.SendMessage(ctx, p, room.ID, "Is amoxicillin in stock?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.IsRead || m.SenderID != p.UserID || m.RoomID != room.ID {
		t.Errorf("unexpected message %+v", m)
	}
	if repo.count() != 1 {
		t.Fatal("message should be persisted")
	}

	select {
	case frame := <-listener.Send:
		var got map[string]interface{}
		if err := json.Unmarshal(frame, &got); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		for _, k := range []string{"id", "room", "sender", "content", "created_at", "is_read"} {
			if _, ok := got[k]; !ok {
				t.Errorf("frame missing %q: %s", k, frame)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast frame")
	}
}

func TestSendMessage_Rejections(t *testing.T) {
	reg, repo, _ := newTestRegistry()
	ctx := context.Background()
	p, ph := patient(), pharmacy()
	room, _ := reg.GetOrCreateRoom(ctx, p.UserID, ph.UserID)

	tests := []struct {
		name    string
		caller  auth.Caller
		roomID  uuid.UUID
		content string
		want    error
	}{
		{"anonymous", auth.Caller{}, room.ID, "hi", apperr.ErrAuthenticationRequired},
		{"empty", p, room.ID, "", apperr.ErrValidation},
		{"whitespace", p, room.ID, "  \n\t", apperr.ErrValidation},
		{"outsider", patient(), room.ID, "hi", apperr.ErrForbidden},
		{"missing room", p, uuid.New(), "hi", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := reg.SendMessage(ctx, tt.caller, tt.roomID, tt.content); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if repo.count() != 0 {
		t.Errorf("rejected messages must not be persisted, found %d", repo.count())
	}
}

func TestMarkRead_OnlyOthersMessages(t *testing.T) {
	reg, repo, _ := newTestRegistry()
	ctx := context.Background()
	p, ph := patient(), pharmacy()
	room, _ := reg.GetOrCreateRoom(ctx, p.UserID, ph.UserID)

	reg.SendMessage(ctx, p, room.ID, "hello")
	reg.SendMessage(ctx, ph, room.ID, "hi, how can we help?")
	reg.SendMessage(ctx, ph, room.ID, "we have it in stock")

	n, err := reg.MarkRead(ctx, p, room.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 messages marked, got %d", n)
	}
	for _, m := range repo.messages {
		if m.SenderID == p.UserID && m.IsRead {
			t.Error("reader's own message must stay unread")
		}
		if m.SenderID == ph.UserID && !m.IsRead {
			t.Error("pharmacy message should be read")
		}
	}

	if _, err := reg.MarkRead(ctx, patient(), room.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for outsider, got %v", err)
	}
}

func TestGetRoomAndListMessages_HiddenFromOutsiders(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()
	p, ph := patient(), pharmacy()
	room, _ := reg.GetOrCreateRoom(ctx, p.UserID, ph.UserID)
	reg.SendMessage(ctx, p, room.ID, "first")
	reg.SendMessage(ctx, ph, room.ID, "second")

	msgs, total, err := reg.ListMessages(ctx, p, room.ID, 20, 0)
	if err != nil || total != 2 {
		t.Fatalf("list: total=%d err=%v", total, err)
	}
	if msgs[0].Content != "second" {
		t.Error("newest message should come first")
	}

	if _, err := reg.GetRoom(ctx, pharmacy(), room.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for outsider, got %v", err)
	}
	if _, _, err := reg.ListMessages(ctx, pharmacy(), room.ID, 20, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found for outsider, got %v", err)
	}

	rooms, total, _ := reg.ListRooms(ctx, ph, 20, 0)
	if total != 1 || rooms[0].ID != room.ID {
		t.Errorf("pharmacy should list its one room, got %d", total)
	}
}

func TestOpenRoom(t *testing.T) {
	reg, _, _ := newTestRegistry()
	ctx := context.Background()
	p := patient()

	if _, err := reg.OpenRoom(ctx, auth.Caller{}, uuid.New()); !errors.Is(err, apperr.ErrAuthenticationRequired) {
		t.Errorf("expected authentication error, got %v", err)
	}
	if _, err := reg.OpenRoom(ctx, p, uuid.Nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	other := uuid.New()
	room, err := reg.OpenRoom(ctx, p, other)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if RoomURL(room.ID) != "/api/v1/chat/rooms/"+room.ID.String() {
		t.Errorf("unexpected room url %s", RoomURL(room.ID))
	}
}
