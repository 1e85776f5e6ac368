package chat

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Room is a private conversation between exactly two users. The pair is
// unordered; it is stored sorted so the database can enforce uniqueness.
type Room struct {
	ID           uuid.UUID   `json:"id"`
	Participants []uuid.UUID `json:"participants"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Message is one chat line. The JSON shape is also the WebSocket frame.
type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room"`
	SenderID  uuid.UUID `json:"sender"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRoomInput struct {
	ParticipantID uuid.UUID `json:"participant_id"`
}

type SendMessageInput struct {
	Content string `json:"content"`
}

// MarkReadResult reports how many messages were flipped to read.
type MarkReadResult struct {
	Updated int64 `json:"updated"`
}

// sortedPair orders two user ids the way Postgres orders uuids.
func sortedPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return a, b
	}
	return b, a
}

// RoomURL is the API location of a room.
func RoomURL(id uuid.UUID) string {
	return "/api/v1/chat/rooms/" + id.String()
}
