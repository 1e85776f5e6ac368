package chat

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetOrCreateRoom returns the room for the sorted pair, creating it and
	// its participant rows when missing.
	GetOrCreateRoom(ctx context.Context, low, high uuid.UUID) (*Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*Room, error)
	IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	ListRooms(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Room, int, error)

	CreateMessage(ctx context.Context, m *Message) error
	// ListMessages returns the newest messages first.
	ListMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*Message, int, error)
	// MarkRead flips is_read on messages in the room not sent by readerID.
	MarkRead(ctx context.Context, roomID, readerID uuid.UUID) (int64, error)
}
