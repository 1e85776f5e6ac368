package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/internal/platform/websocket"
)

// Registry owns chat rooms and their messages. Messages are persisted
// before they are pushed to the room's socket subscribers.
type Registry struct {
	rooms  Repository
	tx     db.TxManager
	hub    *websocket.Hub
	logger zerolog.Logger
}

// NewRegistry returns a registry. hub may be nil, in which case messages are
// only persisted.
func NewRegistry(rooms Repository, tx db.TxManager, hub *websocket.Hub, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  rooms,
		tx:     tx,
		hub:    hub,
		logger: logger.With().Str("service", "chat").Logger(),
	}
}

// GetOrCreateRoom returns the single room shared by a and b, in either
// order. When ctx carries a transaction the room is created inside it.
func (r *Registry) GetOrCreateRoom(ctx context.Context, a, b uuid.UUID) (*Room, error) {
	if a == b {
		return nil, apperr.Field("participant_id", "cannot open a chat room with yourself")
	}
	low, high := sortedPair(a, b)

	var room *Room
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		room, err = r.rooms.GetOrCreateRoom(ctx, low, high)
		return err
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// OpenRoom is GetOrCreateRoom on behalf of an authenticated caller.
func (r *Registry) OpenRoom(ctx context.Context, caller auth.Caller, participantID uuid.UUID) (*Room, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("Authentication required.")
	}
	if participantID == uuid.Nil {
		return nil, apperr.Field("participant_id", "this field is required")
	}
	return r.GetOrCreateRoom(ctx, caller.UserID, participantID)
}

// GetRoom returns a room the caller takes part in. Rooms of other users
// are reported as missing.
func (r *Registry) GetRoom(ctx context.Context, caller auth.Caller, roomID uuid.UUID) (*Room, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("Authentication required.")
	}
	room, err := r.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	ok, err := r.rooms.IsParticipant(ctx, roomID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("chat room not found")
	}
	return room, nil
}

func (r *Registry) ListRooms(ctx context.Context, caller auth.Caller, limit, offset int) ([]*Room, int, error) {
	if !caller.Authenticated() {
		return nil, 0, apperr.AuthenticationRequired("Authentication required.")
	}
	return r.rooms.ListRooms(ctx, caller.UserID, limit, offset)
}

func (r *Registry) ListMessages(ctx context.Context, caller auth.Caller, roomID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	if _, err := r.GetRoom(ctx, caller, roomID); err != nil {
		return nil, 0, err
	}
	return r.rooms.ListMessages(ctx, roomID, limit, offset)
}

// SendMessage stores a message from caller and pushes it to the room.
// Delivery to sockets is best effort; the stored message is the record.
func (r *Registry) SendMessage(ctx context.Context, caller auth.Caller, roomID uuid.UUID, content string) (*Message, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("Authentication required.")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("Empty message.", map[string]string{"content": "this field is required"})
	}
	if err := r.requireParticipant(ctx, caller, roomID); err != nil {
		return nil, err
	}

	m := &Message{RoomID: roomID, SenderID: caller.UserID, Content: content}
	if err := r.rooms.CreateMessage(ctx, m); err != nil {
		return nil, err
	}

	if r.hub != nil {
		n, err := r.hub.Broadcast(websocket.ChatTopic(roomID), m)
		if err != nil {
			r.logger.Error().Err(err).Str("room_id", roomID.String()).Msg("broadcast chat message")
		} else {
			r.logger.Debug().Str("room_id", roomID.String()).Int("delivered", n).Msg("chat message sent")
		}
	}
	return m, nil
}

// MarkRead marks every message in the room not sent by caller as read.
func (r *Registry) MarkRead(ctx context.Context, caller auth.Caller, roomID uuid.UUID) (int64, error) {
	if !caller.Authenticated() {
		return 0, apperr.AuthenticationRequired("Authentication required.")
	}
	if err := r.requireParticipant(ctx, caller, roomID); err != nil {
		return 0, err
	}
	return r.rooms.MarkRead(ctx, roomID, caller.UserID)
}

func (r *Registry) requireParticipant(ctx context.Context, caller auth.Caller, roomID uuid.UUID) error {
	if _, err := r.rooms.GetRoom(ctx, roomID); err != nil {
		return err
	}
	ok, err := r.rooms.IsParticipant(ctx, roomID, caller.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbidden("You are not a participant of this chat room.")
	}
	return nil
}
