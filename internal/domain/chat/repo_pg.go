package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

const foreignKeyViolation = "23503"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func scanRoom(row pgx.Row) (*Room, error) {
	var (
		room      Room
		low, high uuid.UUID
	)
	if err := row.Scan(&room.ID, &low, &high, &room.CreatedAt); err != nil {
		return nil, db.Classify(err, "chat room not found", "")
	}
	room.Participants = []uuid.UUID{low, high}
	return &room, nil
}

func (r *repoPG) GetOrCreateRoom(ctx context.Context, low, high uuid.UUID) (*Room, error) {
	q := r.conn(ctx)
	// A concurrent creator makes the insert a no-op; the select below then
	// sees the committed row.
	_, err := q.Exec(ctx, `
		INSERT INTO chat_rooms (id, user_low, user_high) VALUES ($1, $2, $3)
		ON CONFLICT (user_low, user_high) DO NOTHING`, uuid.New(), low, high)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return nil, apperr.NotFound("participant not found")
		}
		return nil, fmt.Errorf("insert chat room: %w", err)
	}

	room, err := scanRoom(q.QueryRow(ctx, `
		SELECT id, user_low, user_high, created_at FROM chat_rooms
		WHERE user_low = $1 AND user_high = $2`, low, high))
	if err != nil {
		return nil, err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO chat_room_participants (room_id, user_id) VALUES ($1, $2), ($1, $3)
		ON CONFLICT DO NOTHING`, room.ID, low, high)
	if err != nil {
		return nil, fmt.Errorf("insert chat participants: %w", err)
	}
	return room, nil
}

func (r *repoPG) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	return scanRoom(r.conn(ctx).QueryRow(ctx,
		`SELECT id, user_low, user_high, created_at FROM chat_rooms WHERE id = $1`, id))
}

func (r *repoPG) IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_room_participants WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&ok)
	return ok, err
}

func (r *repoPG) ListRooms(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Room, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_room_participants WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT r.id, r.user_low, r.user_high, r.created_at
		FROM chat_rooms r JOIN chat_room_participants p ON p.room_id = r.id
		WHERE p.user_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, room)
	}
	return items, total, rows.Err()
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.IsRead, &m.CreatedAt); err != nil {
		return nil, db.Classify(err, "message not found", "")
	}
	return &m, nil
}

func (r *repoPG) CreateMessage(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO chat_messages (id, room_id, sender_id, content, is_read)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		m.ID, m.RoomID, m.SenderID, m.Content, m.IsRead).Scan(&m.CreatedAt)
}

func (r *repoPG) ListMessages(ctx context.Context, roomID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE room_id = $1`, roomID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, room_id, sender_id, content, is_read, created_at
		FROM chat_messages WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`, roomID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) MarkRead(ctx context.Context, roomID, readerID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE room_id = $1 AND sender_id <> $2 AND NOT is_read`, roomID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
