package blobstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/db"
)

// PGStore keeps uploads in the uploads table.
type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

func (s *PGStore) Put(ctx context.Context, b *Blob) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO uploads (id, owner_id, file_name, content_type, size, sha256, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.OwnerID, b.FileName, b.ContentType, b.Size, b.Hash, b.Content, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Blob, error) {
	var b Blob
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT id, owner_id, file_name, content_type, size, sha256, content, created_at
		FROM uploads WHERE id = $1`, id).
		Scan(&b.ID, &b.OwnerID, &b.FileName, &b.ContentType, &b.Size, &b.Hash, &b.Content, &b.CreatedAt)
	if err != nil {
		return nil, db.Classify(err, "file not found", "")
	}
	return &b, nil
}

func (s *PGStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("file not found")
	}
	return nil
}

func (s *PGStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Metadata, int, error) {
	q := s.conn(ctx)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM uploads WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count uploads: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, owner_id, file_name, content_type, size, sha256, created_at
		FROM uploads WHERE owner_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []*Metadata
	for rows.Next() {
		var m Metadata
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.FileName, &m.ContentType, &m.Size, &m.Hash, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, &m)
	}
	return out, total, rows.Err()
}
