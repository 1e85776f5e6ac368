package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BroadcastRepository interface {
	Create(ctx context.Context, b *Broadcast) error
	GetByID(ctx context.Context, id uuid.UUID) (*Broadcast, error)
	// GetForUpdate locks the row for the rest of the transaction in ctx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Broadcast, error)
	List(ctx context.Context, f BroadcastFilter, limit, offset int) ([]*Broadcast, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type ResponseRepository interface {
	// Create returns Conflict when the pharmacy already answered the
	// broadcast.
	Create(ctx context.Context, r *Response) error
	GetByID(ctx context.Context, id uuid.UUID) (*Response, error)
	List(ctx context.Context, f ResponseFilter, limit, offset int) ([]*Response, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// NearExpiry returns the pharmacy's pending and accepted responses to
	// active broadcasts expiring in (now, until]. DiscountedPrice is left
	// unset.
	NearExpiry(ctx context.Context, pharmacyID uuid.UUID, now, until time.Time) ([]*Discount, error)
}
