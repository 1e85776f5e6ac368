package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f MedicineFilter, limit, offset int) ([]*Medicine, int, error)
	// SearchByName returns medicines whose name contains name at geocoded
	// pharmacies, in pharmacy insertion order.
	SearchByName(ctx context.Context, name string) ([]MedicineAt, error)
}

// LocationRepository reads pharmacy records for the directory. Results are
// ordered by pharmacy insertion order.
type LocationRepository interface {
	ListGeocoded(ctx context.Context, f Filter) ([]Location, error)
	First(ctx context.Context, f Filter) (*Location, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Location, error)
}
