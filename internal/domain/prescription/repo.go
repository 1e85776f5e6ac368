package prescription

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	List(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error)
	// Assign sets the pharmacy and marks the prescription accepted, only if
	// no pharmacy holds it yet. It returns Conflict when one does.
	Assign(ctx context.Context, id, pharmacyID uuid.UUID) (*Prescription, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	// GetByID returns the order with its items.
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	List(ctx context.Context, f OrderFilter, limit, offset int) ([]*Order, int, error)
	// AddItem stores the item and adds its subtotal to the order total. It
	// returns Conflict unless the order is still open.
	AddItem(ctx context.Context, item *OrderItem) error
	// UpdateStatus moves the order from one status to another. It returns
	// Conflict when the order is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error
	// ReassignPending moves the prescription's pending orders to pharmacyID.
	ReassignPending(ctx context.Context, prescriptionID, pharmacyID uuid.UUID) (int64, error)
}

// openOrderStatuses accept new items.
var openOrderStatuses = []string{OrderPending, OrderProcessing}

var zeroTotal = decimal.RequireFromString("0.00")
