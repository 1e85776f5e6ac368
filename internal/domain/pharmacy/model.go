package pharmacy

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Medicine is a stock line in one pharmacy's inventory.
type Medicine struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	PharmacyID           uuid.UUID       `db:"pharmacy_id" json:"pharmacy_id"`
	Name                 string          `db:"name" json:"name"`
	Description          string          `db:"description" json:"description"`
	Price                decimal.Decimal `db:"price" json:"price"`
	Stock                int             `db:"stock" json:"stock"`
	Discount             decimal.Decimal `db:"discount" json:"discount"`
	RequiresPrescription bool            `db:"requires_prescription" json:"requires_prescription"`
	ExpiryDate           time.Time       `db:"expiry_date" json:"expiry_date"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// MedicineInput is the create/update payload. On update, nil fields keep
// their current value.
type MedicineInput struct {
	Name                 *string          `json:"name"`
	Description          *string          `json:"description"`
	Price                *decimal.Decimal `json:"price"`
	Stock                *int             `json:"stock"`
	Discount             *decimal.Decimal `json:"discount"`
	RequiresPrescription *bool            `json:"requires_prescription"`
	ExpiryDate           *string          `json:"expiry_date"`
}

// MedicineFilter narrows medicine listings.
type MedicineFilter struct {
	PharmacyID *uuid.UUID
	// Search matches name or description, case-insensitively.
	Search string
}

// Location is the directory's view of a pharmacy: who it is and where.
type Location struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	BusinessName string    `json:"business_name"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	IsVerified   bool      `json:"is_verified"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
}

// Geocoded reports whether the pharmacy can take part in proximity search.
func (l Location) Geocoded() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Candidate is a pharmacy with its distance from a search origin.
type Candidate struct {
	Pharmacy   Location
	DistanceKm float64
}

// Filter restricts directory searches.
type Filter struct {
	VerifiedOnly bool
}

const (
	SortByDistance = "distance"
	SortByPrice    = "price"
)

// NearbyQuery searches medicines by name around a point.
type NearbyQuery struct {
	Name     string
	Lat      float64
	Lon      float64
	RadiusKm float64
	Sort     string
}

// MedicineAt is a medicine joined with the pharmacy that stocks it.
type MedicineAt struct {
	Medicine Medicine
	Pharmacy Location
}

// NearbyPharmacy is the pharmacy summary embedded in search results.
type NearbyPharmacy struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Phone     string    `json:"phone"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

// NearbyMedicine is one search_nearby result. Distance is in kilometres,
// rounded to two decimals.
type NearbyMedicine struct {
	ID                   uuid.UUID       `json:"id"`
	Name                 string          `json:"name"`
	Price                decimal.Decimal `json:"price"`
	Stock                int             `json:"stock"`
	RequiresPrescription bool            `json:"requires_prescription"`
	Pharmacy             NearbyPharmacy  `json:"pharmacy"`
	Distance             float64         `json:"distance"`
}
