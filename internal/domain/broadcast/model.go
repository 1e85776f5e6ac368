package broadcast

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Broadcast statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Response statuses.
const (
	ResponsePending  = "pending"
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
)

// Broadcast is an open request from a patient for a medication. Pharmacies
// see it while it is active and unexpired.
type Broadcast struct {
	ID                uuid.UUID `json:"id"`
	PatientID         uuid.UUID `json:"patient_id"`
	MedicationName    string    `json:"medication_name"`
	Dosage            string    `json:"dosage"`
	Frequency         string    `json:"frequency"`
	Duration          string    `json:"duration"`
	Notes             string    `json:"notes"`
	PrescriptionImage string    `json:"prescription_image"`
	Status            string    `json:"status"`
	ExpiryDate        time.Time `json:"expiry_date"`
	ResponsesCount    int       `json:"responses_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// VisibleToPharmacies reports whether pharmacies can see and answer b.
func (b *Broadcast) VisibleToPharmacies(now time.Time) bool {
	return b.Status == StatusActive && b.ExpiryDate.After(now)
}

// Response is one pharmacy's answer to a broadcast. PharmacyID is the
// pharmacy's user id.
type Response struct {
	ID                    uuid.UUID        `json:"id"`
	BroadcastID           uuid.UUID        `json:"broadcast_id"`
	PharmacyID            uuid.UUID        `json:"pharmacy_id"`
	Status                string           `json:"status"`
	Price                 *decimal.Decimal `json:"price"`
	EstimatedDeliveryTime *time.Time       `json:"estimated_delivery_time"`
	Notes                 string           `json:"notes"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

type CreateInput struct {
	MedicationName    string     `json:"medication_name"`
	Dosage            string     `json:"dosage"`
	Frequency         string     `json:"frequency"`
	Duration          string     `json:"duration"`
	Notes             string     `json:"notes"`
	PrescriptionImage string     `json:"prescription_image"`
	ExpiryDate        *time.Time `json:"expiry_date"`
}

type RespondInput struct {
	// Status is pending (an offer) or rejected (declined). Empty means pending.
	Status                string           `json:"status"`
	Price                 *decimal.Decimal `json:"price"`
	EstimatedDeliveryTime *time.Time       `json:"estimated_delivery_time"`
	Notes                 string           `json:"notes"`
}

// AcceptResult is returned when a patient accepts a response.
type AcceptResult struct {
	Response  *Response  `json:"response"`
	Broadcast *Broadcast `json:"broadcast"`
}

// Discount is a read-only projection over a pharmacy's open responses to
// broadcasts that expire soon.
type Discount struct {
	ResponseID      uuid.UUID        `json:"response_id"`
	BroadcastID     uuid.UUID        `json:"broadcast_id"`
	MedicationName  string           `json:"medication_name"`
	Status          string           `json:"status"`
	ExpiryDate      time.Time        `json:"expiry_date"`
	Price           *decimal.Decimal `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discounted_price"`
}

// BroadcastFilter narrows broadcast listings.
type BroadcastFilter struct {
	PatientID *uuid.UUID
	// VisibleAt limits to broadcasts pharmacies can see at that instant.
	VisibleAt *time.Time
}

// ResponseFilter narrows response listings.
type ResponseFilter struct {
	PharmacyID *uuid.UUID
	// PatientID limits to responses to that patient's broadcasts.
	PatientID   *uuid.UUID
	BroadcastID *uuid.UUID
}

var discountRate = decimal.NewFromFloat(0.5)

// discounted halves price, rounded to cents. A nil price stays nil.
func discounted(price *decimal.Decimal) *decimal.Decimal {
	if price == nil {
		return nil
	}
	d := price.Mul(discountRate).Round(2)
	return &d
}

type responsePayload struct {
	BroadcastID    uuid.UUID        `json:"broadcast_id"`
	ResponseID     uuid.UUID        `json:"response_id"`
	PharmacyID     uuid.UUID        `json:"pharmacy_id"`
	MedicationName string           `json:"medication_name"`
	Status         string           `json:"status"`
	Price          *decimal.Decimal `json:"price"`
}
