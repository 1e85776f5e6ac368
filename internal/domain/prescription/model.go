package prescription

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prescription statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusFilled   = "filled"
	StatusAccepted = "accepted"
)

// Order statuses.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// Prescription is a patient's request to have a prescription filled.
// PharmacyID is set once, when a pharmacy accepts it.
type Prescription struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	MedicineID        *uuid.UUID `json:"medicine_id"`
	PharmacyID        *uuid.UUID `json:"pharmacy_id"`
	PrescriptionImage string     `json:"prescription_image"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes"`
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Order ties a patient to one pharmacy.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	PatientID       uuid.UUID       `json:"patient_id"`
	PharmacyID      uuid.UUID       `json:"pharmacy_id"`
	PrescriptionID  *uuid.UUID      `json:"prescription_id"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is an order line. Price is the medicine's unit price at the
// time the item was added.
type OrderItem struct {
	ID         uuid.UUID       `json:"id"`
	OrderID    uuid.UUID       `json:"order_id"`
	MedicineID uuid.UUID       `json:"medicine_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
}

// Subtotal is price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type SubmitInput struct {
	PrescriptionImage string     `json:"prescription_image"`
	Notes             string     `json:"notes"`
	Latitude          *float64   `json:"latitude"`
	Longitude         *float64   `json:"longitude"`
	MedicineID        *uuid.UUID `json:"medicine_id"`
}

// Submission is the result of submitting a prescription. Order is nil when
// no pharmacy exists to take it.
type Submission struct {
	*Prescription
	Order *Order `json:"order"`
}

// Acceptance is the result of a pharmacy accepting a prescription.
type Acceptance struct {
	*Prescription
	ChatRoomID  uuid.UUID `json:"chat_room_id"`
	ChatRoomURL string    `json:"chat_room_url"`
}

type AddItemInput struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Quantity   int       `json:"quantity"`
}

type StatusInput struct {
	Status string `json:"status"`
}

// PrescriptionFilter narrows prescription listings.
type PrescriptionFilter struct {
	PatientID *uuid.UUID
	// Unassigned limits to pending prescriptions no pharmacy has accepted.
	Unassigned bool
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	PatientID  *uuid.UUID
	PharmacyID *uuid.UUID
}

// nearbyPayload is the data of a prescription.nearby notification.
type nearbyPayload struct {
	PrescriptionID    uuid.UUID `json:"prescription_id"`
	PharmacyID        uuid.UUID `json:"pharmacy_id"`
	DistanceKm        float64   `json:"distance_km"`
	PrescriptionImage string    `json:"prescription_image"`
	Notes             string    `json:"notes"`
}

// acceptedPayload is the data of a prescription.accepted notification.
type acceptedPayload struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	PharmacyID     uuid.UUID `json:"pharmacy_id"`
	ChatRoomID     uuid.UUID `json:"chat_room_id"`
}
