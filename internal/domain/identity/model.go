package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Role         auth.Role `db:"role" json:"role"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number"`
	Address      string    `db:"address" json:"address"`
	Latitude     *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude    *float64  `db:"longitude" json:"longitude,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type PatientProfile struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UserID           uuid.UUID  `db:"user_id" json:"user_id"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	MedicalHistory   string     `db:"medical_history" json:"medical_history"`
	Allergies        string     `db:"allergies" json:"allergies"`
	EmergencyContact string     `db:"emergency_contact" json:"emergency_contact"`
	EmergencyPhone   string     `db:"emergency_phone" json:"emergency_phone"`
}

type PharmacyProfile struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	LicenseNumber  string          `db:"license_number" json:"license_number"`
	BusinessName   string          `db:"business_name" json:"business_name"`
	OperatingHours string          `db:"operating_hours" json:"operating_hours"`
	IsVerified     bool            `db:"is_verified" json:"is_verified"`
	Rating         decimal.Decimal `db:"rating" json:"rating"`
	TotalRatings   int             `db:"total_ratings" json:"total_ratings"`
	Latitude       *float64        `db:"latitude" json:"latitude"`
	Longitude      *float64        `db:"longitude" json:"longitude"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Account is a user together with its role profile.
type Account struct {
	*User
	PatientProfile  *PatientProfile  `json:"patient_profile,omitempty"`
	PharmacyProfile *PharmacyProfile `json:"pharmacy_profile,omitempty"`
}

// RegisterInput is the self-service registration payload. License number
// and business name are required for pharmacies only.
type RegisterInput struct {
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Password      string    `json:"password"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Role          auth.Role `json:"role"`
	PhoneNumber   string    `json:"phone_number"`
	Address       string    `json:"address"`
	Latitude      *float64  `json:"latitude"`
	Longitude     *float64  `json:"longitude"`
	LicenseNumber string    `json:"license_number"`
	BusinessName  string    `json:"business_name"`
}

type LoginInput struct {
	// Username accepts either the username or the email address.
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *Account  `json:"user"`
}

// UpdateUserInput carries contact details. Nil fields are left unchanged.
type UpdateUserInput struct {
	FirstName   *string  `json:"first_name"`
	LastName    *string  `json:"last_name"`
	PhoneNumber *string  `json:"phone_number"`
	Address     *string  `json:"address"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type UpdatePharmacyInput struct {
	BusinessName   *string  `json:"business_name"`
	OperatingHours *string  `json:"operating_hours"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
}

type UpdatePatientInput struct {
	DateOfBirth      *string `json:"date_of_birth"`
	MedicalHistory   *string `json:"medical_history"`
	Allergies        *string `json:"allergies"`
	EmergencyContact *string `json:"emergency_contact"`
	EmergencyPhone   *string `json:"emergency_phone"`
}
