package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByLogin(ctx context.Context, usernameOrEmail string) (*User, error)
	Update(ctx context.Context, u *User) error
}

type PatientProfileRepository interface {
	Create(ctx context.Context, p *PatientProfile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*PatientProfile, error)
	Update(ctx context.Context, p *PatientProfile) error
}

type PharmacyProfileRepository interface {
	Create(ctx context.Context, p *PharmacyProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*PharmacyProfile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*PharmacyProfile, error)
	Update(ctx context.Context, p *PharmacyProfile) error
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*PharmacyProfile, error)
	List(ctx context.Context, verifiedOnly bool, limit, offset int) ([]*PharmacyProfile, int, error)
}
