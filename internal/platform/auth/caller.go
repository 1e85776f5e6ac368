package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is the account type carried in the token.
type Role string

const (
	RolePatient  Role = "patient"
	RolePharmacy Role = "pharmacy"
	// RoleAdmin is never assigned at registration; operators obtain it
	// through the token CLI.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a role a user may register with.
func (r Role) Valid() bool {
	return r == RolePatient || r == RolePharmacy
}

// Caller identifies who is invoking a service operation. The zero value is
// an anonymous caller.
type Caller struct {
	UserID uuid.UUID
	Role   Role
}

func (c Caller) Authenticated() bool { return c.UserID != uuid.Nil }
func (c Caller) IsPatient() bool     { return c.Authenticated() && c.Role == RolePatient }
func (c Caller) IsPharmacy() bool    { return c.Authenticated() && c.Role == RolePharmacy }
func (c Caller) IsAdmin() bool       { return c.Authenticated() && c.Role == RoleAdmin }

type callerKey struct{}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller in ctx, or an anonymous caller.
func CallerFromContext(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}
