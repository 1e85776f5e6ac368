package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/internal/platform/geo"
)

const minPasswordLength = 8

// TokenIssuer issues access tokens after a successful login.
type TokenIssuer interface {
	Issue(userID uuid.UUID, role auth.Role) (string, time.Time, error)
}

type Service struct {
	users      UserRepository
	patients   PatientProfileRepository
	pharmacies PharmacyProfileRepository
	tx         db.TxManager
	tokens     TokenIssuer
	logger     zerolog.Logger
	bcryptCost int
}

func NewService(
	users UserRepository,
	patients PatientProfileRepository,
	pharmacies PharmacyProfileRepository,
	tx db.TxManager,
	tokens TokenIssuer,
	logger zerolog.Logger,
) *Service {
	return &Service{
		users:      users,
		patients:   patients,
		pharmacies: pharmacies,
		tx:         tx,
		tokens:     tokens,
		logger:     logger.With().Str("service", "identity").Logger(),
		bcryptCost: bcrypt.DefaultCost,
	}
}

// -- Registration and login --

// Register creates a user and its role profile in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	acct := &Account{User: &User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Address:      strings.TrimSpace(in.Address),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
	}}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, acct.User); err != nil {
			return err
		}
		switch in.Role {
		case auth.RolePatient:
			acct.PatientProfile = &PatientProfile{UserID: acct.ID}
			return s.patients.Create(ctx, acct.PatientProfile)
		case auth.RolePharmacy:
			acct.PharmacyProfile = &PharmacyProfile{
				UserID:        acct.ID,
				LicenseNumber: strings.TrimSpace(in.LicenseNumber),
				BusinessName:  strings.TrimSpace(in.BusinessName),
				Latitude:      in.Latitude,
				Longitude:     in.Longitude,
			}
			return s.pharmacies.Create(ctx, acct.PharmacyProfile)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", acct.ID.String()).Str("role", string(acct.Role)).Msg("user registered")
	return acct, nil
}

func validateRegistration(in RegisterInput) error {
	fields := map[string]string{}
	required := map[string]string{
		"username":     in.Username,
		"first_name":   in.FirstName,
		"last_name":    in.LastName,
		"phone_number": in.PhoneNumber,
		"address":      in.Address,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			fields[name] = "this field is required"
		}
	}
	if in.Email == "" {
		fields["email"] = "this field is required"
	} else if _, err := mail.ParseAddress(in.Email); err != nil {
		fields["email"] = "enter a valid email address"
	}
	if len(in.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLength)
	}
	if !in.Role.Valid() {
		fields["role"] = "must be either 'patient' or 'pharmacy'"
	}
	if in.Role == auth.RolePharmacy {
		if strings.TrimSpace(in.LicenseNumber) == "" {
			fields["license_number"] = "this field is required"
		}
		if strings.TrimSpace(in.BusinessName) == "" {
			fields["business_name"] = "this field is required"
		}
	}
	if msg := checkCoordinates(in.Latitude, in.Longitude); msg != "" {
		fields["latitude"] = msg
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid registration", fields)
	}
	return nil
}

// checkCoordinates requires both or neither coordinate, within range.
func checkCoordinates(lat, lon *float64) string {
	if (lat == nil) != (lon == nil) {
		return "latitude and longitude must be given together"
	}
	if lat != nil && !geo.ValidCoordinates(*lat, *lon) {
		return "coordinates out of range"
	}
	return ""
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	login := strings.TrimSpace(in.Username)
	if login == "" || in.Password == "" {
		return nil, apperr.Validation("username and password are required", nil)
	}

	u, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.AuthenticationRequired("invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperr.AuthenticationRequired("invalid credentials")
	}

	token, exp, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	acct, err := s.account(ctx, u)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, User: acct}, nil
}

// -- Current user --

func (s *Service) Me(ctx context.Context, caller auth.Caller) (*Account, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	u, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	return s.account(ctx, u)
}

func (s *Service) UpdateMe(ctx context.Context, caller auth.Caller, in UpdateUserInput) (*Account, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	u, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.PhoneNumber != nil {
		u.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.Address != nil {
		u.Address = strings.TrimSpace(*in.Address)
	}
	if in.Latitude != nil || in.Longitude != nil {
		if msg := checkCoordinates(in.Latitude, in.Longitude); msg != "" {
			return nil, apperr.Field("latitude", msg)
		}
		u.Latitude, u.Longitude = in.Latitude, in.Longitude
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return s.account(ctx, u)
}

func (s *Service) account(ctx context.Context, u *User) (*Account, error) {
	acct := &Account{User: u}
	var err error
	switch u.Role {
	case auth.RolePatient:
		acct.PatientProfile, err = s.patients.GetByUserID(ctx, u.ID)
	case auth.RolePharmacy:
		acct.PharmacyProfile, err = s.pharmacies.GetByUserID(ctx, u.ID)
	}
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	return acct, nil
}

// GetUser returns a user by id. Other domains use it to resolve addresses
// and display names.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// -- Pharmacy profiles --

// ListPharmacies shows a pharmacy its own profile, admins every profile and
// everyone else the verified ones.
func (s *Service) ListPharmacies(ctx context.Context, caller auth.Caller, limit, offset int) ([]*PharmacyProfile, int, error) {
	if !caller.Authenticated() {
		return nil, 0, apperr.AuthenticationRequired("authentication required")
	}
	switch caller.Role {
	case auth.RolePharmacy:
		p, err := s.pharmacies.GetByUserID(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return []*PharmacyProfile{}, 0, nil
			}
			return nil, 0, err
		}
		return []*PharmacyProfile{p}, 1, nil
	case auth.RoleAdmin:
		return s.pharmacies.List(ctx, false, limit, offset)
	default:
		return s.pharmacies.List(ctx, true, limit, offset)
	}
}

func (s *Service) GetPharmacy(ctx context.Context, caller auth.Caller, id uuid.UUID) (*PharmacyProfile, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	p, err := s.pharmacies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsVerified && !caller.IsAdmin() && p.UserID != caller.UserID {
		return nil, apperr.NotFound("pharmacy not found")
	}
	return p, nil
}

func (s *Service) MyPharmacy(ctx context.Context, caller auth.Caller) (*PharmacyProfile, error) {
	if !caller.IsPharmacy() {
		return nil, apperr.Forbidden("only pharmacies have a pharmacy profile")
	}
	return s.pharmacies.GetByUserID(ctx, caller.UserID)
}

func (s *Service) UpdateMyPharmacy(ctx context.Context, caller auth.Caller, in UpdatePharmacyInput) (*PharmacyProfile, error) {
	p, err := s.MyPharmacy(ctx, caller)
	if err != nil {
		return nil, err
	}
	if in.BusinessName != nil {
		name := strings.TrimSpace(*in.BusinessName)
		if name == "" {
			return nil, apperr.Field("business_name", "must not be blank")
		}
		p.BusinessName = name
	}
	if in.OperatingHours != nil {
		p.OperatingHours = *in.OperatingHours
	}
	if in.Latitude != nil || in.Longitude != nil {
		if msg := checkCoordinates(in.Latitude, in.Longitude); msg != "" {
			return nil, apperr.Field("latitude", msg)
		}
		p.Latitude, p.Longitude = in.Latitude, in.Longitude
	}
	if err := s.pharmacies.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// VerifyPharmacy marks a pharmacy as verified. Admin only.
func (s *Service) VerifyPharmacy(ctx context.Context, caller auth.Caller, id uuid.UUID) (*PharmacyProfile, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can verify pharmacies")
	}
	p, err := s.pharmacies.SetVerified(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("pharmacy_id", id.String()).Str("by", caller.UserID.String()).Msg("pharmacy verified")
	return p, nil
}

// -- Patient profiles --

func (s *Service) MyPatientProfile(ctx context.Context, caller auth.Caller) (*PatientProfile, error) {
	if !caller.IsPatient() {
		return nil, apperr.Forbidden("only patients have a patient profile")
	}
	return s.patients.GetByUserID(ctx, caller.UserID)
}

func (s *Service) UpdateMyPatientProfile(ctx context.Context, caller auth.Caller, in UpdatePatientInput) (*PatientProfile, error) {
	p, err := s.MyPatientProfile(ctx, caller)
	if err != nil {
		return nil, err
	}
	if in.DateOfBirth != nil {
		if *in.DateOfBirth == "" {
			p.DateOfBirth = nil
		} else {
			dob, err := time.Parse("2006-01-02", *in.DateOfBirth)
			if err != nil {
				return nil, apperr.Field("date_of_birth", "must be YYYY-MM-DD")
			}
			if dob.After(time.Now()) {
				return nil, apperr.Field("date_of_birth", "must not be in the future")
			}
			p.DateOfBirth = &dob
		}
	}
	if in.MedicalHistory != nil {
		p.MedicalHistory = *in.MedicalHistory
	}
	if in.Allergies != nil {
		p.Allergies = *in.Allergies
	}
	if in.EmergencyContact != nil {
		p.EmergencyContact = *in.EmergencyContact
	}
	if in.EmergencyPhone != nil {
		p.EmergencyPhone = *in.EmergencyPhone
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
