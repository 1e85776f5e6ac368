package prescription

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconnect/medconnect/internal/domain/identity"
	"github.com/medconnect/medconnect/internal/domain/pharmacy"
	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/db"
	"github.com/medconnect/medconnect/internal/platform/geo"
	"github.com/medconnect/medconnect/internal/platform/notification"
)

// Directory is the part of the pharmacy directory the prescription flow
// depends on. *pharmacy.Directory implements it.
type Directory interface {
	FindWithinRadius(ctx context.Context, lat, lon, radiusKm float64, f pharmacy.Filter) ([]pharmacy.Candidate, error)
	Fallback(ctx context.Context, f pharmacy.Filter) (*pharmacy.Location, error)
	ForUser(ctx context.Context, userID uuid.UUID) (*pharmacy.Location, error)
}

// UserLookup resolves the submitting patient's account.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// MedicineLookup resolves medicines referenced by prescriptions and items.
type MedicineLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*pharmacy.Medicine, error)
}

// MatchConfig controls pharmacy resolution.
type MatchConfig struct {
	RadiusKm     float64
	VerifiedOnly bool
}

// Matcher turns a submitted prescription into a pending order at the
// nearest eligible pharmacy.
type Matcher struct {
	prescriptions PrescriptionRepository
	orders        OrderRepository
	directory     Directory
	users         UserLookup
	medicines     MedicineLookup
	tx            db.TxManager
	notifier      *notification.Notifier
	cfg           MatchConfig
	logger        zerolog.Logger
}

func NewMatcher(prescriptions PrescriptionRepository, orders OrderRepository, directory Directory,
	users UserLookup, medicines MedicineLookup, tx db.TxManager, notifier *notification.Notifier,
	cfg MatchConfig, logger zerolog.Logger) *Matcher {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 10
	}
	return &Matcher{
		prescriptions: prescriptions,
		orders:        orders,
		directory:     directory,
		users:         users,
		medicines:     medicines,
		tx:            tx,
		notifier:      notifier,
		cfg:           cfg,
		logger:        logger.With().Str("service", "prescription-matcher").Logger(),
	}
}

// SubmitPrescription stores the prescription and, in the same transaction,
// opens a pending order at the nearest pharmacy within the configured
// radius, or at the fallback pharmacy. Pharmacies within the radius are
// notified after commit.
func (m *Matcher) SubmitPrescription(ctx context.Context, caller auth.Caller, in SubmitInput) (*Submission, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	if !caller.IsPatient() {
		return nil, apperr.Forbidden("only patients can submit prescriptions")
	}
	if err := m.validate(ctx, &in); err != nil {
		return nil, err
	}

	patient, err := m.users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}

	var (
		sub    = &Submission{}
		nearby []pharmacy.Candidate
	)
	err = m.tx.WithTransaction(ctx, func(ctx context.Context) error {
		p := &Prescription{
			PatientID:         caller.UserID,
			MedicineID:        in.MedicineID,
			PrescriptionImage: in.PrescriptionImage,
			Status:            StatusPending,
			Notes:             in.Notes,
			Latitude:          in.Latitude,
			Longitude:         in.Longitude,
		}
		if err := m.prescriptions.Create(ctx, p); err != nil {
			return err
		}
		sub.Prescription = p

		var target *pharmacy.Location
		target, nearby, err = m.resolve(ctx, in)
		if err != nil {
			return err
		}
		if target == nil {
			m.logger.Info().Str("prescription_id", p.ID.String()).Msg("no pharmacy available, order not created")
			return nil
		}

		o := &Order{
			PatientID:       caller.UserID,
			PharmacyID:      target.ID,
			PrescriptionID:  &p.ID,
			Status:          OrderPending,
			TotalAmount:     zeroTotal,
			ShippingAddress: shippingAddress(patient),
		}
		if err := m.orders.Create(ctx, o); err != nil {
			return err
		}
		sub.Order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.notifyNearby(sub.Prescription, nearby)
	return sub, nil
}

// resolve picks the pharmacy for a new order. It returns the candidates
// within the radius as well so they can be notified.
func (m *Matcher) resolve(ctx context.Context, in SubmitInput) (*pharmacy.Location, []pharmacy.Candidate, error) {
	f := pharmacy.Filter{VerifiedOnly: m.cfg.VerifiedOnly}

	var nearby []pharmacy.Candidate
	if in.Latitude != nil && in.Longitude != nil {
		var err error
		nearby, err = m.directory.FindWithinRadius(ctx, *in.Latitude, *in.Longitude, m.cfg.RadiusKm, f)
		if err != nil {
			return nil, nil, err
		}
		if len(nearby) > 0 {
			nearest := nearby[0].Pharmacy
			return &nearest, nearby, nil
		}
	}

	fallback, err := m.directory.Fallback(ctx, f)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nearby, nil
		}
		return nil, nil, err
	}
	return fallback, nearby, nil
}

func (m *Matcher) notifyNearby(p *Prescription, nearby []pharmacy.Candidate) {
	if m.notifier == nil || len(nearby) == 0 {
		return
	}
	events := make([]notification.Event, 0, len(nearby))
	for _, c := range nearby {
		ev, err := notification.NewEvent(notification.TypePrescriptionNearby, c.Pharmacy.UserID, nearbyPayload{
			PrescriptionID:    p.ID,
			PharmacyID:        c.Pharmacy.ID,
			DistanceKm:        geo.Round2(c.DistanceKm),
			PrescriptionImage: p.PrescriptionImage,
			Notes:             p.Notes,
		})
		if err != nil {
			m.logger.Error().Err(err).Msg("build nearby notification")
			continue
		}
		events = append(events, ev)
	}
	m.notifier.Notify(events...)
}

func (m *Matcher) validate(ctx context.Context, in *SubmitInput) error {
	fields := map[string]string{}

	in.PrescriptionImage = strings.TrimSpace(in.PrescriptionImage)
	if in.PrescriptionImage == "" {
		fields["prescription_image"] = "this field is required"
	} else if u, err := url.Parse(in.PrescriptionImage); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fields["prescription_image"] = "enter a valid URL"
	}

	switch {
	case (in.Latitude == nil) != (in.Longitude == nil):
		fields["latitude"] = "latitude and longitude must be given together"
	case in.Latitude != nil && !geo.ValidCoordinates(*in.Latitude, *in.Longitude):
		fields["latitude"] = "invalid coordinates"
	}

	if in.MedicineID != nil && len(fields) == 0 {
		if _, err := m.medicines.GetByID(ctx, *in.MedicineID); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
			fields["medicine_id"] = "medicine not found"
		}
	}

	if len(fields) > 0 {
		return apperr.Validation("invalid prescription", fields)
	}
	return nil
}

func shippingAddress(u *identity.User) string {
	if u == nil || strings.TrimSpace(u.Address) == "" {
		return "N/A"
	}
	return u.Address
}
