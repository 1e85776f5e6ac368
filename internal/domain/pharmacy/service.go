package pharmacy

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/medconnect/medconnect/internal/platform/apperr"
	"github.com/medconnect/medconnect/internal/platform/auth"
	"github.com/medconnect/medconnect/internal/platform/geo"
)

// maxDiscount is the largest value the discount column can hold.
var maxDiscount = decimal.RequireFromString("9.99")

type Service struct {
	medicines     MedicineRepository
	directory     *Directory
	defaultRadius float64
	logger        zerolog.Logger
}

func NewService(medicines MedicineRepository, directory *Directory, defaultRadiusKm float64, logger zerolog.Logger) *Service {
	return &Service{
		medicines:     medicines,
		directory:     directory,
		defaultRadius: defaultRadiusKm,
		logger:        logger.With().Str("service", "pharmacy").Logger(),
	}
}

// -- Medicine inventory --

// ListMedicines shows a pharmacy its own inventory and everyone else, including
// anonymous callers, the full catalogue.
func (s *Service) ListMedicines(ctx context.Context, caller auth.Caller, search string, limit, offset int) ([]*Medicine, int, error) {
	f := MedicineFilter{Search: search}
	if caller.IsPharmacy() {
		loc, err := s.directory.ForUser(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return []*Medicine{}, 0, nil
			}
			return nil, 0, err
		}
		f.PharmacyID = &loc.ID
	}
	return s.medicines.List(ctx, f, limit, offset)
}

func (s *Service) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) CreateMedicine(ctx context.Context, caller auth.Caller, in MedicineInput) (*Medicine, error) {
	loc, err := s.callerPharmacy(ctx, caller)
	if err != nil {
		return nil, err
	}

	m := &Medicine{PharmacyID: loc.ID, RequiresPrescription: true}
	if err := applyMedicineInput(m, in, true); err != nil {
		return nil, err
	}
	if err := s.medicines.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) UpdateMedicine(ctx context.Context, caller auth.Caller, id uuid.UUID, in MedicineInput) (*Medicine, error) {
	m, err := s.ownedMedicine(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := applyMedicineInput(m, in, false); err != nil {
		return nil, err
	}
	if err := s.medicines.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) DeleteMedicine(ctx context.Context, caller auth.Caller, id uuid.UUID) error {
	if _, err := s.ownedMedicine(ctx, caller, id); err != nil {
		return err
	}
	return s.medicines.Delete(ctx, id)
}

func (s *Service) callerPharmacy(ctx context.Context, caller auth.Caller) (*Location, error) {
	if !caller.Authenticated() {
		return nil, apperr.AuthenticationRequired("authentication required")
	}
	if !caller.IsPharmacy() {
		return nil, apperr.Forbidden("only pharmacies can manage medicines")
	}
	loc, err := s.directory.ForUser(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Forbidden("pharmacy profile missing")
		}
		return nil, err
	}
	return loc, nil
}

func (s *Service) ownedMedicine(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Medicine, error) {
	loc, err := s.callerPharmacy(ctx, caller)
	if err != nil {
		return nil, err
	}
	m, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.PharmacyID != loc.ID {
		return nil, apperr.Forbidden("medicine belongs to another pharmacy")
	}
	return m, nil
}

func applyMedicineInput(m *Medicine, in MedicineInput, create bool) error {
	fields := map[string]string{}

	if in.Name != nil {
		m.Name = strings.TrimSpace(*in.Name)
	}
	if (create || in.Name != nil) && m.Name == "" {
		fields["name"] = "this field is required"
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			fields["price"] = "price cannot be negative"
		}
		m.Price = in.Price.Round(2)
	} else if create {
		fields["price"] = "this field is required"
	}
	if in.Stock != nil {
		if *in.Stock < 0 {
			fields["stock"] = "stock cannot be negative"
		}
		m.Stock = *in.Stock
	} else if create {
		fields["stock"] = "this field is required"
	}
	if in.Discount != nil {
		if in.Discount.IsNegative() || in.Discount.GreaterThan(maxDiscount) {
			fields["discount"] = "discount must be between 0 and 9.99"
		}
		m.Discount = in.Discount.Round(2)
	}
	if in.RequiresPrescription != nil {
		m.RequiresPrescription = *in.RequiresPrescription
	}
	if in.ExpiryDate != nil {
		d, err := time.Parse("2006-01-02", *in.ExpiryDate)
		if err != nil {
			fields["expiry_date"] = "must be YYYY-MM-DD"
		}
		m.ExpiryDate = d
	} else if create {
		fields["expiry_date"] = "this field is required"
	}

	if len(fields) > 0 {
		return apperr.Validation("invalid medicine", fields)
	}
	return nil
}

// -- Proximity search --

// SearchMedicinesNearby finds medicines by name at pharmacies within the
// query radius. Results are sorted by distance, or by price with distance
// breaking ties.
func (s *Service) SearchMedicinesNearby(ctx context.Context, q NearbyQuery) ([]NearbyMedicine, error) {
	q.Name = strings.TrimSpace(q.Name)
	if q.Name == "" {
		return nil, apperr.Field("name", "this field is required")
	}
	if !geo.ValidCoordinates(q.Lat, q.Lon) {
		return nil, apperr.Validation("Invalid latitude or longitude", nil)
	}
	if q.RadiusKm == 0 {
		q.RadiusKm = s.defaultRadius
	}
	if q.RadiusKm < 0 {
		return nil, apperr.Field("radius", "must not be negative")
	}
	if q.Sort == "" {
		q.Sort = SortByDistance
	}
	if q.Sort != SortByDistance && q.Sort != SortByPrice {
		return nil, apperr.Field("sort", "must be 'distance' or 'price'")
	}

	found, err := s.medicines.SearchByName(ctx, q.Name)
	if err != nil {
		return nil, err
	}

	type hit struct {
		item MedicineAt
		dist float64
	}
	hits := make([]hit, 0, len(found))
	for _, f := range found {
		if !f.Pharmacy.Geocoded() {
			continue
		}
		d := geo.DistanceKm(q.Lat, q.Lon, *f.Pharmacy.Latitude, *f.Pharmacy.Longitude)
		if d <= q.RadiusKm {
			hits = append(hits, hit{item: f, dist: d})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if q.Sort == SortByPrice {
			if c := hits[i].item.Medicine.Price.Cmp(hits[j].item.Medicine.Price); c != 0 {
				return c < 0
			}
		}
		return hits[i].dist < hits[j].dist
	})

	out := make([]NearbyMedicine, len(hits))
	for i, h := range hits {
		m, p := h.item.Medicine, h.item.Pharmacy
		out[i] = NearbyMedicine{
			ID:                   m.ID,
			Name:                 m.Name,
			Price:                m.Price,
			Stock:                m.Stock,
			RequiresPrescription: m.RequiresPrescription,
			Pharmacy: NearbyPharmacy{
				ID:        p.ID,
				Name:      p.BusinessName,
				Address:   p.Address,
				Phone:     p.Phone,
				Latitude:  *p.Latitude,
				Longitude: *p.Longitude,
			},
			Distance: geo.Round2(h.dist),
		}
	}
	return out, nil
}

// Directory exposes the pharmacy directory to other domains.
func (s *Service) Directory() *Directory {
	return s.directory
}
