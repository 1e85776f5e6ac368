package pharmacy

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/medconnect/medconnect/internal/platform/geo"
)

// Directory answers "which pharmacies are near this point" over pharmacy
// records. Distances are computed in process; no spatial index is used.
type Directory struct {
	locations LocationRepository
}

func NewDirectory(locations LocationRepository) *Directory {
	return &Directory{locations: locations}
}

// FindWithinRadius returns geocoded pharmacies within radiusKm of the
// point, nearest first. Equal distances keep insertion order.
func (d *Directory) FindWithinRadius(ctx context.Context, lat, lon, radiusKm float64, f Filter) ([]Candidate, error) {
	locs, err := d.locations.ListGeocoded(ctx, f)
	if err != nil {
		return nil, err
	}
	return withinRadius(locs, lat, lon, radiusKm), nil
}

func withinRadius(locs []Location, lat, lon, radiusKm float64) []Candidate {
	out := make([]Candidate, 0, len(locs))
	for _, l := range locs {
		if !l.Geocoded() {
			continue
		}
		dist := geo.DistanceKm(lat, lon, *l.Latitude, *l.Longitude)
		if dist <= radiusKm {
			out = append(out, Candidate{Pharmacy: l, DistanceKm: dist})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// Fallback returns the earliest registered pharmacy matching f, with or
// without coordinates. It returns apperr NotFound when there is none.
func (d *Directory) Fallback(ctx context.Context, f Filter) (*Location, error) {
	return d.locations.First(ctx, f)
}

// ForUser resolves the pharmacy owned by a pharmacy user.
func (d *Directory) ForUser(ctx context.Context, userID uuid.UUID) (*Location, error) {
	return d.locations.GetByUserID(ctx, userID)
}
