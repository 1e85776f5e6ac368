// Package geo provides great-circle distance helpers used by proximity search.
package geo

import "math"

// EarthRadiusKm is the mean spherical Earth radius.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometers between two
// coordinates given in decimal degrees, using the spherical law of cosines.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	phi1, phi2 := radians(lat1), radians(lat2)
	dLambda := radians(lon2) - radians(lon1)

	c := math.Cos(phi1)*math.Cos(phi2)*math.Cos(dLambda) + math.Sin(phi1)*math.Sin(phi2)
	// Rounding can push c just outside acos's domain.
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return EarthRadiusKm * math.Acos(c)
}

// Round2 rounds to two decimal places, as distances are reported by the API.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ValidCoordinates reports whether lat/lon are within their ranges.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
