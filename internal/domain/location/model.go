// internal/domain/location/model.go

package location

import (
	"fmt"
	"math"
	"strings"
)

// earthRadiusKm is the mean Earth radius used for haversine distances.
const earthRadiusKm = 6371.0

// Location represents a geographic point tracked by the system.
// It is immutable once created; only the display name may be refined later.
type Location struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Key returns the canonical location key for this location.
func (l Location) Key() string {
	return Key(l.Latitude, l.Longitude)
}

// Key derives the canonical identifier for a coordinate pair by rounding
// both values to four decimal places. Same input always yields the same key.
// Distinct keys may still denote the same conceptual place within tolerance;
// that resolution is a query-time concern, not a key concern.
func Key(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}

// Valid reports whether the location carries usable coordinates.
// A (0,0) pair is treated as missing data, not the Gulf of Guinea.
func (l Location) Valid() bool {
	if l.Latitude == 0 && l.Longitude == 0 {
		return false
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return false
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return false
	}
	return true
}

// Label returns the display name when present, otherwise a coordinate-based
// fallback such as "39.781°N, 89.650°W".
func (l Location) Label() string {
	if name := strings.TrimSpace(l.DisplayName); name != "" {
		return name
	}
	latDir := "N"
	if l.Latitude < 0 {
		latDir = "S"
	}
	lngDir := "E"
	if l.Longitude < 0 {
		lngDir = "W"
	}
	return fmt.Sprintf("%.3f°%s, %.3f°%s", math.Abs(l.Latitude), latDir, math.Abs(l.Longitude), lngDir)
}

// Distance calculates the great-circle distance in kilometers between two
// coordinate pairs using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLng1 := lng1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	rLng2 := lng2 * math.Pi / 180

	dLat := rLat2 - rLat1
	dLng := rLng2 - rLng1

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return c * earthRadiusKm
}

// NamesMatch reports whether two display names refer to the same place,
// ignoring case and surrounding whitespace. Empty names never match.
func NamesMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return a == b
}
