// internal/service/freshness/resolver.go

package freshness

import (
	"fmt"
	"math"
)

// Resolver maps a coordinate to an IANA time zone identifier. It is a
// capability boundary: a precise boundary-dataset implementation can be
// supplied by the caller, the bundled one is deliberately coarse because
// the zone is only ever used for labeling.
type Resolver interface {
	Resolve(lat, lng float64) (string, error)
}

// zoneBox is an axis-aligned region mapped to a representative zone.
type zoneBox struct {
	minLat, maxLat float64
	minLng, maxLng float64
	zone           string
}

// coarseBoxes covers the populated regions the service most often sees.
// First match wins; order goes from narrower to wider boxes.
var coarseBoxes = []zoneBox{
	{32, 49, -125, -114, "America/Los_Angeles"},
	{31, 49, -114, -102, "America/Denver"},
	{25, 49, -102, -87, "America/Chicago"},
	{24, 49, -87, -66, "America/New_York"},
	{42, 72, -141, -52, "America/Toronto"},
	{14, 33, -118, -86, "America/Mexico_City"},
	{-35, 13, -82, -34, "America/Sao_Paulo"},
	{50, 61, -11, 2, "Europe/London"},
	{36, 55, -10, 20, "Europe/Berlin"},
	{40, 62, 20, 40, "Europe/Kyiv"},
	{8, 37, 60, 90, "Asia/Kolkata"},
	{18, 54, 90, 125, "Asia/Shanghai"},
	{30, 46, 125, 146, "Asia/Tokyo"},
	{-44, -10, 112, 154, "Australia/Sydney"},
	{-35, 37, -18, 52, "Africa/Lagos"},
}

// CoarseResolver resolves zones from static bounding boxes, falling back to
// a fixed-offset Etc zone derived from longitude.
type CoarseResolver struct{}

// NewCoarseResolver creates a new coarse resolver
func NewCoarseResolver() *CoarseResolver {
	return &CoarseResolver{}
}

// Resolve implements Resolver.
func (r *CoarseResolver) Resolve(lat, lng float64) (string, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", fmt.Errorf("coordinates out of range: (%f, %f)", lat, lng)
	}

	for _, box := range coarseBoxes {
		if lat >= box.minLat && lat <= box.maxLat && lng >= box.minLng && lng <= box.maxLng {
			return box.zone, nil
		}
	}

	// Etc/GMT zones use inverted POSIX signs: Etc/GMT-9 is UTC+9.
	offset := int(math.Round(lng / 15))
	switch {
	case offset == 0:
		return "Etc/UTC", nil
	case offset > 0:
		return fmt.Sprintf("Etc/GMT-%d", offset), nil
	default:
		return fmt.Sprintf("Etc/GMT+%d", -offset), nil
	}
}
