// internal/service/geo/service.go

package geo

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
	"airwatch/internal/domain/signal"
)

// ErrNoneNearby indicates no known location lies within the requested radius.
var ErrNoneNearby = errors.New("no known location within radius")

// kmPerDegreeLat is the rough conversion used for bounding-box pre-filtering.
// The true distance test is always haversine.
const kmPerDegreeLat = 111.0

// CandidateSource is the slice of the signal store the deduplicator needs.
type CandidateSource interface {
	CandidatesNear(ctx context.Context, lat, lng, latRange, lngRange float64) ([]signal.Candidate, error)
}

// Config contains configuration for the deduplicator
type Config struct {
	LookupRadiusKm float64
	GroupRadiusKm  float64
}

// Deduplicator merges near-duplicate locations for lookup and for trend
// grouping. Deduplication is a query-time operation; canonical keys are
// never rewritten.
type Deduplicator struct {
	source CandidateSource
	config Config
	logger *zap.Logger
}

// Match is the nearest known location to a queried coordinate.
type Match struct {
	Candidate  signal.Candidate
	DistanceKm float64
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(source CandidateSource, config Config, logger *zap.Logger) *Deduplicator {
	if config.LookupRadiusKm <= 0 {
		config.LookupRadiusKm = 10.0
	}
	if config.GroupRadiusKm <= 0 {
		config.GroupRadiusKm = 5.0
	}

	return &Deduplicator{
		source: source,
		config: config,
		logger: logger,
	}
}

// NearestKnown scans known locations within an expanding bounding box,
// computes true great-circle distance to each candidate, and returns the
// closest one strictly inside radiusKm. Returns ErrNoneNearby when nothing
// qualifies.
func (d *Deduplicator) NearestKnown(ctx context.Context, lat, lng, radiusKm float64) (*Match, error) {
	if radiusKm <= 0 {
		radiusKm = d.config.LookupRadiusKm
	}

	// The box is only a pre-filter; if the exact box comes back empty,
	// widen once. Widening cannot change correctness, the haversine test
	// decides membership.
	for _, scale := range []float64{1, 2} {
		latRange, lngRange := boundingRanges(lat, radiusKm*scale)

		candidates, err := d.source.CandidatesNear(ctx, lat, lng, latRange, lngRange)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			continue
		}

		var closest *Match
		for i := range candidates {
			c := candidates[i]
			dist := location.Distance(lat, lng, c.Latitude, c.Longitude)
			if dist >= radiusKm {
				continue
			}
			if closest == nil || dist < closest.DistanceKm {
				closest = &Match{Candidate: c, DistanceKm: dist}
			}
		}
		if closest != nil {
			return closest, nil
		}
	}

	return nil, ErrNoneNearby
}

// boundingRanges converts a radius in km to coordinate deltas. The longitude
// range widens toward the poles where meridians converge.
func boundingRanges(lat, radiusKm float64) (latRange, lngRange float64) {
	latRange = radiusKm / kmPerDegreeLat
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.1 {
		cosLat = 0.1
	}
	lngRange = radiusKm / (kmPerDegreeLat * cosLat)
	return latRange, lngRange
}

// GroupForDisplay merges trend locations that are the same conceptual place:
// within the group radius of each other, or carrying display names that
// match case-insensitively even outside the radius. The representative of a
// group is the member with the most accumulated data.
func (d *Deduplicator) GroupForDisplay(entries []collection.TrendLocation) []collection.TrendLocation {
	used := make([]bool, len(entries))
	var grouped []collection.TrendLocation

	for i := range entries {
		if used[i] {
			continue
		}
		used[i] = true

		members := []collection.TrendLocation{entries[i]}
		for j := i + 1; j < len(entries); j++ {
			if used[j] {
				continue
			}

			sameName := location.NamesMatch(entries[i].City, entries[j].City)
			dist := location.Distance(
				entries[i].Latitude, entries[i].Longitude,
				entries[j].Latitude, entries[j].Longitude,
			)
			if !sameName && dist > d.config.GroupRadiusKm {
				continue
			}

			members = append(members, entries[j])
			used[j] = true

			if d.logger != nil {
				reason := "same name"
				if !sameName {
					reason = "nearby"
				}
				d.logger.Debug("grouped trend locations",
					zap.String("city", entries[j].City),
					zap.String("with", entries[i].City),
					zap.String("reason", reason),
					zap.Float64("distance_km", dist),
				)
			}
		}

		grouped = append(grouped, mergeGroup(members))
	}

	sort.SliceStable(grouped, func(a, b int) bool {
		if grouped[a].TrendDays != grouped[b].TrendDays {
			return grouped[a].TrendDays > grouped[b].TrendDays
		}
		return grouped[a].City < grouped[b].City
	})

	return grouped
}

// mergeGroup collapses group members into one entry. Coordinates come from
// the member with the most data, the name is the most common one among
// members, counters and date ranges are merged.
func mergeGroup(members []collection.TrendLocation) collection.TrendLocation {
	best := members[0]
	nameVotes := make(map[string]int)
	merged := collection.TrendLocation{
		EarliestDate: members[0].EarliestDate,
		LatestDate:   members[0].LatestDate,
	}
	if len(members) > 1 {
		merged.GroupedCount = len(members)
	}

	var aqiSum float64
	for _, m := range members {
		merged.TrendDays += m.TrendDays
		aqiSum += m.AvgAQI
		nameVotes[strings.ToLower(strings.TrimSpace(m.City))]++

		if m.TrendDays > best.TrendDays {
			best = m
		}
		if m.EarliestDate != nil && (merged.EarliestDate == nil || m.EarliestDate.Before(*merged.EarliestDate)) {
			merged.EarliestDate = m.EarliestDate
		}
		if m.LatestDate != nil && (merged.LatestDate == nil || m.LatestDate.After(*merged.LatestDate)) {
			merged.LatestDate = m.LatestDate
		}
	}

	primary := best.City
	votes := 0
	for _, m := range members {
		if n := nameVotes[strings.ToLower(strings.TrimSpace(m.City))]; n > votes {
			votes = n
			primary = m.City
		}
	}

	merged.City = primary
	merged.Latitude = best.Latitude
	merged.Longitude = best.Longitude
	merged.AvgAQI = aqiSum / float64(len(members))

	return merged
}
