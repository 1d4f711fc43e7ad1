// internal/service/geo/service_test.go

package geo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/signal"
)

// memCandidateSource answers bounding-box queries from a fixed slice.
type memCandidateSource struct {
	candidates []signal.Candidate
	err        error
	queries    int
}

func (m *memCandidateSource) CandidatesNear(_ context.Context, lat, lng, latRange, lngRange float64) ([]signal.Candidate, error) {
	m.queries++
	if m.err != nil {
		return nil, m.err
	}
	var out []signal.Candidate
	for _, c := range m.candidates {
		if c.Latitude >= lat-latRange && c.Latitude <= lat+latRange &&
			c.Longitude >= lng-lngRange && c.Longitude <= lng+lngRange {
			out = append(out, c)
		}
	}
	return out, nil
}

func newTestDeduplicator(source CandidateSource) *Deduplicator {
	return NewDeduplicator(source, Config{LookupRadiusKm: 10, GroupRadiusKm: 5}, zap.NewNop())
}

func TestNearestKnown(t *testing.T) {
	ctx := context.Background()

	t.Run("returns-closest-inside-radius", func(t *testing.T) {
		source := &memCandidateSource{candidates: []signal.Candidate{
			{LocationKey: "a", City: "Near", Latitude: 39.80, Longitude: -89.65},
			{LocationKey: "b", City: "Nearer", Latitude: 39.79, Longitude: -89.65},
			{LocationKey: "c", City: "Far", Latitude: 41.88, Longitude: -87.63},
		}}
		d := newTestDeduplicator(source)

		match, err := d.NearestKnown(ctx, 39.78, -89.65, 10)
		require.NoError(t, err)
		assert.Equal(t, "b", match.Candidate.LocationKey)
		assert.Less(t, match.DistanceKm, 10.0)
	})

	t.Run("none-nearby", func(t *testing.T) {
		source := &memCandidateSource{candidates: []signal.Candidate{
			{LocationKey: "c", City: "Far", Latitude: 41.88, Longitude: -87.63},
		}}
		d := newTestDeduplicator(source)

		_, err := d.NearestKnown(ctx, 39.78, -89.65, 10)
		assert.ErrorIs(t, err, ErrNoneNearby)
	})

	t.Run("strictly-inside-radius", func(t *testing.T) {
		// ~11km north of the query point, outside a 10km radius even
		// though a widened bounding box will pre-admit it.
		source := &memCandidateSource{candidates: []signal.Candidate{
			{LocationKey: "edge", Latitude: 39.88, Longitude: -89.65},
		}}
		d := newTestDeduplicator(source)

		_, err := d.NearestKnown(ctx, 39.78, -89.65, 10)
		assert.ErrorIs(t, err, ErrNoneNearby)
	})

	t.Run("two-keys-one-place", func(t *testing.T) {
		// Distinct canonical keys a few hundred meters apart resolve to
		// each other through distance, not key equality.
		source := &memCandidateSource{candidates: []signal.Candidate{
			{LocationKey: "39.7800,-89.6500", City: "Springfield", Latitude: 39.7800, Longitude: -89.6500},
		}}
		d := newTestDeduplicator(source)

		match, err := d.NearestKnown(ctx, 39.7830, -89.6510, 10)
		require.NoError(t, err)
		assert.Equal(t, "39.7800,-89.6500", match.Candidate.LocationKey)
	})

	t.Run("source-errors-propagate", func(t *testing.T) {
		source := &memCandidateSource{err: errors.New("connection refused")}
		d := newTestDeduplicator(source)

		_, err := d.NearestKnown(ctx, 39.78, -89.65, 10)
		assert.Error(t, err)
	})
}

func TestGroupForDisplay(t *testing.T) {
	t.Run("merges-within-radius", func(t *testing.T) {
		d := newTestDeduplicator(&memCandidateSource{})
		grouped := d.GroupForDisplay([]collection.TrendLocation{
			{City: "Springfield", Latitude: 39.780, Longitude: -89.650, TrendDays: 12, AvgAQI: 60},
			{City: "Springfield East", Latitude: 39.790, Longitude: -89.640, TrendDays: 4, AvgAQI: 40},
		})

		require.Len(t, grouped, 1)
		assert.Equal(t, 16, grouped[0].TrendDays)
		assert.Equal(t, 2, grouped[0].GroupedCount)
		assert.InDelta(t, 50, grouped[0].AvgAQI, 0.001)
	})

	t.Run("merges-matching-names-outside-radius", func(t *testing.T) {
		d := newTestDeduplicator(&memCandidateSource{})
		grouped := d.GroupForDisplay([]collection.TrendLocation{
			{City: "Springfield", Latitude: 39.78, Longitude: -89.65, TrendDays: 12},
			{City: "springfield", Latitude: 40.10, Longitude: -89.20, TrendDays: 3},
		})

		require.Len(t, grouped, 1)
		assert.Equal(t, "Springfield", grouped[0].City)
	})

	t.Run("keeps-distinct-places-apart", func(t *testing.T) {
		d := newTestDeduplicator(&memCandidateSource{})
		grouped := d.GroupForDisplay([]collection.TrendLocation{
			{City: "Springfield", Latitude: 39.78, Longitude: -89.65, TrendDays: 12},
			{City: "Chicago", Latitude: 41.88, Longitude: -87.63, TrendDays: 30},
		})

		require.Len(t, grouped, 2)
		// Sorted by accumulated data.
		assert.Equal(t, "Chicago", grouped[0].City)
	})

	t.Run("representative-has-most-data", func(t *testing.T) {
		d := newTestDeduplicator(&memCandidateSource{})
		grouped := d.GroupForDisplay([]collection.TrendLocation{
			{City: "Springfield", Latitude: 39.780, Longitude: -89.650, TrendDays: 2},
			{City: "Springfield", Latitude: 39.785, Longitude: -89.655, TrendDays: 20},
		})

		require.Len(t, grouped, 1)
		assert.Equal(t, 39.785, grouped[0].Latitude)
		assert.Equal(t, -89.655, grouped[0].Longitude)
	})

	t.Run("empty-input", func(t *testing.T) {
		d := newTestDeduplicator(&memCandidateSource{})
		assert.Empty(t, d.GroupForDisplay(nil))
	})
}

func TestBoundingRanges(t *testing.T) {
	t.Run("equator", func(t *testing.T) {
		latRange, lngRange := boundingRanges(0, 111)
		assert.InDelta(t, 1.0, latRange, 0.01)
		assert.InDelta(t, 1.0, lngRange, 0.01)
	})

	t.Run("longitude-widens-toward-poles", func(t *testing.T) {
		_, lngAtEquator := boundingRanges(0, 10)
		_, lngAtSixty := boundingRanges(60, 10)
		assert.Greater(t, lngAtSixty, lngAtEquator)
	})

	t.Run("cosine-floor-near-pole", func(t *testing.T) {
		_, lngRange := boundingRanges(89.9, 10)
		assert.InDelta(t, 10/(111.0*0.1), lngRange, 0.01)
	})
}
