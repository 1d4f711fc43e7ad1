// internal/service/bundle/manager_test.go

package bundle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
	"airwatch/internal/domain/signal"
	"airwatch/internal/service/cache"
	"airwatch/internal/service/collector"
	"airwatch/internal/service/freshness"
	"airwatch/internal/service/geo"
)

// memCollectionStore keeps records and observations keyed by
// locationKey|category.
type memCollectionStore struct {
	mu           sync.Mutex
	records      map[string]collection.Record
	observations map[string]collection.Observation
	trends       []collection.TrendPoint
	trendLocs    []collection.TrendLocation
	trendQueries int
}

func newMemCollectionStore() *memCollectionStore {
	return &memCollectionStore{
		records:      make(map[string]collection.Record),
		observations: make(map[string]collection.Observation),
	}
}

func recKey(key string, category collection.Category) string {
	return key + "|" + string(category)
}

func (m *memCollectionStore) seed(key string, category collection.Category, collectedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recKey(key, category)] = collection.Record{
		LocationKey:     key,
		Category:        category,
		LastCollectedAt: collectedAt,
		QualityScore:    0.9,
	}
	payload, _ := json.Marshal(map[string]string{"category": string(category)})
	m.observations[recKey(key, category)] = collection.Observation{
		LocationKey: key,
		Category:    category,
		Payload:     payload,
		CreatedAt:   collectedAt,
	}
}

func (m *memCollectionStore) SaveObservation(_ context.Context, obs collection.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations[recKey(obs.LocationKey, obs.Category)] = obs
	return nil
}

func (m *memCollectionStore) MarkCollected(_ context.Context, key string, category collection.Category, quality float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recKey(key, category)] = collection.Record{
		LocationKey:     key,
		Category:        category,
		LastCollectedAt: time.Now().UTC(),
		QualityScore:    quality,
	}
	return nil
}

func (m *memCollectionStore) Record(_ context.Context, key string, category collection.Category) (*collection.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[recKey(key, category)]
	if !ok {
		return nil, collection.ErrNoRecord
	}
	return &rec, nil
}

func (m *memCollectionStore) LatestObservation(_ context.Context, key string, category collection.Category) (*collection.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs, ok := m.observations[recKey(key, category)]
	if !ok {
		return nil, collection.ErrNoRecord
	}
	return &obs, nil
}

func (m *memCollectionStore) DailyTrends(context.Context, float64, float64, int) ([]collection.TrendPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trendQueries++
	return m.trends, nil
}

func (m *memCollectionStore) TrendLocations(context.Context, int) ([]collection.TrendLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trendQueries++
	return m.trendLocs, nil
}

func (m *memCollectionStore) hasObservation(key string, category collection.Category) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.observations[recKey(key, category)]
	return ok
}

// stubSignals serves candidate queries and SnapshotFor; everything else is
// inert.
type stubSignals struct {
	candidates []signal.Candidate
}

func (s *stubSignals) RecordSearch(context.Context, string, string, float64, float64) (int, error) {
	return 0, nil
}
func (s *stubSignals) SetSearchPriority(context.Context, string, float64) error        { return nil }
func (s *stubSignals) UpsertAlertLocation(context.Context, signal.AlertLocation) error { return nil }
func (s *stubSignals) RaiseDemandBoost(context.Context, string, float64) error         { return nil }
func (s *stubSignals) SnapshotFor(context.Context, string) (*signal.Snapshot, error) {
	return nil, signal.ErrNotFound
}
func (s *stubSignals) PriorityRows(context.Context, int) ([]signal.Snapshot, error) {
	return nil, nil
}
func (s *stubSignals) CandidatesNear(_ context.Context, lat, lng, latRange, lngRange float64) ([]signal.Candidate, error) {
	var out []signal.Candidate
	for _, c := range s.candidates {
		if c.Latitude >= lat-latRange && c.Latitude <= lat+latRange &&
			c.Longitude >= lng-lngRange && c.Longitude <= lng+lngRange {
			out = append(out, c)
		}
	}
	return out, nil
}

// staticBackend always succeeds with a fixed payload.
type staticBackend struct {
	name string
	mu   sync.Mutex
	hits int
}

func (b *staticBackend) Name() string { return b.name }

func (b *staticBackend) Collect(context.Context, location.Location, collection.Category) (collection.Result, error) {
	b.mu.Lock()
	b.hits++
	b.mu.Unlock()
	payload, _ := json.Marshal(map[string]string{"backend": b.name})
	return collection.Result{Payload: payload, QualityScore: 1.0}, nil
}

func (b *staticBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits
}

type fixture struct {
	manager *Manager
	store   *memCollectionStore
	backend *staticBackend
	caches  *cache.Tiered
}

func newFixture(t *testing.T, signals *stubSignals) *fixture {
	t.Helper()

	store := newMemCollectionStore()
	backend := &staticBackend{name: "test"}

	orchestrator := collector.NewOrchestrator(
		map[string]collection.Backend{collector.RegionGlobal: backend},
		map[collection.Category]collection.Backend{
			collection.CategoryForecast: backend,
			collection.CategoryFire:     backend,
		},
		collector.NewBoxClassifier(),
		store, nil, collector.Config{}, zap.NewNop(),
	)

	evaluator := freshness.NewEvaluator(freshness.NewCoarseResolver(), signals, freshness.Config{}, zap.NewNop())
	dedup := geo.NewDeduplicator(signals, geo.Config{LookupRadiusKm: 10, GroupRadiusKm: 5}, zap.NewNop())
	caches := cache.NewTiered(cache.Config{
		BundleTTL:    10 * time.Minute,
		TrendTTL:     30 * time.Minute,
		DirectoryTTL: 15 * time.Minute,
	}, zap.NewNop())

	manager := NewManager(store, orchestrator, evaluator, dedup, caches, Config{
		CollectTimeout: 5 * time.Second,
		LookupRadiusKm: 10,
	}, zap.NewNop())

	return &fixture{manager: manager, store: store, backend: backend, caches: caches}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestGetLocationBundle(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh-data-served-and-cached", func(t *testing.T) {
		f := newFixture(t, &stubSignals{})
		key := location.Key(48.85, 2.35)
		now := time.Now().UTC()
		for _, category := range collection.AllCategories() {
			f.store.seed(key, category, now.Add(-5*time.Minute))
		}

		f.store.trends = []collection.TrendPoint{
			{Date: now.Truncate(24 * time.Hour), AvgAQI: 40, MaxAQI: 52, MinAQI: 28},
		}

		resp, err := f.manager.GetLocationBundle(ctx, 48.85, 2.35, "Paris")
		require.NoError(t, err)
		assert.False(t, resp.FromCache)
		assert.Equal(t, "Paris", resp.City)
		for _, category := range collection.AllCategories() {
			assert.Equal(t, collection.StatusLoaded, resp.Categories[category].Status)
			assert.NotEmpty(t, resp.Categories[category].Payload)
		}
		assert.Equal(t, collection.StatusLoaded, resp.Trends.Status)
		require.Len(t, resp.Trends.Points, 1)

		// The backend was never needed.
		assert.Equal(t, 0, f.backend.calls())

		// Second read hits the bundle cache.
		resp, err = f.manager.GetLocationBundle(ctx, 48.85, 2.35, "Paris")
		require.NoError(t, err)
		assert.True(t, resp.FromCache)
	})

	t.Run("missing-data-triggers-background-collection", func(t *testing.T) {
		f := newFixture(t, &stubSignals{})
		key := location.Key(48.85, 2.35)

		resp, err := f.manager.GetLocationBundle(ctx, 48.85, 2.35, "Paris")
		require.NoError(t, err)
		for _, category := range collection.AllCategories() {
			assert.Equal(t, collection.StatusCollecting, resp.Categories[category].Status)
		}
		assert.Equal(t, collection.StatusUnavailable, resp.Trends.Status)
		// Incomplete answers are never cached.
		assert.False(t, resp.FromCache)

		// The detached task fills the store for the next read.
		waitFor(t, func() bool {
			for _, category := range collection.AllCategories() {
				if !f.store.hasObservation(key, category) {
					return false
				}
			}
			return true
		})

		waitFor(t, func() bool {
			resp, err := f.manager.GetLocationBundle(ctx, 48.85, 2.35, "Paris")
			if err != nil {
				return false
			}
			for _, category := range collection.AllCategories() {
				if resp.Categories[category].Status != collection.StatusLoaded {
					return false
				}
			}
			return true
		})
	})

	t.Run("stale-category-returns-best-effort-payload", func(t *testing.T) {
		f := newFixture(t, &stubSignals{})
		key := location.Key(48.85, 2.35)
		now := time.Now().UTC()

		// Current is 2h old (max age 1h), the rest are fresh.
		f.store.seed(key, collection.CategoryCurrent, now.Add(-2*time.Hour))
		f.store.seed(key, collection.CategoryForecast, now.Add(-1*time.Hour))
		f.store.seed(key, collection.CategoryFire, now.Add(-1*time.Hour))

		resp, err := f.manager.GetLocationBundle(ctx, 48.85, 2.35, "Paris")
		require.NoError(t, err)
		current := resp.Categories[collection.CategoryCurrent]
		assert.Equal(t, collection.StatusCollecting, current.Status)
		assert.NotEmpty(t, current.Payload)
		assert.Equal(t, collection.StatusLoaded, resp.Categories[collection.CategoryForecast].Status)

		// Only the stale category is refreshed.
		waitFor(t, func() bool { return f.backend.calls() == 1 })
	})

	t.Run("display-name-from-nearest-known", func(t *testing.T) {
		f := newFixture(t, &stubSignals{candidates: []signal.Candidate{
			{LocationKey: "48.8500,2.3500", City: "Paris", Latitude: 48.85, Longitude: 2.35},
		}})
		now := time.Now().UTC()
		key := location.Key(48.86, 2.36)
		for _, category := range collection.AllCategories() {
			f.store.seed(key, category, now)
		}

		resp, err := f.manager.GetLocationBundle(ctx, 48.86, 2.36, "")
		require.NoError(t, err)
		assert.Equal(t, "Paris", resp.City)
	})

	t.Run("coordinate-label-when-nothing-known", func(t *testing.T) {
		f := newFixture(t, &stubSignals{})
		now := time.Now().UTC()
		key := location.Key(10.5, 20.5)
		for _, category := range collection.AllCategories() {
			f.store.seed(key, category, now)
		}

		resp, err := f.manager.GetLocationBundle(ctx, 10.5, 20.5, "")
		require.NoError(t, err)
		assert.Equal(t, "10.500°N, 20.500°E", resp.City)
	})
}

func TestTrendSeries(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &stubSignals{})
	f.store.trends = []collection.TrendPoint{
		{Date: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC), AvgAQI: 42, MaxAQI: 55, MinAQI: 30},
	}

	resp, err := f.manager.TrendSeries(ctx, 48.85, 2.35, 30)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
	require.Len(t, resp.Points, 1)

	// Cached on the second read; the store is not queried again.
	resp, err = f.manager.TrendSeries(ctx, 48.85, 2.35, 30)
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, 1, f.store.trendQueries)
}

func TestTrendDirectory(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, &stubSignals{})
	f.store.trendLocs = []collection.TrendLocation{
		{City: "Springfield", Latitude: 39.780, Longitude: -89.650, TrendDays: 12},
		{City: "Springfield", Latitude: 39.785, Longitude: -89.655, TrendDays: 4},
		{City: "Chicago", Latitude: 41.88, Longitude: -87.63, TrendDays: 30},
	}

	resp, err := f.manager.TrendDirectory(ctx, 30)
	require.NoError(t, err)
	require.Len(t, resp.Locations, 2)
	assert.Equal(t, "Chicago", resp.Locations[0].City)
	assert.Equal(t, 16, resp.Locations[1].TrendDays)

	resp, err = f.manager.TrendDirectory(ctx, 30)
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
}
