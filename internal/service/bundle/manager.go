// internal/service/bundle/manager.go

package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
	"airwatch/internal/service/cache"
	"airwatch/internal/service/collector"
	"airwatch/internal/service/freshness"
	"airwatch/internal/service/geo"
)

// Config contains configuration for the bundle manager.
type Config struct {
	CollectTimeout time.Duration
	LookupRadiusKm float64
	TrendDays      int
}

// CategoryData is one category's slice of a bundle answer.
type CategoryData struct {
	Status       collection.Status `json:"status"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	CollectedAt  *time.Time        `json:"collected_at,omitempty"`
	QualityScore float64           `json:"quality_score,omitempty"`
}

// TrendData is the historical slice of a bundle answer.
type TrendData struct {
	Status collection.Status       `json:"status"`
	Points []collection.TrendPoint `json:"points,omitempty"`
}

// Bundle is the aggregated multi-category answer for one location query.
type Bundle struct {
	LocationKey string                               `json:"location_key"`
	City        string                               `json:"city"`
	Latitude    float64                              `json:"latitude"`
	Longitude   float64                              `json:"longitude"`
	Categories  map[collection.Category]CategoryData `json:"categories"`
	Trends      TrendData                            `json:"trends"`
}

// Response wraps a bundle with cache serving metadata.
type Response struct {
	Bundle
	cache.Meta
}

// TrendResponse wraps a trend series with cache serving metadata.
type TrendResponse struct {
	LocationKey string                  `json:"location_key"`
	Points      []collection.TrendPoint `json:"points"`
	cache.Meta
}

// DirectoryResponse wraps the grouped trend directory with cache metadata.
type DirectoryResponse struct {
	Locations []collection.TrendLocation `json:"locations"`
	cache.Meta
}

// Manager answers read requests from the tiered cache, falling back to
// stored observations, and triggers stale-while-revalidate background
// collection when stored data is stale or missing.
type Manager struct {
	records      collection.Store
	orchestrator *collector.Orchestrator
	evaluator    *freshness.Evaluator
	dedup        *geo.Deduplicator
	caches       *cache.Tiered
	config       Config
	logger       *zap.Logger
}

// NewManager creates a new bundle manager.
func NewManager(
	records collection.Store,
	orchestrator *collector.Orchestrator,
	evaluator *freshness.Evaluator,
	dedup *geo.Deduplicator,
	caches *cache.Tiered,
	config Config,
	logger *zap.Logger,
) *Manager {
	if config.CollectTimeout <= 0 {
		config.CollectTimeout = 60 * time.Second
	}
	if config.LookupRadiusKm <= 0 {
		config.LookupRadiusKm = 10.0
	}
	if config.TrendDays <= 0 {
		config.TrendDays = 30
	}

	return &Manager{
		records:      records,
		orchestrator: orchestrator,
		evaluator:    evaluator,
		dedup:        dedup,
		caches:       caches,
		config:       config,
		logger:       logger,
	}
}

// GetLocationBundle returns the full multi-category answer for a location.
// A fresh cached bundle is served directly. Otherwise every category is
// read from the store; stale or missing categories come back as collecting
// and one detached background task refreshes them for the next read.
func (m *Manager) GetLocationBundle(ctx context.Context, lat, lng float64, name string) (Response, error) {
	loc := location.Location{Latitude: lat, Longitude: lng, DisplayName: name}
	key := loc.Key()

	if cached, meta, ok := m.caches.Bundle.Get(key); ok {
		if b, ok := cached.(Bundle); ok {
			return Response{Bundle: b, Meta: meta}, nil
		}
	}

	loc.DisplayName = m.resolveDisplayName(ctx, loc)

	b := Bundle{
		LocationKey: key,
		City:        loc.DisplayName,
		Latitude:    lat,
		Longitude:   lng,
		Categories:  make(map[collection.Category]CategoryData, len(collection.AllCategories())),
	}

	var needed []collection.Category
	for _, category := range collection.AllCategories() {
		data, fresh, err := m.categoryData(ctx, key, category, lat, lng)
		if err != nil {
			return Response{}, err
		}
		b.Categories[category] = data
		if !fresh {
			needed = append(needed, category)
		}
	}

	b.Trends = m.trendData(ctx, lat, lng)

	if len(needed) > 0 {
		m.collectInBackground(loc, needed)
	} else {
		// Only complete answers enter the cache, so a read after a
		// background refresh observes the fresh data instead of a
		// cached "collecting" snapshot.
		m.caches.Bundle.Set(key, b)
	}

	return Response{Bundle: b}, nil
}

// categoryData reads one category's stored state and reports whether it is
// fresh. Stale data is still returned best-effort under the collecting
// status.
func (m *Manager) categoryData(ctx context.Context, key string, category collection.Category, lat, lng float64) (CategoryData, bool, error) {
	rec, err := m.records.Record(ctx, key, category)
	if errors.Is(err, collection.ErrNoRecord) {
		return CategoryData{Status: collection.StatusCollecting}, false, nil
	}
	if err != nil {
		return CategoryData{}, false, fmt.Errorf("reading collection record: %w", err)
	}

	obs, err := m.records.LatestObservation(ctx, key, category)
	if errors.Is(err, collection.ErrNoRecord) {
		return CategoryData{Status: collection.StatusCollecting}, false, nil
	}
	if err != nil {
		return CategoryData{}, false, fmt.Errorf("reading observation: %w", err)
	}

	collectedAt := rec.LastCollectedAt
	data := CategoryData{
		Payload:      obs.Payload,
		CollectedAt:  &collectedAt,
		QualityScore: rec.QualityScore,
	}

	if m.evaluator.IsFresh(category, rec.LastCollectedAt, lat, lng) {
		data.Status = collection.StatusLoaded
		return data, true, nil
	}

	data.Status = collection.StatusCollecting
	return data, false, nil
}

// trendData attaches the historical slice to a bundle. A trend failure
// degrades that slice to unavailable instead of failing the bundle.
func (m *Manager) trendData(ctx context.Context, lat, lng float64) TrendData {
	points, err := m.records.DailyTrends(ctx, lat, lng, m.config.TrendDays)
	if err != nil {
		m.logger.Warn("loading bundle trends",
			zap.String("location_key", location.Key(lat, lng)),
			zap.Error(err),
		)
		return TrendData{Status: collection.StatusUnavailable}
	}
	if len(points) == 0 {
		return TrendData{Status: collection.StatusUnavailable}
	}
	return TrendData{Status: collection.StatusLoaded, Points: points}
}

// collectInBackground launches one detached refresh task for the stale
// categories. The task outlives the triggering request; callers observe
// results on a later read.
func (m *Manager) collectInBackground(loc location.Location, categories []collection.Category) {
	m.logger.Info("triggering background collection",
		zap.String("location_key", loc.Key()),
		zap.Int("categories", len(categories)),
	)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.CollectTimeout)
		defer cancel()

		outcomes := m.orchestrator.CollectAll(ctx, loc, categories)
		for category, outcome := range outcomes {
			if outcome.Err != nil {
				m.logger.Warn("background collection incomplete",
					zap.String("location_key", loc.Key()),
					zap.String("category", string(category)),
					zap.Error(outcome.Err),
				)
			}
		}

		// Drop any stale bundle so the next read recomputes.
		m.caches.Bundle.Invalidate(loc.Key())
	}()
}

// resolveDisplayName refines a location's label: a caller-provided name
// wins, then the nearest known location inside the lookup radius, then a
// coordinate fallback.
func (m *Manager) resolveDisplayName(ctx context.Context, loc location.Location) string {
	if loc.DisplayName != "" {
		return loc.DisplayName
	}

	match, err := m.dedup.NearestKnown(ctx, loc.Latitude, loc.Longitude, m.config.LookupRadiusKm)
	if err == nil && match.Candidate.City != "" {
		return match.Candidate.City
	}
	if err != nil && !errors.Is(err, geo.ErrNoneNearby) {
		m.logger.Warn("nearest-known lookup failed",
			zap.String("location_key", loc.Key()),
			zap.Error(err),
		)
	}

	return loc.Label()
}

// TrendSeries returns up to the configured number of days of daily
// aggregates near a coordinate, served through the trend cache.
func (m *Manager) TrendSeries(ctx context.Context, lat, lng float64, days int) (TrendResponse, error) {
	if days <= 0 || days > m.config.TrendDays {
		days = m.config.TrendDays
	}

	key := fmt.Sprintf("%s|%d", location.Key(lat, lng), days)

	if cached, meta, ok := m.caches.Trend.Get(key); ok {
		if points, ok := cached.([]collection.TrendPoint); ok {
			return TrendResponse{LocationKey: location.Key(lat, lng), Points: points, Meta: meta}, nil
		}
	}

	points, err := m.records.DailyTrends(ctx, lat, lng, days)
	if err != nil {
		return TrendResponse{}, fmt.Errorf("loading daily trends: %w", err)
	}

	m.caches.Trend.Set(key, points)

	return TrendResponse{LocationKey: location.Key(lat, lng), Points: points}, nil
}

// TrendDirectory returns the deduplicated list of locations eligible for
// trend display, served through the directory cache.
func (m *Manager) TrendDirectory(ctx context.Context, sinceDays int) (DirectoryResponse, error) {
	if sinceDays <= 0 {
		sinceDays = m.config.TrendDays
	}

	key := fmt.Sprintf("directory|%d", sinceDays)

	if cached, meta, ok := m.caches.Directory.Get(key); ok {
		if locs, ok := cached.([]collection.TrendLocation); ok {
			return DirectoryResponse{Locations: locs, Meta: meta}, nil
		}
	}

	raw, err := m.records.TrendLocations(ctx, sinceDays)
	if err != nil {
		return DirectoryResponse{}, fmt.Errorf("loading trend locations: %w", err)
	}

	grouped := m.dedup.GroupForDisplay(raw)
	m.caches.Directory.Set(key, grouped)

	return DirectoryResponse{Locations: grouped}, nil
}
