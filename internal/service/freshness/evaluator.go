// internal/service/freshness/evaluator.go

package freshness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/signal"
)

// maxAges is the static staleness rule table.
var maxAges = map[collection.Category]time.Duration{
	collection.CategoryCurrent:  1 * time.Hour,
	collection.CategoryForecast: 24 * time.Hour,
	collection.CategoryFire:     24 * time.Hour,
}

// defaultMaxAge applies to categories missing from the table.
const defaultMaxAge = 24 * time.Hour

// MaxAge returns the allowed age for a category.
func MaxAge(category collection.Category) time.Duration {
	if age, ok := maxAges[category]; ok {
		return age
	}
	return defaultMaxAge
}

// Config contains configuration for the evaluator
type Config struct {
	BaseInterval     time.Duration
	MinAlertInterval time.Duration
}

// Evaluator decides whether cached data is usable now, and whether a
// location has earned proactive collection. All duration arithmetic is
// UTC-to-UTC; the resolved zone is used only for log labels, because
// local-time subtraction is ambiguous across DST transitions.
type Evaluator struct {
	resolver Resolver
	store    signal.Store
	config   Config
	clock    func() time.Time
	logger   *zap.Logger

	mu        sync.RWMutex
	zoneCache map[string]string
}

// NewEvaluator creates a new staleness evaluator
func NewEvaluator(resolver Resolver, store signal.Store, config Config, logger *zap.Logger) *Evaluator {
	if config.BaseInterval <= 0 {
		config.BaseInterval = 1 * time.Hour
	}
	if config.MinAlertInterval <= 0 {
		config.MinAlertInterval = 30 * time.Minute
	}

	return &Evaluator{
		resolver:  resolver,
		store:     store,
		config:    config,
		clock:     time.Now,
		logger:    logger,
		zoneCache: make(map[string]string),
	}
}

// WithClock overrides the evaluator's clock. Intended for tests.
func (e *Evaluator) WithClock(clock func() time.Time) *Evaluator {
	e.clock = clock
	return e
}

// IsFresh reports whether data created at createdAt is still usable for the
// given category. createdAt without zone information is assumed UTC.
func (e *Evaluator) IsFresh(category collection.Category, createdAt time.Time, lat, lng float64) bool {
	if createdAt.IsZero() {
		return false
	}

	maxAge := MaxAge(category)

	// Elapsed time is computed before any zone conversion.
	elapsed := e.clock().UTC().Sub(createdAt.UTC())
	fresh := elapsed <= maxAge

	e.logger.Debug("freshness check",
		zap.String("category", string(category)),
		zap.Float64("age_hours", elapsed.Hours()),
		zap.Float64("max_age_hours", maxAge.Hours()),
		zap.String("zone", e.zoneLabel(lat, lng)),
		zap.Bool("fresh", fresh),
	)

	return fresh
}

// zoneLabel resolves the location's zone for logging, caching results by a
// coarsened coordinate bucket to bound lookup cost. Resolution failure
// falls back to UTC and is never fatal.
func (e *Evaluator) zoneLabel(lat, lng float64) string {
	bucket := fmt.Sprintf("%.2f,%.2f", lat, lng)

	e.mu.RLock()
	zone, ok := e.zoneCache[bucket]
	e.mu.RUnlock()
	if ok {
		return zone
	}

	zone, err := e.resolver.Resolve(lat, lng)
	if err != nil || zone == "" {
		e.logger.Warn("timezone resolution failed, using UTC label",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err),
		)
		zone = "UTC"
	}

	e.mu.Lock()
	e.zoneCache[bucket] = zone
	e.mu.Unlock()

	return zone
}

// ShouldCollect is the admission control for proactive collection. Only
// locations somebody cares about are ever eligible, which bounds total
// collection volume regardless of geographic coverage.
func (e *Evaluator) ShouldCollect(ctx context.Context, key string) (bool, error) {
	snap, err := e.store.SnapshotFor(ctx, key)
	if err != nil {
		if errors.Is(err, signal.ErrNotFound) {
			// Zero interest signals: never eligible.
			return false, nil
		}
		if errors.Is(err, signal.ErrStoreUnavailable) {
			// Degrade to collection-needed rather than failing.
			e.logger.Warn("signal store unavailable, treating location as collection-needed",
				zap.String("location_key", key),
				zap.Error(err),
			)
			return true, nil
		}
		return false, fmt.Errorf("checking collection eligibility for %s: %w", key, err)
	}

	now := e.clock().UTC()
	base := snap.BaseInterval
	if base <= 0 {
		base = e.config.BaseInterval
	}

	// Alert subscribers always win: more subscribers mean more frequent
	// checks, floored at the minimum alert interval.
	if snap.AlertSubscriberCount > 0 {
		if snap.LastCollectedAt == nil {
			return true, nil
		}
		interval := base / time.Duration(1+snap.AlertSubscriberCount)
		if interval < e.config.MinAlertInterval {
			interval = e.config.MinAlertInterval
		}
		return now.Sub(snap.LastCollectedAt.UTC()) >= interval, nil
	}

	// Search-only locations earn collection after three searches, then get
	// progressively more frequent up to the base interval.
	if snap.SearchCount > 0 {
		if snap.SearchCount < 3 {
			return false, nil
		}
		if snap.LastCollectedAt == nil {
			return true, nil
		}
		multiplier := 5 - snap.SearchCount
		if multiplier < 1 {
			multiplier = 1
		}
		interval := base * time.Duration(multiplier)
		return now.Sub(snap.LastCollectedAt.UTC()) >= interval, nil
	}

	return false, nil
}
