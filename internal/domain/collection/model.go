// internal/domain/collection/model.go

package collection

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"airwatch/internal/domain/location"
)

// ErrNoRecord indicates no collection record exists for a (location, category) pair.
var ErrNoRecord = errors.New("no collection record")

// Category identifies one class of collectable data.
type Category string

const (
	CategoryCurrent  Category = "current"
	CategoryForecast Category = "forecast"
	CategoryFire     Category = "fire"
)

// AllCategories returns every collectable category in a stable order.
func AllCategories() []Category {
	return []Category{CategoryCurrent, CategoryForecast, CategoryFire}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCurrent, CategoryForecast, CategoryFire:
		return true
	}
	return false
}

// Status describes the availability of one category in a bundle response.
type Status string

const (
	StatusLoaded      Status = "loaded"
	StatusCollecting  Status = "collecting"
	StatusUnavailable Status = "unavailable"
)

// Record tracks the most recent successful collection for a
// (location, category) pair. Overwritten on each subsequent success,
// never deleted by the core.
type Record struct {
	LocationKey     string
	Category        Category
	LastCollectedAt time.Time // always UTC
	QualityScore    float64
}

// Observation is a persisted payload from one successful backend call.
type Observation struct {
	LocationKey string
	Category    Category
	Payload     json.RawMessage
	CreatedAt   time.Time // always UTC
}

// Result is what a backend returns on success.
type Result struct {
	Payload      json.RawMessage
	QualityScore float64
}

// Backend is a pluggable unit that fetches one data category for one
// location. Implementations are expected to block on network I/O and must
// honor the passed context.
type Backend interface {
	Name() string
	Collect(ctx context.Context, loc location.Location, category Category) (Result, error)
}

// RegionClassifier maps a coordinate to a backend identifier for the
// current-conditions category, so new regions can be added without
// touching orchestration code.
type RegionClassifier interface {
	Classify(lat, lng float64) string
}

// TrendPoint is one day of aggregated readings for a location.
type TrendPoint struct {
	Date              time.Time `json:"date"`
	AvgAQI            float64   `json:"avg_aqi"`
	MaxAQI            int       `json:"max_aqi"`
	MinAQI            int       `json:"min_aqi"`
	DominantPollutant string    `json:"dominant_pollutant"`
}

// TrendLocation is one location eligible for trend display, with the
// accumulated data that decides its weight during directory grouping.
type TrendLocation struct {
	City         string     `json:"city"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	TrendDays    int        `json:"trend_days"`
	EarliestDate *time.Time `json:"earliest_date,omitempty"`
	LatestDate   *time.Time `json:"latest_date,omitempty"`
	AvgAQI       float64    `json:"avg_aqi"`

	// GroupedCount is how many raw entries were merged into this one when
	// the directory was deduplicated. Zero for ungrouped rows.
	GroupedCount int `json:"grouped_locations,omitempty"`
}

// Store is the persistence contract for collection state.
type Store interface {
	// SaveObservation persists a successful backend payload.
	SaveObservation(ctx context.Context, obs Observation) error

	// MarkCollected creates or updates the collection record for a
	// (location, category) pair with the current UTC time.
	MarkCollected(ctx context.Context, key string, category Category, quality float64) error

	// Record returns the collection record for a (location, category)
	// pair, or ErrNoRecord.
	Record(ctx context.Context, key string, category Category) (*Record, error)

	// LatestObservation returns the most recent persisted payload for a
	// (location, category) pair, or ErrNoRecord.
	LatestObservation(ctx context.Context, key string, category Category) (*Observation, error)

	// DailyTrends returns up to days of daily aggregates near a coordinate.
	DailyTrends(ctx context.Context, lat, lng float64, days int) ([]TrendPoint, error)

	// TrendLocations returns every location with daily aggregates inside
	// the trailing window, ungrouped.
	TrendLocations(ctx context.Context, sinceDays int) ([]TrendLocation, error)
}
