// internal/adapter/storage/collection_store.go

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"airwatch/internal/domain/collection"
)

// CollectionStore implements storage for collection records and observations
type CollectionStore struct {
	db *pgxpool.Pool
}

// NewCollectionStore creates a new collection store
func NewCollectionStore(db *pgxpool.Pool) *CollectionStore {
	return &CollectionStore{
		db: db,
	}
}

// SaveObservation persists a successful backend payload.
func (s *CollectionStore) SaveObservation(ctx context.Context, obs collection.Observation) error {
	query := `
		INSERT INTO observations (location_key, category, payload, created_at)
		VALUES ($1, $2, $3, NOW())
	`

	if _, err := s.db.Exec(ctx, query, obs.LocationKey, string(obs.Category), []byte(obs.Payload)); err != nil {
		return fmt.Errorf("error saving observation: %w", err)
	}

	return nil
}

// MarkCollected creates or updates the collection record for a
// (location, category) pair with the current UTC time.
func (s *CollectionStore) MarkCollected(ctx context.Context, key string, category collection.Category, quality float64) error {
	query := `
		INSERT INTO collection_records (location_key, category, last_collected, data_quality)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (location_key, category) DO UPDATE
		SET
			last_collected = NOW(),
			data_quality = $3
	`

	if _, err := s.db.Exec(ctx, query, key, string(category), quality); err != nil {
		return fmt.Errorf("error marking collected: %w", err)
	}

	// Admission control reads the per-location cache row, keep it in step.
	cacheQuery := `
		INSERT INTO collection_cache (location_key, last_collected, user_demand_score)
		VALUES ($1, NOW(), 1.0)
		ON CONFLICT (location_key) DO UPDATE
		SET last_collected = NOW()
	`

	if _, err := s.db.Exec(ctx, cacheQuery, key); err != nil {
		return fmt.Errorf("error updating collection cache: %w", err)
	}

	return nil
}

// Record returns the collection record for a (location, category) pair.
func (s *CollectionStore) Record(ctx context.Context, key string, category collection.Category) (*collection.Record, error) {
	query := `
		SELECT location_key, category, last_collected, data_quality
		FROM collection_records
		WHERE location_key = $1 AND category = $2
	`

	var rec collection.Record
	var cat string
	err := s.db.QueryRow(ctx, query, key, string(category)).Scan(
		&rec.LocationKey,
		&cat,
		&rec.LastCollectedAt,
		&rec.QualityScore,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, collection.ErrNoRecord
		}
		return nil, fmt.Errorf("error reading collection record: %w", err)
	}
	rec.Category = collection.Category(cat)

	return &rec, nil
}

// LatestObservation returns the most recent persisted payload for a
// (location, category) pair.
func (s *CollectionStore) LatestObservation(ctx context.Context, key string, category collection.Category) (*collection.Observation, error) {
	query := `
		SELECT location_key, category, payload, created_at
		FROM observations
		WHERE location_key = $1 AND category = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	var obs collection.Observation
	var cat string
	var payload []byte
	err := s.db.QueryRow(ctx, query, key, string(category)).Scan(
		&obs.LocationKey,
		&cat,
		&payload,
		&obs.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, collection.ErrNoRecord
		}
		return nil, fmt.Errorf("error reading observation: %w", err)
	}
	obs.Category = collection.Category(cat)
	obs.Payload = payload

	return &obs, nil
}

// DailyTrends returns up to days of daily aggregates near a coordinate.
// The bounding box matches the canonical key cell with a small margin.
func (s *CollectionStore) DailyTrends(ctx context.Context, lat, lng float64, days int) ([]collection.TrendPoint, error) {
	query := `
		SELECT date, avg_overall_aqi, max_overall_aqi, min_overall_aqi, dominant_pollutant
		FROM daily_aqi_trends
		WHERE location_lat BETWEEN $1 - 0.05 AND $1 + 0.05
		AND location_lng BETWEEN $2 - 0.05 AND $2 + 0.05
		AND date >= CURRENT_DATE - $3::int
		ORDER BY date ASC
	`

	rows, err := s.db.Query(ctx, query, lat, lng, days)
	if err != nil {
		return nil, fmt.Errorf("error querying daily trends: %w", err)
	}
	defer rows.Close()

	var points []collection.TrendPoint
	for rows.Next() {
		var p collection.TrendPoint
		if err := rows.Scan(&p.Date, &p.AvgAQI, &p.MaxAQI, &p.MinAQI, &p.DominantPollutant); err != nil {
			return nil, fmt.Errorf("error scanning trend point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily trends: %w", err)
	}

	return points, nil
}

// TrendLocations returns every location with daily aggregates inside the
// trailing window, ungrouped. Grouping is a query-time concern handled by
// the geo service.
func (s *CollectionStore) TrendLocations(ctx context.Context, sinceDays int) ([]collection.TrendLocation, error) {
	query := `
		SELECT
			city,
			location_lat,
			location_lng,
			COUNT(*) AS trend_days,
			MIN(date) AS earliest_date,
			MAX(date) AS latest_date,
			AVG(avg_overall_aqi) AS avg_aqi
		FROM daily_aqi_trends
		WHERE date >= CURRENT_DATE - $1::int
		GROUP BY city, location_lat, location_lng
		ORDER BY trend_days DESC, city ASC
	`

	rows, err := s.db.Query(ctx, query, sinceDays)
	if err != nil {
		return nil, fmt.Errorf("error querying trend locations: %w", err)
	}
	defer rows.Close()

	var locations []collection.TrendLocation
	for rows.Next() {
		var loc collection.TrendLocation
		err := rows.Scan(
			&loc.City,
			&loc.Latitude,
			&loc.Longitude,
			&loc.TrendDays,
			&loc.EarliestDate,
			&loc.LatestDate,
			&loc.AvgAQI,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning trend location: %w", err)
		}
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trend locations: %w", err)
	}

	return locations, nil
}
