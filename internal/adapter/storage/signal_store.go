// internal/adapter/storage/signal_store.go

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"airwatch/internal/domain/signal"
)

// SignalStore implements storage for interest signals
type SignalStore struct {
	db *pgxpool.Pool
}

// NewSignalStore creates a new signal store
func NewSignalStore(db *pgxpool.Pool) *SignalStore {
	return &SignalStore{
		db: db,
	}
}

// RecordSearch increments the search counter for a location and returns the
// new count. The row is created on first observation.
func (s *SignalStore) RecordSearch(ctx context.Context, key, city string, lat, lng float64) (int, error) {
	query := `
		INSERT INTO location_search_frequency (
			location_key, city, location_lat, location_lng, search_count, last_searched
		) VALUES (
			$1, $2, $3, $4, 1, NOW()
		)
		ON CONFLICT (location_key) DO UPDATE
		SET
			search_count = location_search_frequency.search_count + 1,
			last_searched = NOW()
		RETURNING search_count
	`

	var count int
	if err := s.db.QueryRow(ctx, query, key, city, lat, lng).Scan(&count); err != nil {
		return 0, fmt.Errorf("error recording search: %w", wrapUnavailable(err))
	}

	return count, nil
}

// SetSearchPriority records the bucketed search priority for a location.
// GREATEST keeps re-registration from ever lowering the stored value.
func (s *SignalStore) SetSearchPriority(ctx context.Context, key string, score float64) error {
	query := `
		UPDATE location_search_frequency
		SET priority_score = GREATEST(priority_score, $2)
		WHERE location_key = $1
	`

	if _, err := s.db.Exec(ctx, query, key, score); err != nil {
		return fmt.Errorf("error setting search priority: %w", wrapUnavailable(err))
	}

	return nil
}

// UpsertAlertLocation creates or refreshes a per-(user, location) alert
// subscription. Re-registering updates thresholds and reactivates the row.
func (s *SignalStore) UpsertAlertLocation(ctx context.Context, alert signal.AlertLocation) error {
	query := `
		INSERT INTO alert_locations (
			id, user_id, location_key, city, location_lat, location_lng,
			display_name, threshold_type, threshold_value, priority_score,
			active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, NOW(), NOW()
		)
		ON CONFLICT (user_id, location_key) DO UPDATE
		SET
			threshold_type = $8,
			threshold_value = $9,
			priority_score = GREATEST(alert_locations.priority_score, $10),
			active = TRUE,
			updated_at = NOW()
	`

	_, err := s.db.Exec(
		ctx,
		query,
		alert.ID,
		alert.UserID,
		alert.LocationKey,
		alert.City,
		alert.Latitude,
		alert.Longitude,
		alert.DisplayName,
		alert.ThresholdType,
		alert.ThresholdVal,
		alert.PriorityScore,
	)
	if err != nil {
		return fmt.Errorf("error upserting alert location: %w", wrapUnavailable(err))
	}

	return nil
}

// RaiseDemandBoost raises (never lowers) the demand boost recorded for a
// location in the collection cache.
func (s *SignalStore) RaiseDemandBoost(ctx context.Context, key string, boost float64) error {
	query := `
		INSERT INTO collection_cache (location_key, last_collected, user_demand_score)
		VALUES ($1, NULL, $2)
		ON CONFLICT (location_key) DO UPDATE
		SET user_demand_score = GREATEST(collection_cache.user_demand_score, $2)
	`

	if _, err := s.db.Exec(ctx, query, key, boost); err != nil {
		return fmt.Errorf("error raising demand boost: %w", wrapUnavailable(err))
	}

	return nil
}

// SnapshotFor returns the aggregated signal snapshot for one location.
// Alerts are pre-aggregated by location key alone: subscribers of the same
// cell may carry non-identical raw coordinates or city spellings, and all of
// them must land in one count.
func (s *SignalStore) SnapshotFor(ctx context.Context, key string) (*signal.Snapshot, error) {
	query := `
		SELECT
			cc.location_key,
			COALESCE(al.city, sf.city, '') AS city,
			COALESCE(al.location_lat, sf.location_lat, 0) AS location_lat,
			COALESCE(al.location_lng, sf.location_lng, 0) AS location_lng,
			COALESCE(al.alert_users, 0) AS alert_users,
			COALESCE(sf.search_count, 0) AS search_count,
			COALESCE(cc.user_demand_score, 1.0) AS demand_score,
			cc.last_collected
		FROM collection_cache cc
		LEFT JOIN (
			SELECT
				location_key,
				COUNT(DISTINCT user_id) AS alert_users,
				MAX(city) AS city,
				MAX(location_lat) AS location_lat,
				MAX(location_lng) AS location_lng
			FROM alert_locations
			WHERE active = TRUE
			GROUP BY location_key
		) al ON cc.location_key = al.location_key
		LEFT JOIN location_search_frequency sf ON cc.location_key = sf.location_key
		WHERE cc.location_key = $1
	`

	var snap signal.Snapshot
	err := s.db.QueryRow(ctx, query, key).Scan(
		&snap.LocationKey,
		&snap.City,
		&snap.Latitude,
		&snap.Longitude,
		&snap.AlertSubscriberCount,
		&snap.SearchCount,
		&snap.DemandBoost,
		&snap.LastCollectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, signal.ErrNotFound
		}
		return nil, fmt.Errorf("error reading signal snapshot: %w", wrapUnavailable(err))
	}

	return &snap, nil
}

// PriorityRows returns the union of alert-subscribed locations (left-joined
// with their search stats) and search-only locations, at most limit rows.
func (s *SignalStore) PriorityRows(ctx context.Context, limit int) ([]signal.Snapshot, error) {
	query := `
		SELECT * FROM (
		SELECT
			al.location_key,
			MAX(al.city) AS city,
			MAX(al.location_lat) AS location_lat,
			MAX(al.location_lng) AS location_lng,
			COUNT(DISTINCT al.user_id) AS alert_users,
			COALESCE(MAX(sf.search_count), 0) AS search_count,
			COALESCE(MAX(cc.user_demand_score), 1.0) AS demand_score,
			MAX(cc.last_collected) AS last_collected
		FROM alert_locations al
		LEFT JOIN location_search_frequency sf ON al.location_key = sf.location_key
		LEFT JOIN collection_cache cc ON al.location_key = cc.location_key
		WHERE al.active = TRUE
		GROUP BY al.location_key

		UNION ALL

		SELECT
			sf.location_key,
			sf.city,
			sf.location_lat,
			sf.location_lng,
			0 AS alert_users,
			sf.search_count,
			COALESCE(cc.user_demand_score, 1.0) AS demand_score,
			cc.last_collected
		FROM location_search_frequency sf
		LEFT JOIN collection_cache cc ON sf.location_key = cc.location_key
		WHERE sf.location_key NOT IN (
			SELECT DISTINCT location_key FROM alert_locations WHERE active = TRUE
		)
		) ranked
		ORDER BY (alert_users * 3.0 + search_count * 0.1 + demand_score) DESC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying priority rows: %w", wrapUnavailable(err))
	}
	defer rows.Close()

	var snapshots []signal.Snapshot
	for rows.Next() {
		var snap signal.Snapshot
		err := rows.Scan(
			&snap.LocationKey,
			&snap.City,
			&snap.Latitude,
			&snap.Longitude,
			&snap.AlertSubscriberCount,
			&snap.SearchCount,
			&snap.DemandBoost,
			&snap.LastCollectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning priority row: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating priority rows: %w", wrapUnavailable(err))
	}

	return snapshots, nil
}

// CandidatesNear returns known locations inside a coordinate bounding box.
// Alert-subscribed and search-only locations both qualify.
func (s *SignalStore) CandidatesNear(ctx context.Context, lat, lng, latRange, lngRange float64) ([]signal.Candidate, error) {
	query := `
		SELECT location_key, city, location_lat, location_lng,
			COUNT(DISTINCT user_id) AS user_count
		FROM alert_locations
		WHERE location_lat BETWEEN $1 AND $2
		AND location_lng BETWEEN $3 AND $4
		AND active = TRUE
		GROUP BY location_key, city, location_lat, location_lng

		UNION

		SELECT location_key, city, location_lat, location_lng,
			0 AS user_count
		FROM location_search_frequency
		WHERE location_lat BETWEEN $1 AND $2
		AND location_lng BETWEEN $3 AND $4
	`

	rows, err := s.db.Query(ctx, query, lat-latRange, lat+latRange, lng-lngRange, lng+lngRange)
	if err != nil {
		return nil, fmt.Errorf("error querying nearby candidates: %w", wrapUnavailable(err))
	}
	defer rows.Close()

	var candidates []signal.Candidate
	for rows.Next() {
		var c signal.Candidate
		if err := rows.Scan(&c.LocationKey, &c.City, &c.Latitude, &c.Longitude, &c.UserCount); err != nil {
			return nil, fmt.Errorf("error scanning candidate: %w", err)
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", wrapUnavailable(err))
	}

	return candidates, nil
}

// wrapUnavailable tags connectivity failures so callers can degrade instead
// of surfacing a hard error.
func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", signal.ErrStoreUnavailable, err)
}
