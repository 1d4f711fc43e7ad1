// internal/service/interest/scorer.go

package interest

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"airwatch/internal/domain/signal"
)

// Score weights applied to the aggregated counters. Must match the ORDER BY
// expression the store uses to pre-rank rows.
const (
	alertWeight        = 3.0
	searchWeight       = 0.1
	defaultDemandBoost = 1.0
)

// Scorer turns aggregated interest signals into an ordered importance
// ranking. It is a pure function over the store's current snapshot; no
// hidden state.
type Scorer struct {
	store  signal.Store
	logger *zap.Logger
}

// NewScorer creates a new priority scorer
func NewScorer(store signal.Store, logger *zap.Logger) *Scorer {
	return &Scorer{
		store:  store,
		logger: logger,
	}
}

// ScoreSnapshot computes the priority score for one signal snapshot.
func ScoreSnapshot(snap signal.Snapshot) float64 {
	boost := snap.DemandBoost
	if boost <= 0 {
		boost = defaultDemandBoost
	}
	return alertWeight*float64(snap.AlertSubscriberCount) +
		searchWeight*float64(snap.SearchCount) +
		boost
}

// Rank returns at most limit locations ordered by descending priority
// score.
func (s *Scorer) Rank(ctx context.Context, limit int) ([]signal.PriorityLocation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.store.PriorityRows(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ranking locations: %w", err)
	}

	ranked := make([]signal.PriorityLocation, 0, len(rows))
	for _, row := range rows {
		if row.LocationKey == "" {
			continue
		}

		city := row.City
		if city == "" {
			city = "Unknown"
		}

		ranked = append(ranked, signal.PriorityLocation{
			LocationKey:          row.LocationKey,
			City:                 city,
			Latitude:             row.Latitude,
			Longitude:            row.Longitude,
			Score:                ScoreSnapshot(row),
			AlertSubscriberCount: row.AlertSubscriberCount,
			SearchCount:          row.SearchCount,
		})
	}

	// The store pre-orders with the same expression, but the precise score
	// is computed here; re-sort so ties and float rounding stay stable.
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	s.logger.Debug("generated priority ranking", zap.Int("locations", len(ranked)))

	return ranked, nil
}
