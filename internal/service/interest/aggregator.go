// internal/service/interest/aggregator.go

package interest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"airwatch/internal/domain/location"
	"airwatch/internal/domain/signal"
)

// Demand boosts raised by explicit registration events. Boosts only ever go
// up; GREATEST semantics in the store make retries harmless.
const (
	searchDemandBoost = 1.2
	alertDemandBoost  = 2.0

	// alertPriorityScore is stored on the alert row itself, where the
	// subscription is the sole driver of priority.
	alertPriorityScore = 2.5
)

// AggregatorConfig contains configuration for the signal aggregator
type AggregatorConfig struct {
	EventsTopic string
}

// Aggregator records search and alert-subscription events per location.
type Aggregator struct {
	store    signal.Store
	strategy BucketStrategy
	eventBus *nats.Conn
	config   AggregatorConfig
	logger   *zap.Logger
}

// AlertLocationInput is one requested alert subscription.
type AlertLocationInput struct {
	City          string  `json:"city"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lng"`
	DisplayName   string  `json:"display_name"`
	ThresholdType string  `json:"threshold_type"`
	ThresholdVal  float64 `json:"threshold_value"`
}

// signalEvent is published on the event bus for every registration.
type signalEvent struct {
	Kind        signal.Kind `json:"kind"`
	LocationKey string      `json:"location_key"`
	City        string      `json:"city"`
	Latitude    float64     `json:"latitude"`
	Longitude   float64     `json:"longitude"`
	ObservedAt  time.Time   `json:"observed_at"`
}

// NewAggregator creates a new signal aggregator
func NewAggregator(
	store signal.Store,
	strategy BucketStrategy,
	eventBus *nats.Conn,
	config AggregatorConfig,
	logger *zap.Logger,
) *Aggregator {
	if strategy == nil {
		strategy = StepBuckets{}
	}
	if config.EventsTopic == "" {
		config.EventsTopic = "signals"
	}

	return &Aggregator{
		store:    store,
		strategy: strategy,
		eventBus: eventBus,
		config:   config,
		logger:   logger,
	}
}

// RegisterSearch records a search event for a location: the search counter
// is incremented, the bucketed search priority recomputed, and the demand
// boost raised to at least the search floor. Re-registering never lowers a
// counter or boost.
func (a *Aggregator) RegisterSearch(ctx context.Context, city string, lat, lng float64) error {
	key := location.Key(lat, lng)

	count, err := a.store.RecordSearch(ctx, key, city, lat, lng)
	if err != nil {
		return fmt.Errorf("registering search for %s: %w", key, err)
	}

	if err := a.store.SetSearchPriority(ctx, key, a.strategy.Score(count)); err != nil {
		return fmt.Errorf("updating search priority for %s: %w", key, err)
	}

	if err := a.store.RaiseDemandBoost(ctx, key, searchDemandBoost); err != nil {
		return fmt.Errorf("raising demand boost for %s: %w", key, err)
	}

	a.logger.Info("registered search",
		zap.String("location_key", key),
		zap.String("city", city),
		zap.Int("search_count", count),
	)

	a.publish(signalEvent{
		Kind:        signal.KindSearch,
		LocationKey: key,
		City:        city,
		Latitude:    lat,
		Longitude:   lng,
		ObservedAt:  time.Now().UTC(),
	})

	return nil
}

// RegisterAlertLocations upserts one alert subscription per valid input
// location for the given user and returns the created alert IDs. Inputs
// with missing coordinates are skipped rather than failing the batch.
func (a *Aggregator) RegisterAlertLocations(ctx context.Context, userID string, inputs []AlertLocationInput) ([]string, error) {
	if userID == "" {
		userID = uuid.New().String()
	}

	createdIDs := make([]string, 0, len(inputs))

	for _, in := range inputs {
		loc := location.Location{Latitude: in.Latitude, Longitude: in.Longitude, DisplayName: in.DisplayName}
		if !loc.Valid() {
			a.logger.Warn("skipping alert location with invalid coordinates",
				zap.String("city", in.City),
				zap.Float64("lat", in.Latitude),
				zap.Float64("lng", in.Longitude),
			)
			continue
		}

		key := loc.Key()
		alertID := uuid.New().String()

		alert := signal.AlertLocation{
			ID:            alertID,
			UserID:        userID,
			LocationKey:   key,
			City:          in.City,
			Latitude:      in.Latitude,
			Longitude:     in.Longitude,
			DisplayName:   in.DisplayName,
			ThresholdType: in.ThresholdType,
			ThresholdVal:  in.ThresholdVal,
			PriorityScore: alertPriorityScore,
		}
		if alert.ThresholdType == "" {
			alert.ThresholdType = "category"
		}

		if err := a.store.UpsertAlertLocation(ctx, alert); err != nil {
			return createdIDs, fmt.Errorf("registering alert for %s: %w", key, err)
		}

		if err := a.store.RaiseDemandBoost(ctx, key, alertDemandBoost); err != nil {
			return createdIDs, fmt.Errorf("raising demand boost for %s: %w", key, err)
		}

		createdIDs = append(createdIDs, alertID)

		a.publish(signalEvent{
			Kind:        signal.KindAlertSubscription,
			LocationKey: key,
			City:        in.City,
			Latitude:    in.Latitude,
			Longitude:   in.Longitude,
			ObservedAt:  time.Now().UTC(),
		})
	}

	a.logger.Info("registered alert locations",
		zap.String("user_id", userID),
		zap.Int("requested", len(inputs)),
		zap.Int("created", len(createdIDs)),
	)

	return createdIDs, nil
}

// publish emits a signal event; a bus failure is logged and swallowed, the
// registration itself already succeeded.
func (a *Aggregator) publish(ev signalEvent) {
	if a.eventBus == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		a.logger.Error("marshaling signal event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.%s", a.config.EventsTopic, ev.Kind)
	if err := a.eventBus.Publish(subject, data); err != nil {
		a.logger.Error("publishing signal event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
