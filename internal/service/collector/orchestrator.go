// internal/service/collector/orchestrator.go

package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
)

// Config contains configuration for the orchestrator
type Config struct {
	EventsTopic string
}

// Outcome is the per-category result of one orchestrated collection.
type Outcome struct {
	Category     collection.Category `json:"category"`
	Status       collection.Status   `json:"status"`
	QualityScore float64             `json:"quality_score,omitempty"`
	Err          error               `json:"-"`
}

// collectedEvent is published for every successful collection.
type collectedEvent struct {
	LocationKey  string              `json:"location_key"`
	Category     collection.Category `json:"category"`
	Backend      string              `json:"backend"`
	QualityScore float64             `json:"quality_score"`
	CollectedAt  time.Time           `json:"collected_at"`
}

// Orchestrator invokes collector backends per category, in parallel, with
// isolated failure handling. Concurrent requests for the same
// (location, category) pair share one in-flight backend call.
type Orchestrator struct {
	currentBackends  map[string]collection.Backend
	categoryBackends map[collection.Category]collection.Backend
	classifier       collection.RegionClassifier
	store            collection.Store
	eventBus         *nats.Conn
	inflight         singleflight.Group
	config           Config
	logger           *zap.Logger
}

// NewOrchestrator creates a new collection orchestrator.
// currentBackends maps region classifier identifiers to current-conditions
// backends; categoryBackends covers the single-backend categories.
func NewOrchestrator(
	currentBackends map[string]collection.Backend,
	categoryBackends map[collection.Category]collection.Backend,
	classifier collection.RegionClassifier,
	store collection.Store,
	eventBus *nats.Conn,
	config Config,
	logger *zap.Logger,
) *Orchestrator {
	if config.EventsTopic == "" {
		config.EventsTopic = "collection"
	}

	return &Orchestrator{
		currentBackends:  currentBackends,
		categoryBackends: categoryBackends,
		classifier:       classifier,
		store:            store,
		eventBus:         eventBus,
		config:           config,
		logger:           logger,
	}
}

// CollectAll invokes the backend for every requested category concurrently
// and independently. A failure in one category never cancels or fails the
// others; the aggregate always carries a per-category outcome.
func (o *Orchestrator) CollectAll(ctx context.Context, loc location.Location, categories []collection.Category) map[collection.Category]Outcome {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[collection.Category]Outcome, len(categories))
	)

	for _, category := range categories {
		category := category
		wg.Add(1)
		go func() {
			defer wg.Done()

			outcome := o.collectOne(ctx, loc, category)

			mu.Lock()
			outcomes[category] = outcome
			mu.Unlock()
		}()
	}

	wg.Wait()

	return outcomes
}

// collectOne runs one category's collection through the single-flight gate,
// so overlapping requests for the same (location, category) pair await one
// shared backend call instead of duplicating work.
func (o *Orchestrator) collectOne(ctx context.Context, loc location.Location, category collection.Category) Outcome {
	backend := o.backendFor(loc, category)
	if backend == nil {
		return Outcome{Category: category, Status: collection.StatusUnavailable}
	}

	key := loc.Key()
	flightKey := key + "|" + string(category)

	quality, err, _ := o.inflight.Do(flightKey, func() (interface{}, error) {
		result, err := backend.Collect(ctx, loc, category)
		if err != nil {
			return 0.0, err
		}

		if err := o.persist(ctx, key, category, result); err != nil {
			return 0.0, err
		}

		o.publishCollected(collectedEvent{
			LocationKey:  key,
			Category:     category,
			Backend:      backend.Name(),
			QualityScore: result.QualityScore,
			CollectedAt:  time.Now().UTC(),
		})

		return result.QualityScore, nil
	})

	if err != nil {
		// The prior collection record stays untouched; callers see the
		// category as collecting and a later read retries.
		o.logger.Warn("collection failed",
			zap.String("location_key", key),
			zap.String("category", string(category)),
			zap.String("backend", backend.Name()),
			zap.Error(err),
		)
		return Outcome{Category: category, Status: collection.StatusCollecting, Err: err}
	}

	score, _ := quality.(float64)

	o.logger.Info("collection completed",
		zap.String("location_key", key),
		zap.String("category", string(category)),
		zap.String("backend", backend.Name()),
		zap.Float64("quality_score", score),
	)

	return Outcome{Category: category, Status: collection.StatusLoaded, QualityScore: score}
}

// backendFor selects the backend for a (location, category) pair. The
// current-conditions category goes through the region classifier with the
// global backend as fallback; other categories each have a single backend.
func (o *Orchestrator) backendFor(loc location.Location, category collection.Category) collection.Backend {
	if category != collection.CategoryCurrent {
		return o.categoryBackends[category]
	}

	region := RegionGlobal
	if o.classifier != nil {
		region = o.classifier.Classify(loc.Latitude, loc.Longitude)
	}

	if backend, ok := o.currentBackends[region]; ok && backend != nil {
		return backend
	}
	return o.currentBackends[RegionGlobal]
}

// persist stores the payload and stamps the collection record.
func (o *Orchestrator) persist(ctx context.Context, key string, category collection.Category, result collection.Result) error {
	obs := collection.Observation{
		LocationKey: key,
		Category:    category,
		Payload:     result.Payload,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.store.SaveObservation(ctx, obs); err != nil {
		return fmt.Errorf("persisting observation: %w", err)
	}

	if err := o.store.MarkCollected(ctx, key, category, result.QualityScore); err != nil {
		return fmt.Errorf("marking collected: %w", err)
	}

	return nil
}

// publishCollected emits a collection event; bus failures are logged and
// swallowed.
func (o *Orchestrator) publishCollected(ev collectedEvent) {
	if o.eventBus == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		o.logger.Error("marshaling collection event", zap.Error(err))
		return
	}

	subject := fmt.Sprintf("%s.completed", o.config.EventsTopic)
	if err := o.eventBus.Publish(subject, data); err != nil {
		o.logger.Error("publishing collection event",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
