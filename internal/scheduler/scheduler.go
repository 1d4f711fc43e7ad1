// internal/scheduler/scheduler.go

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"airwatch/internal/domain/collection"
	"airwatch/internal/domain/location"
	"airwatch/internal/service/collector"
	"airwatch/internal/service/freshness"
	"airwatch/internal/service/interest"
)

// Config contains configuration for the batch scheduler.
type Config struct {
	BatchInterval  time.Duration
	BatchLimit     int
	MaxConcurrent  int
	CollectTimeout time.Duration
}

// Scheduler proactively refreshes the highest-priority locations. Each run
// ranks locations by interest, filters them through admission control, and
// collects every category for the survivors with bounded concurrency.
type Scheduler struct {
	scheduler    *gocron.Scheduler
	scorer       *interest.Scorer
	evaluator    *freshness.Evaluator
	orchestrator *collector.Orchestrator
	config       Config
	logger       *zap.Logger
}

// New creates a new batch scheduler.
func New(
	scorer *interest.Scorer,
	evaluator *freshness.Evaluator,
	orchestrator *collector.Orchestrator,
	config Config,
	logger *zap.Logger,
) *Scheduler {
	if config.BatchInterval <= 0 {
		config.BatchInterval = 15 * time.Minute
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 100
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	if config.CollectTimeout <= 0 {
		config.CollectTimeout = 60 * time.Second
	}

	return &Scheduler{
		scheduler:    gocron.NewScheduler(time.UTC),
		scorer:       scorer,
		evaluator:    evaluator,
		orchestrator: orchestrator,
		config:       config,
		logger:       logger,
	}
}

// Start schedules the periodic batch job and starts the scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.config.BatchInterval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.RunBatch)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future runs. In-flight
// collection tasks run to completion.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunBatch executes one scheduling pass.
func (s *Scheduler) RunBatch() {
	ctx := context.Background()
	started := time.Now()

	ranked, err := s.scorer.Rank(ctx, s.config.BatchLimit)
	if err != nil {
		s.logger.Error("ranking priority locations", zap.Error(err))
		return
	}

	var eligible []location.Location
	for _, row := range ranked {
		ok, err := s.evaluator.ShouldCollect(ctx, row.LocationKey)
		if err != nil {
			s.logger.Warn("admission check failed",
				zap.String("location_key", row.LocationKey),
				zap.Error(err),
			)
			continue
		}
		if ok {
			eligible = append(eligible, location.Location{
				Latitude:    row.Latitude,
				Longitude:   row.Longitude,
				DisplayName: row.City,
			})
		}
	}

	if len(eligible) == 0 {
		s.logger.Debug("batch run found nothing to collect",
			zap.Int("ranked", len(ranked)),
		)
		return
	}

	s.logger.Info("starting batch collection",
		zap.Int("ranked", len(ranked)),
		zap.Int("eligible", len(eligible)),
	)

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.config.MaxConcurrent)
	for _, loc := range eligible {
		loc := loc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			collectCtx, cancel := context.WithTimeout(ctx, s.config.CollectTimeout)
			defer cancel()

			s.orchestrator.CollectAll(collectCtx, loc, collection.AllCategories())
		}()
	}
	wg.Wait()

	s.logger.Info("batch collection completed",
		zap.Int("locations", len(eligible)),
		zap.Duration("took", time.Since(started)),
	)
}
