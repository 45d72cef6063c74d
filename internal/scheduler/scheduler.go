// Package scheduler drives the periodic pipeline: scoring passes, the
// TikTok enrichment fold, and the gate-then-dispatch alert cycle.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mediaheat/heatwatch/internal/alerts"
	"github.com/mediaheat/heatwatch/internal/gate"
	"github.com/mediaheat/heatwatch/internal/scoring"
)

// Config holds the job cadence.
type Config struct {
	ScoreInterval time.Duration
	AlertInterval time.Duration
	TikTokFold    bool
	AlertLimit    int
}

// Scheduler runs the pipeline jobs on independent tickers. Jobs never
// overlap with themselves; a slow pass delays its own next tick.
type Scheduler struct {
	cfg        Config
	engine     *scoring.Engine
	evaluator  *gate.Evaluator
	dispatcher *alerts.Dispatcher

	wg sync.WaitGroup
}

// New creates a scheduler over the pipeline components.
func New(cfg Config, engine *scoring.Engine, evaluator *gate.Evaluator, dispatcher *alerts.Dispatcher) *Scheduler {
	if cfg.ScoreInterval <= 0 {
		cfg.ScoreInterval = 15 * time.Minute
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = 15 * time.Minute
	}
	if cfg.AlertLimit <= 0 {
		cfg.AlertLimit = 10
	}
	return &Scheduler{cfg: cfg, engine: engine, evaluator: evaluator, dispatcher: dispatcher}
}

// Run starts the job loops and blocks until ctx is canceled and every
// in-flight pass has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(2)
	go s.loop(ctx, "scoring", s.cfg.ScoreInterval, s.scorePass)
	go s.loop(ctx, "alerts", s.cfg.AlertInterval, s.alertPass)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	defer s.wg.Done()

	// First run happens immediately so a fresh deploy does not sit idle
	// for a full interval.
	job(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("job", name).Msg("scheduler job stopped")
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (s *Scheduler) scorePass(ctx context.Context) {
	report, err := s.engine.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scoring pass failed")
		return
	}
	log.Info().Int("total", report.Total).Int("failed", report.Failed).Msg("scoring pass complete")

	if !s.cfg.TikTokFold {
		return
	}
	foldReport, err := s.engine.FoldTikTok(ctx)
	if err != nil {
		log.Error().Err(err).Msg("tiktok fold failed")
		return
	}
	log.Info().Int("total", foldReport.Total).Int("failed", foldReport.Failed).Msg("tiktok fold complete")
}

func (s *Scheduler) alertPass(ctx context.Context) {
	candidates, err := s.evaluator.Evaluate(ctx, s.cfg.AlertLimit)
	if err != nil {
		log.Error().Err(err).Msg("gate evaluation failed")
		return
	}
	if len(candidates) == 0 {
		return
	}
	report := s.dispatcher.Dispatch(ctx, candidates)
	log.Info().
		Int("candidates", len(candidates)).
		Int("dispatched", report.Dispatched).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("alert pass complete")
}
