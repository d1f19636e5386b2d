package usecase

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/reqctx"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

const staleProcessingReason = "processing timed out before an outcome was recorded"

// Sweeper recovers jobs whose worker disappeared. Jobs stuck in processing become
// transient failures. Queued jobs nobody picked up, and retrying jobs whose message was
// lost, are published again.
type Sweeper struct {
	pipeline   *Pipeline
	staleAfter time.Duration
	interval   time.Duration
	batch      int
	logger     *zap.Logger
}

// NewSweeper creates a Sweeper over the pipeline's store and publisher
func NewSweeper(pipeline *Pipeline, cfg config.PipelineConfig) *Sweeper {
	batch := cfg.SweepBatch
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		pipeline:   pipeline,
		staleAfter: cfg.StaleAfter,
		interval:   cfg.SweepInterval,
		batch:      batch,
		logger:     logger.Log.Named("sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.staleAfter <= 0 {
		s.logger.Info("Stale job sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	sweep := utils.WrapWithContextRecovery(func(ctx context.Context) error {
		_, err := s.SweepOnce(ctx)
		return err
	})

	s.logger.Info("Stale job sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("stale_after", s.staleAfter))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stale job sweeper stopped")
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Stale job sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce runs one pass and returns how many processing jobs were recovered
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	p := s.pipeline
	cutoff := p.now().Add(-s.staleAfter)

	stuck, err := p.jobs.FindStale(ctx, model.JobStatusProcessing, cutoff, s.batch)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range stuck {
		jobCtx := reqctx.WithOnboardingID(reqctx.WithJobID(ctx, job.ID), job.OnboardingID)
		ok, err := s.recover(jobCtx, job)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
		}
	}
	observer.AddStaleJobsRecovered(recovered)

	waiting, err := p.jobs.FindStale(ctx, model.JobStatusQueued, cutoff, s.batch)
	if err != nil {
		return recovered, err
	}
	// A retrying job is only orphaned once its longest possible backoff has also passed.
	orphaned, err := p.jobs.FindStale(ctx, model.JobStatusRetrying, cutoff.Add(-p.retryMax), s.batch)
	if err != nil {
		return recovered, err
	}
	waiting = append(waiting, orphaned...)
	iter.ForEach(waiting, func(job **model.Job) {
		p.publish(reqctx.WithJobID(ctx, (*job).ID), *job)
	})

	if recovered > 0 || len(waiting) > 0 {
		s.logger.Info("Stale jobs swept",
			zap.Int("recovered", recovered),
			zap.Int("republished", len(waiting)))
	}
	return recovered, nil
}

// recover fails one stuck job transiently, exactly as if its oracle had timed out
func (s *Sweeper) recover(ctx context.Context, job *model.Job) (bool, error) {
	p := s.pipeline
	retry, err := job.FailTransient(p.now(), staleProcessingReason)
	if err != nil {
		return false, err
	}
	if err := p.jobs.Transition(ctx, job, model.JobStatusProcessing); err != nil {
		if _, raceErr := p.lostRace(ctx, job, err); raceErr != nil {
			return false, raceErr
		}
		return false, nil
	}
	observer.IncJobOutcome(job.DocumentType, job.Status)
	p.jobCache.Invalidate(job.OnboardingID)

	if retry {
		p.publish(ctx, job)
		return true, nil
	}
	if err := p.afterSettle(ctx, job); err != nil {
		logger.FromContextOr(ctx, s.logger).Warn("Aggregation after stale recovery failed", zap.Error(err))
	}
	return true, nil
}
