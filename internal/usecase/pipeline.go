package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/cache"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/reqctx"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/validator"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/verification"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// JobListCache caches ListJobs results per onboarding id
type JobListCache = cache.TTLCache[string, []*model.Job]

// ProcessResult tells the worker what to do with the job message
type ProcessResult struct {
	Job        *model.Job
	Requeue    bool          // redeliver the message after RetryAfter
	RetryAfter time.Duration
}

// Pipeline drives a document from submission to a settled job and an updated onboarding
type Pipeline struct {
	jobs       storage.JobRepo
	dedup      *Deduplicator
	verifier   DocumentVerifier
	aggregator *Aggregator
	publisher  JobPublisher
	notifier   StatusNotifier
	jobCache   *JobListCache
	retryBase  time.Duration
	retryMax   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewPipeline wires the pipeline. publisher, notifier and jobCache may be nil.
func NewPipeline(
	cfg config.PipelineConfig,
	jobs storage.JobRepo,
	dedup *Deduplicator,
	verifier DocumentVerifier,
	aggregator *Aggregator,
	publisher JobPublisher,
	notifier StatusNotifier,
	jobCache *JobListCache,
) *Pipeline {
	if jobCache == nil {
		jobCache = cache.NewTTLCache[string, []*model.Job]("job_list", 0)
	}
	return &Pipeline{
		jobs:       jobs,
		dedup:      dedup,
		verifier:   verifier,
		aggregator: aggregator,
		publisher:  publisher,
		notifier:   notifier,
		jobCache:   jobCache,
		retryBase:  cfg.RetryBaseDelay,
		retryMax:   cfg.RetryMaxDelay,
		now:        utils.Now,
		logger:     logger.Log.Named("pipeline"),
	}
}

// WithClock replaces the time source. Intended for tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Submit registers a document for verification and returns its job. A duplicate of a live
// or completed document returns the existing job. Unknown document types are recorded as
// failed jobs rather than rejected.
func (p *Pipeline) Submit(ctx context.Context, req *model.SubmitRequest) (*model.Job, error) {
	if err := validator.Validate(req); err != nil {
		observer.IncSubmission(model.DocumentType(req.DocumentType), "invalid")
		return nil, err
	}

	ctx = reqctx.WithOnboardingID(ctx, req.OnboardingID)
	log := logger.FromContextOr(ctx, p.logger)
	docType, subtype := model.NormalizeDocumentType(req.DocumentType)

	opts := ResolveOptions{
		DocumentSubtype:  subtype,
		OriginalFilename: req.OriginalFilename,
		ContentHash:      req.ContentHash,
	}
	resolve := p.dedup.ResolveOrCreate
	if !docType.IsKnown() {
		resolve = p.dedup.RecordUnrecognized
	}
	job, created, err := resolve(ctx, req.OnboardingID, docType, req.DocumentURL, opts)
	if err != nil {
		observer.IncSubmission(docType, "error")
		return nil, err
	}
	if !created {
		observer.IncSubmission(docType, "deduplicated")
		return job, nil
	}

	observer.IncSubmission(docType, "created")
	p.jobCache.Invalidate(job.OnboardingID)
	log.Info("Document job created",
		zap.String("job_id", job.ID),
		zap.String("document_type", string(docType)))

	if !docType.IsKnown() {
		return p.rejectUnknownType(reqctx.WithJobID(ctx, job.ID), job)
	}

	p.publish(ctx, job)
	return job, nil
}

// rejectUnknownType settles a freshly created job as failed without touching any oracle
func (p *Pipeline) rejectUnknownType(ctx context.Context, job *model.Job) (*model.Job, error) {
	now := p.now()
	if err := job.Claim(now); err != nil {
		return nil, err
	}
	if err := job.Fail(now, verification.UnknownTypeError(job.DocumentType).Error(), nil, nil); err != nil {
		return nil, err
	}
	if err := p.jobs.Transition(ctx, job, model.JobStatusQueued); err != nil {
		return nil, err
	}
	observer.IncJobOutcome(job.DocumentType, job.Status)
	p.jobCache.Invalidate(job.OnboardingID)

	if err := p.afterSettle(ctx, job); err != nil {
		logger.FromContextOr(ctx, p.logger).Warn("Aggregation after rejected submission failed", zap.Error(err))
	}
	return job, nil
}

// Process runs one delivery of a job message. Job-level failures are recorded on the job
// and never returned; a returned error means the store or the message is unusable.
func (p *Pipeline) Process(ctx context.Context, jobID string) (*ProcessResult, error) {
	ctx = reqctx.WithJobID(ctx, jobID)

	job, err := p.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewFatal(err, "job %s", jobID)
		}
		return nil, err
	}
	ctx = reqctx.WithOnboardingID(ctx, job.OnboardingID)
	log := logger.FromContextOr(ctx, p.logger)

	switch job.Status {
	case model.JobStatusQueued:
	case model.JobStatusRetrying:
		if wait := p.remainingBackoff(job); wait > 0 {
			return &ProcessResult{Job: job, Requeue: true, RetryAfter: wait}, nil
		}
		if err := job.Requeue(p.now()); err != nil {
			return nil, err
		}
		if err := p.jobs.Transition(ctx, job, model.JobStatusRetrying); err != nil {
			return p.lostRace(ctx, job, err)
		}
	case model.JobStatusProcessing:
		log.Debug("Job is already being processed")
		return &ProcessResult{Job: job}, nil
	default:
		// Settled jobs are redelivered when the ack was lost; recompute in case aggregation was too.
		if _, err := p.aggregator.Recompute(ctx, job.OnboardingID); err != nil {
			return nil, err
		}
		return &ProcessResult{Job: job}, nil
	}

	if err := job.Claim(p.now()); err != nil {
		return nil, err
	}
	if err := p.jobs.Transition(ctx, job, model.JobStatusQueued); err != nil {
		return p.lostRace(ctx, job, err)
	}
	p.jobCache.Invalidate(job.OnboardingID)

	start := time.Now()
	outcome := p.verifier.Dispatch(ctx, job)
	observer.ObserveJobProcessingDuration(job.DocumentType, time.Since(start))

	return p.settle(ctx, job, outcome)
}

// settle records the outcome of a claimed job
func (p *Pipeline) settle(ctx context.Context, job *model.Job, outcome verification.Outcome) (*ProcessResult, error) {
	log := logger.FromContextOr(ctx, p.logger)
	now := p.now()

	var (
		retry bool
		err   error
	)
	switch {
	case outcome.Err == nil:
		err = job.Complete(now, outcome.Extraction, outcome.Verification)
	case apperrors.IsTransient(outcome.Err):
		retry, err = job.FailTransient(now, outcome.Err.Error())
	default:
		err = job.Fail(now, outcome.Err.Error(), outcome.Extraction, outcome.Verification)
	}
	if err != nil {
		return nil, err
	}

	if err := p.jobs.Transition(ctx, job, model.JobStatusProcessing); err != nil {
		return p.lostRace(ctx, job, err)
	}
	observer.IncJobOutcome(job.DocumentType, job.Status)
	p.jobCache.Invalidate(job.OnboardingID)

	if retry {
		delay := calculateBackoffDelay(job.RetryCount, p.retryBase, p.retryMax)
		log.Warn("Job failed transiently, scheduling retry",
			zap.Int("retry_count", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Duration("retry_after", delay),
			zap.Error(outcome.Err))
		return &ProcessResult{Job: job, Requeue: true, RetryAfter: delay}, nil
	}

	if job.Status == model.JobStatusFailed {
		log.Info("Job failed", zap.Int("retry_count", job.RetryCount), zap.Error(outcome.Err))
	} else {
		log.Info("Job completed", zap.Intp("confidence_score", job.ConfidenceScore))
	}
	if err := p.afterSettle(ctx, job); err != nil {
		return nil, err
	}
	return &ProcessResult{Job: job}, nil
}

// afterSettle announces a terminal failure and refreshes the onboarding aggregate
func (p *Pipeline) afterSettle(ctx context.Context, job *model.Job) error {
	if job.Status == model.JobStatusFailed && p.notifier != nil {
		evt := model.DocumentFailed{
			JobID:        job.ID,
			OnboardingID: job.OnboardingID,
			DocumentType: job.DocumentType,
			RetryCount:   job.RetryCount,
			At:           p.now(),
		}
		if job.ErrorMessage != nil {
			evt.ErrorMessage = *job.ErrorMessage
		}
		if err := p.notifier.DocumentFailed(ctx, evt); err != nil {
			logger.FromContextOr(ctx, p.logger).Warn("Failed to publish document failure", zap.Error(err))
		}
	}

	if _, err := p.aggregator.Recompute(ctx, job.OnboardingID); err != nil {
		return fmt.Errorf("aggregate onboarding %s: %w", job.OnboardingID, err)
	}
	return nil
}

// lostRace turns a conditional-update conflict into a no-op result
func (p *Pipeline) lostRace(ctx context.Context, job *model.Job, err error) (*ProcessResult, error) {
	if !apperrors.IsConflictError(err) {
		return nil, err
	}
	logger.FromContextOr(ctx, p.logger).Info("Job changed state concurrently, skipping", zap.Error(err))
	return &ProcessResult{Job: job}, nil
}

// remainingBackoff is how much longer a retrying job has to wait before it is claimed again
func (p *Pipeline) remainingBackoff(job *model.Job) time.Duration {
	delay := calculateBackoffDelay(job.RetryCount, p.retryBase, p.retryMax)
	elapsed := p.now().Sub(job.UpdatedAt)
	if elapsed >= delay {
		return 0
	}
	return delay - elapsed
}

// publish hands the job to the worker stream. Failures are logged; stale queued jobs are
// republished by the sweeper.
func (p *Pipeline) publish(ctx context.Context, job *model.Job) {
	if p.publisher == nil {
		return
	}
	msg := model.JobMessage{JobID: job.ID, OnboardingID: job.OnboardingID, RetryCount: job.RetryCount}
	if err := p.publisher.PublishJob(ctx, msg); err != nil {
		logger.FromContextOr(ctx, p.logger).Warn("Failed to publish job message",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// ListJobs returns the onboarding's jobs, newest first
func (p *Pipeline) ListJobs(ctx context.Context, onboardingID string) ([]*model.Job, error) {
	if err := validator.ValidateVar(onboardingID, "required,uuid"); err != nil {
		return nil, fmt.Errorf("%w: onboarding id must be a valid UUID", apperrors.ErrValidation)
	}
	if cached, ok := p.jobCache.Get(onboardingID); ok {
		return cloneJobs(cached), nil
	}

	jobs, err := p.jobs.FindByOnboarding(ctx, onboardingID)
	if err != nil {
		return nil, err
	}
	p.jobCache.Set(onboardingID, cloneJobs(jobs))
	return jobs, nil
}

func cloneJobs(jobs []*model.Job) []*model.Job {
	out := make([]*model.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}
