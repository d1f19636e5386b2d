package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// insertOrGetAttempts bounds the insert/select loop when the holder of a hash fails in between.
const insertOrGetAttempts = 3

// --- Job Repository Methods ---

// InsertOrGetLive inserts job with ON CONFLICT DO NOTHING against the partial unique
// index on content_hash. When the insert is skipped, the live or completed holder is returned.
func (r *PostgresRepo) InsertOrGetLive(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	loggerCtx := logger.FromContext(ctx)

	var (
		stored  *model.Job
		created bool
	)
	operation := func() error {
		for attempt := 0; attempt < insertOrGetAttempts; attempt++ {
			result := r.db.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:     []clause.Column{{Name: "content_hash"}},
					TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "job_status <> 'failed'"}}},
					DoNothing:   true,
				}).
				Create(job)
			if result.Error != nil {
				return checkConstraintViolation(result.Error)
			}
			if result.RowsAffected > 0 {
				stored, created = job, true
				return nil
			}

			var existing model.Job
			findResult := r.db.WithContext(ctx).
				Where("content_hash = ? AND job_status <> ?", job.ContentHash, model.JobStatusFailed).
				Limit(1).
				Find(&existing)
			if findResult.Error != nil {
				return checkConstraintViolation(findResult.Error)
			}
			if findResult.RowsAffected > 0 {
				stored, created = &existing, false
				return nil
			}
			// The conflicting job failed between our insert and select; try again.
		}
		return fmt.Errorf("%w: content hash %s kept changing hands", apperrors.ErrConflict, job.ContentHash)
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "InsertOrGetLive", operation)
	observer.ObserveDbOperationDuration("insert_or_get_live", "job", time.Since(startTime), err)

	if err != nil {
		loggerCtx.Error("Failed to insert or resolve job by content hash",
			zap.String("content_hash", job.ContentHash),
			zap.String("onboarding_id", job.OnboardingID),
			zap.Error(err))
		return nil, false, err
	}
	return stored, created, nil
}

// FindByID finds a job by its primary key
func (r *PostgresRepo) FindByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", jobID).First(&job)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindJobByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "job", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find job by id after retries",
			zap.String("job_id", jobID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &job, nil
}

// FindByOnboarding returns all jobs of an onboarding ordered by created_at DESC
func (r *PostgresRepo) FindByOnboarding(ctx context.Context, onboardingID string) ([]*model.Job, error) {
	var jobs []*model.Job
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("onboarding_id = ?", onboardingID).
			Order("created_at DESC").
			Find(&jobs)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindJobsByOnboarding", operation)
	observer.ObserveDbOperationDuration("find_by_onboarding", "job", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find jobs by onboarding after retries",
			zap.String("onboarding_id", onboardingID),
			zap.Error(findErr))
		return nil, findErr
	}
	if jobs == nil { // Ensure empty slice is returned, not nil
		return []*model.Job{}, nil
	}
	return jobs, nil
}

// Transition writes the mutable columns of job guarded by the expected current status.
// Zero affected rows means another worker moved the job first and is reported as ErrConflict.
func (r *PostgresRepo) Transition(ctx context.Context, job *model.Job, from model.JobStatus) error {
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = utils.Now()
	}

	updates := map[string]interface{}{
		"job_status":           job.Status,
		"retry_count":          job.RetryCount,
		"extraction_results":   job.ExtractionResults,
		"verification_results": job.VerificationResults,
		"confidence_score":     job.ConfidenceScore,
		"error_message":        job.ErrorMessage,
		"started_at":           job.StartedAt,
		"completed_at":         job.CompletedAt,
		"updated_at":           job.UpdatedAt,
	}

	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.Job{}).
			Where("id = ? AND job_status = ?", job.ID, from).
			Updates(updates)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: job %s is no longer %s", apperrors.ErrConflict, job.ID, from)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "TransitionJob", operation)
	observer.ObserveDbOperationDuration("transition", "job", time.Since(startTime), err)

	if err != nil && !errors.Is(err, apperrors.ErrConflict) {
		logger.FromContext(ctx).Error("Failed to transition job",
			zap.String("job_id", job.ID),
			zap.String("from", string(from)),
			zap.String("to", string(job.Status)),
			zap.Error(err))
	}
	return err
}

// FindStale returns jobs in status whose updated_at is older than updatedBefore, oldest first
func (r *PostgresRepo) FindStale(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.Job, error) {
	var jobs []*model.Job
	operation := func() error {
		q := r.db.WithContext(ctx).
			Where("job_status = ? AND updated_at < ?", status, updatedBefore).
			Order("updated_at ASC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		if result := q.Find(&jobs); result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindStaleJobs", operation)
	observer.ObserveDbOperationDuration("find_stale", "job", time.Since(startTime), findErr)

	if findErr != nil {
		return nil, findErr
	}
	if jobs == nil {
		return []*model.Job{}, nil
	}
	return jobs, nil
}
