package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// --- Onboarding Repository Methods ---

// FindOnboarding loads the aggregate fields of one onboarding
func (r *PostgresRepo) FindOnboarding(ctx context.Context, onboardingID string) (*model.Onboarding, error) {
	var onboarding model.Onboarding
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", onboardingID).First(&onboarding)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindOnboarding", operation)
	observer.ObserveDbOperationDuration("find_by_id", "onboarding", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, findErr
	}
	return &onboarding, nil
}

// Recompute runs fn against the onboarding row locked FOR UPDATE and every job that
// belongs to it, writing the aggregate fields back only when fn reports a change.
func (r *PostgresRepo) Recompute(ctx context.Context, onboardingID string, fn RollupFunc) (*RollupOutcome, error) {
	var outcome *RollupOutcome
	operation := func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var onboarding model.Onboarding
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", onboardingID).
				First(&onboarding).Error; err != nil {
				return checkConstraintViolation(err)
			}

			var jobs []*model.Job
			if err := tx.Where("onboarding_id = ?", onboardingID).
				Order("created_at DESC").
				Find(&jobs).Error; err != nil {
				return checkConstraintViolation(err)
			}

			previous := onboarding.DocumentProcessingStatus
			changed := fn(&onboarding, jobs)
			if changed {
				onboarding.LastUpdatedAt = utils.Now()
				if err := tx.Model(&model.Onboarding{}).
					Where("id = ?", onboardingID).
					Updates(map[string]interface{}{
						"nin_verified":               onboarding.NINVerified,
						"bvn_verified":               onboarding.BVNVerified,
						"id_document_verified":       onboarding.IDDocumentVerified,
						"selfie_verified":            onboarding.SelfieVerified,
						"bank_verification_status":   onboarding.BankVerificationStatus,
						"document_processing_status": onboarding.DocumentProcessingStatus,
						"last_updated_at":            onboarding.LastUpdatedAt,
					}).Error; err != nil {
					return checkConstraintViolation(err)
				}
			}

			outcome = &RollupOutcome{Onboarding: &onboarding, Previous: previous, Changed: changed}
			return nil
		})
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, commitPolicy, "RecomputeOnboarding", operation)
	observer.ObserveDbOperationDuration("recompute", "onboarding", time.Since(startTime), err)

	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to recompute onboarding aggregate",
			zap.String("onboarding_id", onboardingID),
			zap.Error(err))
		return nil, err
	}
	return outcome, nil
}
