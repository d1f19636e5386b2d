package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// Aggregator folds job outcomes into the onboarding record
type Aggregator struct {
	onboardings storage.OnboardingRepo
	notifier    StatusNotifier
	logger      *zap.Logger
}

// NewAggregator creates an Aggregator. notifier may be nil.
func NewAggregator(onboardings storage.OnboardingRepo, notifier StatusNotifier) *Aggregator {
	return &Aggregator{
		onboardings: onboardings,
		notifier:    notifier,
		logger:      logger.Log.Named("aggregator"),
	}
}

// Recompute derives the onboarding's verified flags, bank status and rollup from its
// current jobs inside one locked transaction. It is idempotent. A missing onboarding row
// is logged and yields a nil outcome.
func (a *Aggregator) Recompute(ctx context.Context, onboardingID string) (*storage.RollupOutcome, error) {
	log := logger.FromContextOr(ctx, a.logger)

	out, err := a.onboardings.Recompute(ctx, onboardingID, func(o *model.Onboarding, jobs []*model.Job) bool {
		return o.ApplyJobs(jobs)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Warn("Onboarding record not found, skipping aggregation", zap.String("onboarding_id", onboardingID))
			return nil, nil
		}
		return nil, err
	}

	current := out.Onboarding.DocumentProcessingStatus
	if !out.Changed || out.Previous == current {
		return out, nil
	}

	observer.IncRollupChange(out.Previous, current)
	log.Info("Onboarding document status changed",
		zap.String("onboarding_id", onboardingID),
		zap.String("previous", string(out.Previous)),
		zap.String("current", string(current)))

	if a.notifier != nil {
		evt := model.OnboardingStatusChanged{
			OnboardingID: onboardingID,
			Previous:     out.Previous,
			Current:      current,
			At:           utils.Now(),
		}
		if err := a.notifier.OnboardingStatusChanged(ctx, evt); err != nil {
			log.Warn("Failed to publish onboarding status change", zap.Error(err))
		}
	}
	return out, nil
}
