package usecase

import (
	"context"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/verification"
)

// JobPublisher hands a queued job to the worker stream
type JobPublisher interface {
	PublishJob(ctx context.Context, msg model.JobMessage) error
}

// StatusNotifier emits onboarding events toward the marketplace backend
type StatusNotifier interface {
	OnboardingStatusChanged(ctx context.Context, evt model.OnboardingStatusChanged) error
	DocumentFailed(ctx context.Context, evt model.DocumentFailed) error
}

// DocumentVerifier runs the verification strategy for a claimed job
type DocumentVerifier interface {
	Dispatch(ctx context.Context, job *model.Job) verification.Outcome
}

var _ DocumentVerifier = (*verification.Dispatcher)(nil)
