package storage

import (
	"context"
	"time"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
)

// JobRepo defines the interface for document processing job persistence
type JobRepo interface {
	// InsertOrGetLive inserts job unless a live or completed job already holds its content hash.
	// It returns the stored job and whether it was newly created.
	InsertOrGetLive(ctx context.Context, job *model.Job) (*model.Job, bool, error)
	FindByID(ctx context.Context, jobID string) (*model.Job, error)
	// FindByOnboarding returns every job for an onboarding, newest first.
	FindByOnboarding(ctx context.Context, onboardingID string) ([]*model.Job, error)
	// Transition persists job only if the stored row is still in state from.
	Transition(ctx context.Context, job *model.Job, from model.JobStatus) error
	FindStale(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.Job, error)
	Close(ctx context.Context) error
}

// RollupFunc mutates the locked onboarding from its current jobs and reports whether it changed
type RollupFunc func(onboarding *model.Onboarding, jobs []*model.Job) bool

// RollupOutcome describes one aggregate recomputation
type RollupOutcome struct {
	Onboarding *model.Onboarding
	Previous   model.ProcessingStatus
	Changed    bool
}

// OnboardingRepo defines the interface for the onboarding aggregate fields owned by this service
type OnboardingRepo interface {
	FindOnboarding(ctx context.Context, onboardingID string) (*model.Onboarding, error)
	// Recompute locks the onboarding row, loads its jobs and applies fn in one transaction.
	Recompute(ctx context.Context, onboardingID string, fn RollupFunc) (*RollupOutcome, error)
	Close(ctx context.Context) error
}

// HealthChecker is implemented by stores that can report readiness
type HealthChecker interface {
	Ping(ctx context.Context) error
}
