package storage

import (
	"context"
	"time"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
)

// JobRepoAdapter adapts the PostgresRepo to the JobRepo interface
type JobRepoAdapter struct {
	postgres *PostgresRepo
}

// NewJobRepoAdapter creates a new job repository adapter
func NewJobRepoAdapter(postgres *PostgresRepo) JobRepo {
	return &JobRepoAdapter{postgres: postgres}
}

func (a *JobRepoAdapter) InsertOrGetLive(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	return a.postgres.InsertOrGetLive(ctx, job)
}

func (a *JobRepoAdapter) FindByID(ctx context.Context, jobID string) (*model.Job, error) {
	return a.postgres.FindByID(ctx, jobID)
}

func (a *JobRepoAdapter) FindByOnboarding(ctx context.Context, onboardingID string) ([]*model.Job, error) {
	return a.postgres.FindByOnboarding(ctx, onboardingID)
}

func (a *JobRepoAdapter) Transition(ctx context.Context, job *model.Job, from model.JobStatus) error {
	return a.postgres.Transition(ctx, job, from)
}

func (a *JobRepoAdapter) FindStale(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.Job, error) {
	return a.postgres.FindStale(ctx, status, updatedBefore, limit)
}

func (a *JobRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// OnboardingRepoAdapter adapts the PostgresRepo to the OnboardingRepo interface
type OnboardingRepoAdapter struct {
	postgres *PostgresRepo
}

// NewOnboardingRepoAdapter creates a new onboarding repository adapter
func NewOnboardingRepoAdapter(postgres *PostgresRepo) OnboardingRepo {
	return &OnboardingRepoAdapter{postgres: postgres}
}

func (a *OnboardingRepoAdapter) FindOnboarding(ctx context.Context, onboardingID string) (*model.Onboarding, error) {
	return a.postgres.FindOnboarding(ctx, onboardingID)
}

func (a *OnboardingRepoAdapter) Recompute(ctx context.Context, onboardingID string, fn RollupFunc) (*RollupOutcome, error) {
	return a.postgres.Recompute(ctx, onboardingID, fn)
}

// Close is a no-op; the shared connection is closed through the JobRepo.
func (a *OnboardingRepoAdapter) Close(ctx context.Context) error {
	return nil
}
