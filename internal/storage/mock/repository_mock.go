package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
)

// --- JobRepo Mock ---

// JobRepoMock mocks the JobRepo interface
type JobRepoMock struct {
	mock.Mock
}

// InsertOrGetLive mocks the InsertOrGetLive method
func (m *JobRepoMock) InsertOrGetLive(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	args := m.Called(ctx, job)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Job), args.Bool(1), args.Error(2)
}

// FindByID mocks the FindByID method
func (m *JobRepoMock) FindByID(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Job), args.Error(1)
}

// FindByOnboarding mocks the FindByOnboarding method
func (m *JobRepoMock) FindByOnboarding(ctx context.Context, onboardingID string) ([]*model.Job, error) {
	args := m.Called(ctx, onboardingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

// Transition mocks the Transition method
func (m *JobRepoMock) Transition(ctx context.Context, job *model.Job, from model.JobStatus) error {
	args := m.Called(ctx, job, from)
	return args.Error(0)
}

// FindStale mocks the FindStale method
func (m *JobRepoMock) FindStale(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.Job, error) {
	args := m.Called(ctx, status, updatedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Job), args.Error(1)
}

// Close mocks the Close method
func (m *JobRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- OnboardingRepo Mock ---

// OnboardingRepoMock mocks the OnboardingRepo interface
type OnboardingRepoMock struct {
	mock.Mock
}

// FindOnboarding mocks the FindOnboarding method
func (m *OnboardingRepoMock) FindOnboarding(ctx context.Context, onboardingID string) (*model.Onboarding, error) {
	args := m.Called(ctx, onboardingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Onboarding), args.Error(1)
}

// Recompute mocks the Recompute method
func (m *OnboardingRepoMock) Recompute(ctx context.Context, onboardingID string, fn storage.RollupFunc) (*storage.RollupOutcome, error) {
	args := m.Called(ctx, onboardingID, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.RollupOutcome), args.Error(1)
}

// Close mocks the Close method
func (m *OnboardingRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var (
	_ storage.JobRepo        = (*JobRepoMock)(nil)
	_ storage.OnboardingRepo = (*OnboardingRepoMock)(nil)
)
