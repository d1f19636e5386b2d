package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// Store keeps jobs and onboarding aggregates in memory and is safe for concurrent use.
// It enforces the same one-live-job-per-content-hash rule as the partial unique index.
type Store struct {
	mu          sync.Mutex
	jobs        map[string]*model.Job
	liveByHash  map[string]string
	onboardings map[string]*model.Onboarding
	// AutoCreateOnboardings makes Recompute create missing onboarding rows.
	AutoCreateOnboardings bool
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		jobs:        make(map[string]*model.Job),
		liveByHash:  make(map[string]string),
		onboardings: make(map[string]*model.Onboarding),
	}
}

// InsertOrGetLive stores job unless a non-failed job already holds its content hash.
func (s *Store) InsertOrGetLive(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if holderID, ok := s.liveByHash[job.ContentHash]; ok {
		return s.jobs[holderID].Clone(), false, nil
	}
	if _, exists := s.jobs[job.ID]; exists {
		return nil, false, fmt.Errorf("%w: job %s already exists", apperrors.ErrDuplicate, job.ID)
	}

	now := utils.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	s.jobs[job.ID] = job.Clone()
	s.indexLocked(job)
	return job.Clone(), true, nil
}

// FindByID returns a copy of the job.
func (s *Store) FindByID(ctx context.Context, jobID string) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return job.Clone(), nil
}

// FindByOnboarding returns copies of the onboarding's jobs, newest first.
func (s *Store) FindByOnboarding(ctx context.Context, onboardingID string) ([]*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobsForLocked(onboardingID), nil
}

// Transition replaces the stored job when its status still equals from.
func (s *Store) Transition(ctx context.Context, job *model.Job, from model.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if current.Status != from {
		return fmt.Errorf("%w: job %s is no longer %s", apperrors.ErrConflict, job.ID, from)
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = utils.Now()
	}

	update := job.Clone()
	stored := current.Clone()
	stored.Status = update.Status
	stored.RetryCount = update.RetryCount
	stored.ExtractionResults = update.ExtractionResults
	stored.VerificationResults = update.VerificationResults
	stored.ConfidenceScore = update.ConfidenceScore
	stored.ErrorMessage = update.ErrorMessage
	stored.StartedAt = update.StartedAt
	stored.CompletedAt = update.CompletedAt
	stored.UpdatedAt = update.UpdatedAt

	s.jobs[job.ID] = stored
	s.indexLocked(stored)
	return nil
}

// FindStale returns jobs in status last updated before updatedBefore, oldest first.
func (s *Store) FindStale(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Job
	for _, job := range s.jobs {
		if job.Status == status && job.UpdatedAt.Before(updatedBefore) {
			out = append(out, job.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		return []*model.Job{}, nil
	}
	return out, nil
}

// PutOnboarding stores or replaces an onboarding aggregate.
func (s *Store) PutOnboarding(onboarding *model.Onboarding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *onboarding
	s.onboardings[onboarding.ID] = &c
}

// FindOnboarding returns a copy of the onboarding aggregate.
func (s *Store) FindOnboarding(ctx context.Context, onboardingID string) (*model.Onboarding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.onboardings[onboardingID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *o
	return &c, nil
}

// Recompute applies fn under the store lock, which stands in for the row lock.
func (s *Store) Recompute(ctx context.Context, onboardingID string, fn storage.RollupFunc) (*storage.RollupOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.onboardings[onboardingID]
	if !ok {
		if !s.AutoCreateOnboardings {
			return nil, apperrors.ErrNotFound
		}
		o = &model.Onboarding{
			ID:                       onboardingID,
			BankVerificationStatus:   model.BankVerificationPending,
			DocumentProcessingStatus: model.ProcessingPending,
			LastUpdatedAt:            utils.Now(),
		}
		s.onboardings[onboardingID] = o
	}

	working := *o
	previous := working.DocumentProcessingStatus
	changed := fn(&working, s.jobsForLocked(onboardingID))
	if changed {
		working.LastUpdatedAt = utils.Now()
		stored := working
		s.onboardings[onboardingID] = &stored
	}
	return &storage.RollupOutcome{Onboarding: &working, Previous: previous, Changed: changed}, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// Jobs returns copies of every stored job. Intended for tests.
func (s *Store) Jobs() []*model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	return out
}

func (s *Store) indexLocked(job *model.Job) {
	if job.Status == model.JobStatusFailed {
		if s.liveByHash[job.ContentHash] == job.ID {
			delete(s.liveByHash, job.ContentHash)
		}
		return
	}
	s.liveByHash[job.ContentHash] = job.ID
}

func (s *Store) jobsForLocked(onboardingID string) []*model.Job {
	out := []*model.Job{}
	for _, job := range s.jobs {
		if job.OnboardingID == onboardingID {
			out = append(out, job.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

var (
	_ storage.JobRepo        = (*Store)(nil)
	_ storage.OnboardingRepo = (*Store)(nil)
	_ storage.HealthChecker  = (*Store)(nil)
)
