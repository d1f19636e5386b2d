//go:build integration

package integration_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// PostgresRepoTestSuite exercises the job and onboarding repository against a real database.
type PostgresRepoTestSuite struct {
	BaseIntegrationSuite
}

func TestPostgresRepoSuite(t *testing.T) {
	suite.Run(t, new(PostgresRepoTestSuite))
}

func (s *PostgresRepoTestSuite) TestInsertOrGetLive_DeduplicatesOnFingerprint() {
	o := s.CreateOnboarding()
	hash := utils.SHA256Hex([]byte("same document"))

	first, created, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{OnboardingID: o.ID, ContentHash: hash}))
	s.Require().NoError(err)
	s.True(created)

	second, created, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{OnboardingID: o.ID, ContentHash: hash}))
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)

	jobs, err := s.Repo.FindByOnboarding(s.Ctx, o.ID)
	s.Require().NoError(err)
	s.Len(jobs, 1)
}

func (s *PostgresRepoTestSuite) TestInsertOrGetLive_ConcurrentInsertsCreateOneRow() {
	o := s.CreateOnboarding()
	hash := utils.SHA256Hex([]byte("raced document"))

	const workers = 8
	ids := make([]string, workers)
	var createdCount int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, created, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{OnboardingID: o.ID, ContentHash: hash}))
			s.NoError(err)
			if job != nil {
				ids[i] = job.ID
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, createdCount)
	for _, id := range ids {
		s.Equal(ids[0], id)
	}
}

func (s *PostgresRepoTestSuite) TestInsertOrGetLive_FailedJobAllowsResubmission() {
	o := s.CreateOnboarding()
	hash := utils.SHA256Hex([]byte("rejected document"))

	first, _, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{OnboardingID: o.ID, ContentHash: hash}))
	s.Require().NoError(err)

	msg := "unreadable"
	first.Status = model.JobStatusFailed
	first.ErrorMessage = &msg
	first.UpdatedAt = utils.Now()
	s.Require().NoError(s.Repo.Transition(s.Ctx, first, model.JobStatusQueued))

	second, created, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{OnboardingID: o.ID, ContentHash: hash}))
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(first.ID, second.ID)
}

func (s *PostgresRepoTestSuite) TestTransition_GuardsOnCurrentStatus() {
	o := s.CreateOnboarding()
	job, _, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{OnboardingID: o.ID}))
	s.Require().NoError(err)

	now := utils.Now()
	job.Status = model.JobStatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	s.Require().NoError(s.Repo.Transition(s.Ctx, job, model.JobStatusQueued))

	// A second claim from the same source status loses.
	err = s.Repo.Transition(s.Ctx, job, model.JobStatusQueued)
	s.True(errors.Is(err, apperrors.ErrConflict), "got %v", err)

	stored, err := s.Repo.FindByID(s.Ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(model.JobStatusProcessing, stored.Status)
	s.Require().NotNil(stored.StartedAt)
}

func (s *PostgresRepoTestSuite) TestTransition_RejectsCompletedWithoutTimestamp() {
	o := s.CreateOnboarding()
	job, _, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{OnboardingID: o.ID}))
	s.Require().NoError(err)

	job.Status = model.JobStatusCompleted
	job.CompletedAt = nil
	job.UpdatedAt = utils.Now()
	err = s.Repo.Transition(s.Ctx, job, model.JobStatusQueued)
	s.Error(err)
	s.False(errors.Is(err, apperrors.ErrConflict))
}

func (s *PostgresRepoTestSuite) TestFindStale_OldestFirst() {
	o := s.CreateOnboarding()
	now := utils.Now()
	for _, age := range []time.Duration{time.Hour, 3 * time.Hour, time.Minute} {
		started := now.Add(-age)
		_, _, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewJob(&model.Job{
			OnboardingID: o.ID,
			Status:       model.JobStatusProcessing,
			StartedAt:    &started,
			UpdatedAt:    started,
		}))
		s.Require().NoError(err)
	}

	stale, err := s.Repo.FindStale(s.Ctx, model.JobStatusProcessing, now.Add(-30*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(stale, 2)
	s.True(stale[0].UpdatedAt.Before(stale[1].UpdatedAt))

	limited, err := s.Repo.FindStale(s.Ctx, model.JobStatusProcessing, now.Add(-30*time.Minute), 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *PostgresRepoTestSuite) TestRecompute_WritesRollupUnderLock() {
	o := s.CreateOnboarding()
	_, _, err := s.Repo.InsertOrGetLive(s.Ctx, model.NewCompletedJob(o.ID, model.DocumentTypeSelfie))
	s.Require().NoError(err)

	outcome, err := s.Repo.Recompute(s.Ctx, o.ID, func(onb *model.Onboarding, jobs []*model.Job) bool {
		s.Len(jobs, 1)
		onb.SelfieVerified = true
		onb.DocumentProcessingStatus = model.ProcessingCompleted
		return true
	})
	s.Require().NoError(err)
	s.True(outcome.Changed)
	s.Equal(model.ProcessingPending, outcome.Previous)

	stored, err := s.Repo.FindOnboarding(s.Ctx, o.ID)
	s.Require().NoError(err)
	s.True(stored.SelfieVerified)
	s.Equal(model.ProcessingCompleted, stored.DocumentProcessingStatus)
}

func (s *PostgresRepoTestSuite) TestRecompute_UnknownOnboarding() {
	_, err := s.Repo.Recompute(s.Ctx, "0b9a5f5c-1d4e-4b7a-9c55-3f0d7c9d2e11", func(*model.Onboarding, []*model.Job) bool {
		s.Fail("rollup must not run")
		return false
	})
	s.True(errors.Is(err, apperrors.ErrNotFound), "got %v", err)
}

func (s *PostgresRepoTestSuite) TestPing() {
	s.NoError(s.Repo.Ping(s.Ctx))
}
