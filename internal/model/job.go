package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
)

// JobStatus is a node of the job state graph
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// DefaultMaxRetries is copied onto a job when configuration does not override it
const DefaultMaxRetries = 3

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
	JobStatusFailed:     {JobStatusRetrying},
	JobStatusRetrying:   {JobStatusQueued},
}

// CanTransitionTo reports whether s -> next is an edge of the state graph
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsLive reports whether a job in this state may still run
func (s JobStatus) IsLive() bool {
	return s == JobStatusQueued || s == JobStatusProcessing || s == JobStatusRetrying
}

// IsSettled reports whether a persisted job in this state will not run again
func (s JobStatus) IsSettled() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one verification attempt for one document instance
type Job struct {
	ID                  string                                  `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	OnboardingID        string                                  `json:"onboarding_id" gorm:"column:onboarding_id;type:uuid;index"`
	DocumentType        DocumentType                            `json:"document_type" gorm:"column:document_type"`
	DocumentSubtype     *string                                 `json:"document_subtype,omitempty" gorm:"column:document_subtype"`
	DocumentURL         string                                  `json:"document_url" gorm:"column:document_url"`
	OriginalFilename    *string                                 `json:"original_filename,omitempty" gorm:"column:original_filename"`
	ContentHash         string                                  `json:"content_hash" gorm:"column:content_hash"`
	Status              JobStatus                               `json:"job_status" gorm:"column:job_status"`
	RetryCount          int                                     `json:"retry_count" gorm:"column:retry_count"`
	MaxRetries          int                                     `json:"max_retries" gorm:"column:max_retries"`
	ExtractionResults   datatypes.JSONType[*ExtractionResult]   `json:"extraction_results" gorm:"column:extraction_results;type:jsonb"`
	VerificationResults datatypes.JSONType[*VerificationResult] `json:"verification_results" gorm:"column:verification_results;type:jsonb"`
	ConfidenceScore     *int                                    `json:"confidence_score,omitempty" gorm:"column:confidence_score"`
	ErrorMessage        *string                                 `json:"error_message,omitempty" gorm:"column:error_message"`
	CreatedAt           time.Time                               `json:"created_at" gorm:"column:created_at"`
	StartedAt           *time.Time                              `json:"started_at,omitempty" gorm:"column:started_at"`
	CompletedAt         *time.Time                              `json:"completed_at,omitempty" gorm:"column:completed_at"`
	UpdatedAt           time.Time                               `json:"updated_at" gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (Job) TableName(namer schema.Namer) string {
	return namer.TableName("document_processing_jobs")
}

// Extraction returns the stored OCR output, or nil
func (j *Job) Extraction() *ExtractionResult {
	return j.ExtractionResults.Data()
}

// Verification returns the stored verification outcome, or nil
func (j *Job) Verification() *VerificationResult {
	return j.VerificationResults.Data()
}

// IsVerified reports whether the job completed with a positive verification
func (j *Job) IsVerified() bool {
	v := j.Verification()
	return j.Status == JobStatusCompleted && v != nil && v.Verified
}

func (j *Job) transition(next JobStatus) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: job %s %s -> %s", apperrors.ErrInvalidTransition, j.ID, j.Status, next)
	}
	j.Status = next
	return nil
}

// Claim moves a queued job to processing
func (j *Job) Claim(now time.Time) error {
	if err := j.transition(JobStatusProcessing); err != nil {
		return err
	}
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// Requeue moves a retrying job back to queued so it can be claimed again
func (j *Job) Requeue(now time.Time) error {
	if err := j.transition(JobStatusQueued); err != nil {
		return err
	}
	j.UpdatedAt = now
	return nil
}

// Complete records a verified or successfully processed document
func (j *Job) Complete(now time.Time, extraction *ExtractionResult, verification *VerificationResult) error {
	if err := j.transition(JobStatusCompleted); err != nil {
		return err
	}
	j.setResults(extraction, verification)
	j.ErrorMessage = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail records a terminal failure. retry_count is left unchanged.
func (j *Job) Fail(now time.Time, reason string, extraction *ExtractionResult, verification *VerificationResult) error {
	if err := j.transition(JobStatusFailed); err != nil {
		return err
	}
	j.setResults(extraction, verification)
	j.ErrorMessage = &reason
	j.CompletedAt = nil
	j.UpdatedAt = now
	return nil
}

// FailTransient walks processing -> failed -> retrying and counts the attempt.
// When the retry budget is spent the job stays failed and false is returned.
func (j *Job) FailTransient(now time.Time, reason string) (bool, error) {
	if err := j.transition(JobStatusFailed); err != nil {
		return false, err
	}
	j.ErrorMessage = &reason
	j.CompletedAt = nil
	j.UpdatedAt = now

	next := j.RetryCount + 1
	if next >= j.MaxRetries {
		j.RetryCount = j.MaxRetries
		return false, nil
	}
	if err := j.transition(JobStatusRetrying); err != nil {
		return false, err
	}
	j.RetryCount = next
	return true, nil
}

func (j *Job) setResults(extraction *ExtractionResult, verification *VerificationResult) {
	j.ExtractionResults = datatypes.NewJSONType(extraction)
	j.VerificationResults = datatypes.NewJSONType(verification)
	if verification != nil {
		score := verification.ConfidenceScore
		j.ConfidenceScore = &score
	} else if extraction != nil {
		score := ClampConfidence(extraction.Confidence)
		j.ConfidenceScore = &score
	}
}

// Clone returns a copy that shares no pointers with j
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.DocumentSubtype = clonePtr(j.DocumentSubtype)
	c.OriginalFilename = clonePtr(j.OriginalFilename)
	c.ConfidenceScore = clonePtr(j.ConfidenceScore)
	c.ErrorMessage = clonePtr(j.ErrorMessage)
	c.StartedAt = clonePtr(j.StartedAt)
	c.CompletedAt = clonePtr(j.CompletedAt)
	if e := j.Extraction(); e != nil {
		ec := *e
		c.ExtractionResults = datatypes.NewJSONType(&ec)
	}
	if v := j.Verification(); v != nil {
		c.VerificationResults = datatypes.NewJSONType(cloneVerification(v))
	}
	return &c
}

func cloneVerification(v *VerificationResult) *VerificationResult {
	c := *v
	c.Identity = clonePtr(v.Identity)
	c.Biometric = clonePtr(v.Biometric)
	c.BankAccount = clonePtr(v.BankAccount)
	c.Supporting = clonePtr(v.Supporting)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
