package model

import "time"

// SubmitRequest is a document reference handed to the pipeline by the onboarding flow
type SubmitRequest struct {
	OnboardingID     string  `json:"onboarding_id" validate:"required,uuid"`
	DocumentType     string  `json:"document_type" validate:"required,max=64"`
	DocumentURL      string  `json:"document_url" validate:"required,url,max=2048"`
	OriginalFilename *string `json:"original_filename,omitempty" validate:"omitempty,max=255"`
	ContentHash      *string `json:"content_hash,omitempty" validate:"omitempty,len=64,hexadecimal"`
}

// JobMessage is published on the jobs subject to hand a job to a worker
type JobMessage struct {
	JobID        string `json:"job_id"`
	OnboardingID string `json:"onboarding_id"`
	RetryCount   int    `json:"retry_count"`
}

// OnboardingStatusChanged is emitted when an onboarding rollup moves
type OnboardingStatusChanged struct {
	OnboardingID string           `json:"onboarding_id"`
	Previous     ProcessingStatus `json:"previous"`
	Current      ProcessingStatus `json:"current"`
	At           time.Time        `json:"at"`
}

// DocumentFailed is emitted when a job settles in failed
type DocumentFailed struct {
	JobID        string       `json:"job_id"`
	OnboardingID string       `json:"onboarding_id"`
	DocumentType DocumentType `json:"document_type"`
	ErrorMessage string       `json:"error_message"`
	RetryCount   int          `json:"retry_count"`
	At           time.Time    `json:"at"`
}
