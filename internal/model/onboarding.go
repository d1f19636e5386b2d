package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// BankVerificationStatus values for the onboarding aggregate
type BankVerificationStatus string

const (
	BankVerificationPending  BankVerificationStatus = "pending"
	BankVerificationVerified BankVerificationStatus = "verified"
	BankVerificationFailed   BankVerificationStatus = "failed"
)

// ProcessingStatus is the rollup over every job of one onboarding
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// Onboarding holds the landlord_onboarding columns this service reads and writes.
// The table itself is owned by the marketplace backend.
type Onboarding struct {
	ID                       string                 `json:"id" gorm:"column:id;primaryKey;type:uuid"`
	NINVerified              bool                   `json:"nin_verified" gorm:"column:nin_verified"`
	BVNVerified              bool                   `json:"bvn_verified" gorm:"column:bvn_verified"`
	IDDocumentVerified       bool                   `json:"id_document_verified" gorm:"column:id_document_verified"`
	SelfieVerified           bool                   `json:"selfie_verified" gorm:"column:selfie_verified"`
	BankVerificationStatus   BankVerificationStatus `json:"bank_verification_status" gorm:"column:bank_verification_status"`
	DocumentProcessingStatus ProcessingStatus       `json:"document_processing_status" gorm:"column:document_processing_status"`
	LastUpdatedAt            time.Time              `json:"last_updated_at" gorm:"column:last_updated_at"`
}

// TableName specifies the table name for GORM, respecting the Namer.
func (Onboarding) TableName(namer schema.Namer) string {
	return namer.TableName("landlord_onboarding")
}

// ApplyJobs derives the aggregate fields from the current job rows and reports whether anything changed.
// Verified flags are only ever raised and bank status only moves when a settled bank job exists.
func (o *Onboarding) ApplyJobs(jobs []*Job) bool {
	changed := false
	raise := func(flag *bool) {
		if !*flag {
			*flag = true
			changed = true
		}
	}

	bankCompleted, bankFailed := false, false
	for _, j := range jobs {
		if j.DocumentType == DocumentTypeBankStatement {
			switch j.Status {
			case JobStatusCompleted:
				bankCompleted = true
			case JobStatusFailed:
				bankFailed = true
			}
		}
		if !j.IsVerified() {
			continue
		}
		switch j.DocumentType {
		case DocumentTypeIdentityPrimary:
			raise(&o.NINVerified)
		case DocumentTypeIdentitySecondary:
			raise(&o.BVNVerified)
		case DocumentTypeIDDocument:
			raise(&o.IDDocumentVerified)
		case DocumentTypeSelfie:
			raise(&o.SelfieVerified)
		}
	}

	bank := o.BankVerificationStatus
	switch {
	case bankCompleted:
		bank = BankVerificationVerified
	case bankFailed:
		bank = BankVerificationFailed
	}
	if bank != o.BankVerificationStatus {
		o.BankVerificationStatus = bank
		changed = true
	}

	if rollup := ComputeRollup(jobs); rollup != o.DocumentProcessingStatus {
		o.DocumentProcessingStatus = rollup
		changed = true
	}
	return changed
}

// ComputeRollup summarises job states for one onboarding
func ComputeRollup(jobs []*Job) ProcessingStatus {
	if len(jobs) == 0 {
		return ProcessingPending
	}
	completed, failed, live := 0, 0, 0
	for _, j := range jobs {
		switch {
		case j.Status == JobStatusCompleted:
			completed++
		case j.Status == JobStatusFailed:
			failed++
		case j.Status.IsLive():
			live++
		}
	}
	switch {
	case completed == len(jobs):
		return ProcessingCompleted
	case failed > 0 && live == 0:
		return ProcessingFailed
	default:
		return ProcessingInProgress
	}
}
