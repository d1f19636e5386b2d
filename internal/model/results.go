package model

import (
	"fmt"
	"math"
)

// DefaultExtractionLanguage is recorded when the OCR service omits a language
const DefaultExtractionLanguage = "eng"

// ExtractionResult is the OCR output stored on a job
type ExtractionResult struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time"`
	Language       string  `json:"language"`
}

// IdentityResult is returned by the identity authority
type IdentityResult struct {
	ExtractedNumber string `json:"extracted_number"`
	IDType          string `json:"id_type"`
	SubjectName     string `json:"subject_name,omitempty"`
}

// BiometricResult is returned by the face and liveness service
type BiometricResult struct {
	FaceDetected     bool `json:"face_detected"`
	FaceCount        int  `json:"face_count"`
	LivenessDetected bool `json:"liveness_detected"`
}

// BankAccountResult is returned by the bank account oracle
type BankAccountResult struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
}

// SupportingResult records the outcome of a supporting document check
type SupportingResult struct {
	DocumentSubtype  string `json:"document_subtype,omitempty"`
	ValidationPassed bool   `json:"validation_passed"`
}

// VerificationResult is a closed set of result shapes keyed by Kind.
// Exactly one of the variant pointers matching Kind is set.
type VerificationResult struct {
	Kind            DocumentCategory   `json:"kind"`
	Verified        bool               `json:"verified"`
	ConfidenceScore int                `json:"confidence_score"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	Identity        *IdentityResult    `json:"identity,omitempty"`
	Biometric       *BiometricResult   `json:"biometric,omitempty"`
	BankAccount     *BankAccountResult `json:"bank_account,omitempty"`
	Supporting      *SupportingResult  `json:"supporting,omitempty"`
}

// Validate checks the variant matches Kind
func (r *VerificationResult) Validate() error {
	set := 0
	for _, present := range []bool{r.Identity != nil, r.Biometric != nil, r.BankAccount != nil, r.Supporting != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("verification result must carry exactly one variant, got %d", set)
	}

	var ok bool
	switch r.Kind {
	case CategoryIdentity:
		ok = r.Identity != nil
	case CategoryBiometric:
		ok = r.Biometric != nil
	case CategoryBank:
		ok = r.BankAccount != nil
	case CategorySupporting:
		ok = r.Supporting != nil
	}
	if !ok {
		return fmt.Errorf("verification result kind %q does not match its variant", r.Kind)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 100 {
		return fmt.Errorf("confidence score %d out of range", r.ConfidenceScore)
	}
	return nil
}

// ClampConfidence rounds a raw oracle confidence and bounds it to 0..100
func ClampConfidence(raw float64) int {
	switch {
	case math.IsNaN(raw), raw < 0:
		return 0
	case raw > 100:
		return 100
	default:
		return int(raw + 0.5)
	}
}
