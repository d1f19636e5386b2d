package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// init ensures gofakeit is seeded.
func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewJob creates a new queued Job instance with default fake data.
func NewJob(overrideDefaults ...*Job) *Job {
	created := utils.Now().Add(-time.Duration(gofakeit.Number(1, 120)) * time.Minute)
	base := &Job{
		ID:           gofakeit.UUID(),
		OnboardingID: gofakeit.UUID(),
		DocumentType: KnownDocumentTypes()[gofakeit.Number(0, len(KnownDocumentTypes())-1)],
		DocumentURL:  gofakeit.URL() + "/" + gofakeit.LetterN(12) + ".jpg",
		ContentHash:  utils.SHA256Hex([]byte(gofakeit.UUID())),
		Status:       JobStatusQueued,
		MaxRetries:   DefaultMaxRetries,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.OnboardingID != "" {
			base.OnboardingID = ovr.OnboardingID
		}
		if ovr.DocumentType != "" {
			base.DocumentType = ovr.DocumentType
		}
		if ovr.DocumentURL != "" {
			base.DocumentURL = ovr.DocumentURL
		}
		if ovr.ContentHash != "" {
			base.ContentHash = ovr.ContentHash
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.MaxRetries != 0 {
			base.MaxRetries = ovr.MaxRetries
		}
		base.RetryCount = ovr.RetryCount
		// Allow overriding with nil for pointer types by direct assignment
		base.DocumentSubtype = ovr.DocumentSubtype
		base.OriginalFilename = ovr.OriginalFilename
		base.ConfidenceScore = ovr.ConfidenceScore
		base.ErrorMessage = ovr.ErrorMessage
		base.StartedAt = ovr.StartedAt
		base.CompletedAt = ovr.CompletedAt
		base.ExtractionResults = ovr.ExtractionResults
		base.VerificationResults = ovr.VerificationResults

		if !ovr.CreatedAt.IsZero() {
			base.CreatedAt = ovr.CreatedAt
		}
		if !ovr.UpdatedAt.IsZero() {
			base.UpdatedAt = ovr.UpdatedAt
		}
	}
	return base
}

// NewCompletedJob creates a completed, verified job of the given type.
func NewCompletedJob(onboardingID string, docType DocumentType) *Job {
	now := utils.Now()
	score := gofakeit.Number(60, 100)
	verification := NewVerificationResult(docType.Category(), true)
	verification.ConfidenceScore = score
	return NewJob(&Job{
		OnboardingID:        onboardingID,
		DocumentType:        docType,
		Status:              JobStatusCompleted,
		ConfidenceScore:     &score,
		StartedAt:           &now,
		CompletedAt:         &now,
		ExtractionResults:   datatypes.NewJSONType(NewExtractionResult()),
		VerificationResults: datatypes.NewJSONType(verification),
	})
}

// NewExtractionResult creates OCR output with fake text.
func NewExtractionResult() *ExtractionResult {
	return &ExtractionResult{
		Text:           gofakeit.Sentence(12),
		Confidence:     gofakeit.Float64Range(50, 99),
		ProcessingTime: gofakeit.Float64Range(0.1, 4),
		Language:       DefaultExtractionLanguage,
	}
}

// NewVerificationResult creates a result carrying the variant for kind.
func NewVerificationResult(kind DocumentCategory, verified bool) *VerificationResult {
	r := &VerificationResult{
		Kind:            kind,
		Verified:        verified,
		ConfidenceScore: gofakeit.Number(0, 100),
	}
	switch kind {
	case CategoryIdentity:
		r.Identity = &IdentityResult{
			ExtractedNumber: gofakeit.DigitN(11),
			IDType:          string(DocumentTypeIdentityPrimary),
			SubjectName:     gofakeit.Name(),
		}
	case CategoryBiometric:
		r.Biometric = &BiometricResult{FaceDetected: verified, FaceCount: 1, LivenessDetected: verified}
	case CategoryBank:
		r.BankAccount = &BankAccountResult{
			AccountNumber: gofakeit.DigitN(10),
			AccountName:   gofakeit.Name(),
			BankName:      gofakeit.Company(),
		}
	default:
		r.Kind = CategorySupporting
		r.Supporting = &SupportingResult{ValidationPassed: verified}
	}
	return r
}

// NewOnboarding creates a pending onboarding aggregate.
func NewOnboarding(overrideDefaults ...*Onboarding) *Onboarding {
	base := &Onboarding{
		ID:                       gofakeit.UUID(),
		BankVerificationStatus:   BankVerificationPending,
		DocumentProcessingStatus: ProcessingPending,
		LastUpdatedAt:            utils.Now().Add(-time.Duration(gofakeit.Number(1, 48)) * time.Hour),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		base.NINVerified = ovr.NINVerified
		base.BVNVerified = ovr.BVNVerified
		base.IDDocumentVerified = ovr.IDDocumentVerified
		base.SelfieVerified = ovr.SelfieVerified
		if ovr.BankVerificationStatus != "" {
			base.BankVerificationStatus = ovr.BankVerificationStatus
		}
		if ovr.DocumentProcessingStatus != "" {
			base.DocumentProcessingStatus = ovr.DocumentProcessingStatus
		}
		if !ovr.LastUpdatedAt.IsZero() {
			base.LastUpdatedAt = ovr.LastUpdatedAt
		}
	}
	return base
}

// NewSubmitRequest creates a valid submission for a known document type.
func NewSubmitRequest(overrideDefaults ...*SubmitRequest) *SubmitRequest {
	base := &SubmitRequest{
		OnboardingID: gofakeit.UUID(),
		DocumentType: string(KnownDocumentTypes()[gofakeit.Number(0, len(KnownDocumentTypes())-1)]),
		DocumentURL:  "https://" + gofakeit.DomainName() + "/uploads/" + gofakeit.LetterN(16) + ".jpg",
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.OnboardingID != "" {
			base.OnboardingID = ovr.OnboardingID
		}
		if ovr.DocumentType != "" {
			base.DocumentType = ovr.DocumentType
		}
		if ovr.DocumentURL != "" {
			base.DocumentURL = ovr.DocumentURL
		}
		base.OriginalFilename = ovr.OriginalFilename
		base.ContentHash = ovr.ContentHash
	}
	return base
}
