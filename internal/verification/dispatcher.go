package verification

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/oracle"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

// Extractor runs OCR on a document image
type Extractor interface {
	Extract(ctx context.Context, imageURL string) (*model.ExtractionResult, error)
}

// IdentityOracle verifies identity numbers
type IdentityOracle interface {
	Verify(ctx context.Context, req oracle.IdentityRequest) (*oracle.IdentityResponse, error)
}

// FaceOracle runs face and liveness detection
type FaceOracle interface {
	Detect(ctx context.Context, imageURL string) (*oracle.FaceResponse, error)
}

// BankOracle verifies bank accounts
type BankOracle interface {
	Verify(ctx context.Context, req oracle.BankRequest) (*oracle.BankResponse, error)
}

// Outcome is the result of running a job's strategy. Err is nil only when the document
// verified; otherwise it is a RetryableError or FatalError and the results hold whatever
// was produced before the failure.
type Outcome struct {
	Extraction   *model.ExtractionResult
	Verification *model.VerificationResult
	Err          error
}

// Dispatcher routes a job to the verification strategy for its document type
type Dispatcher struct {
	extractor   Extractor
	identity    IdentityOracle
	face        FaceOracle
	bank        BankOracle
	identityRe  *regexp.Regexp
	identityLen int
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher. identityDigits <= 0 uses DefaultIdentityDigits.
func NewDispatcher(extractor Extractor, identity IdentityOracle, face FaceOracle, bank BankOracle, identityDigits int) *Dispatcher {
	if identityDigits <= 0 {
		identityDigits = DefaultIdentityDigits
	}
	return &Dispatcher{
		extractor:   extractor,
		identity:    identity,
		face:        face,
		bank:        bank,
		identityRe:  identityPattern(identityDigits),
		identityLen: identityDigits,
		logger:      logger.Log.Named("dispatcher"),
	}
}

// Dispatch runs the strategy for job.DocumentType
func (d *Dispatcher) Dispatch(ctx context.Context, job *model.Job) Outcome {
	switch job.DocumentType.Category() {
	case model.CategoryIdentity:
		return d.verifyIdentity(ctx, job)
	case model.CategoryBiometric:
		return d.verifySelfie(ctx, job)
	case model.CategoryBank:
		return d.verifyBankStatement(ctx, job)
	case model.CategorySupporting:
		return d.verifySupporting(ctx, job)
	default:
		return Outcome{Err: UnknownTypeError(job.DocumentType)}
	}
}

// UnknownTypeError is the terminal classification error for an unsupported document type
func UnknownTypeError(t model.DocumentType) error {
	return apperrors.NewFatal(apperrors.ErrUnknownDocumentType, "document type %q", string(t))
}

func (d *Dispatcher) verifyIdentity(ctx context.Context, job *model.Job) Outcome {
	extraction, err := d.extractor.Extract(ctx, job.DocumentURL)
	if err != nil {
		return Outcome{Err: err}
	}

	number, ok := findIdentityNumber(d.identityRe, extraction.Text)
	if !ok {
		return Outcome{
			Extraction: extraction,
			Err:        apperrors.NewFatal(apperrors.ErrPatternNotFound, "no %d-digit identity number in extracted text", d.identityLen),
		}
	}

	resp, err := d.identity.Verify(ctx, oracle.IdentityRequest{ExtractedNumber: number, IDType: string(job.DocumentType)})
	if err != nil {
		return Outcome{Extraction: extraction, Err: err}
	}

	result := &model.VerificationResult{
		Kind:            model.CategoryIdentity,
		Verified:        resp.Verified,
		ConfidenceScore: model.ClampConfidence(resp.Confidence),
		Identity: &model.IdentityResult{
			ExtractedNumber: number,
			IDType:          string(job.DocumentType),
			SubjectName:     resp.SubjectName,
		},
	}
	return d.finish(extraction, result, "identity authority did not verify the number")
}

func (d *Dispatcher) verifySelfie(ctx context.Context, job *model.Job) Outcome {
	resp, err := d.face.Detect(ctx, job.DocumentURL)
	if err != nil {
		return Outcome{Err: err}
	}

	result := &model.VerificationResult{
		Kind:            model.CategoryBiometric,
		Verified:        resp.FaceDetected && resp.LivenessDetected,
		ConfidenceScore: model.ClampConfidence(resp.Confidence),
		Biometric: &model.BiometricResult{
			FaceDetected:     resp.FaceDetected,
			FaceCount:        resp.FaceCount,
			LivenessDetected: resp.LivenessDetected,
		},
	}
	reason := "no face detected"
	if resp.FaceDetected {
		reason = "liveness not detected"
	}
	return d.finish(nil, result, reason)
}

func (d *Dispatcher) verifyBankStatement(ctx context.Context, job *model.Job) Outcome {
	extraction, err := d.extractor.Extract(ctx, job.DocumentURL)
	if err != nil {
		return Outcome{Err: err}
	}

	fields := parseBankStatement(extraction.Text)
	if fields.AccountNumber == "" {
		return Outcome{
			Extraction: extraction,
			Err:        apperrors.NewFatal(apperrors.ErrPatternNotFound, "no account number in statement text"),
		}
	}

	resp, err := d.bank.Verify(ctx, oracle.BankRequest{AccountNumber: fields.AccountNumber, AccountName: fields.AccountName})
	if err != nil {
		return Outcome{Extraction: extraction, Err: err}
	}

	accountName := resp.AccountName
	if accountName == "" {
		accountName = fields.AccountName
	}
	result := &model.VerificationResult{
		Kind:            model.CategoryBank,
		Verified:        resp.AccountValid,
		ConfidenceScore: model.ClampConfidence(resp.Confidence),
		BankAccount: &model.BankAccountResult{
			AccountNumber: fields.AccountNumber,
			AccountName:   accountName,
			BankName:      resp.BankName,
		},
	}
	return d.finish(extraction, result, "bank account could not be verified")
}

func (d *Dispatcher) verifySupporting(ctx context.Context, job *model.Job) Outcome {
	extraction, err := d.extractor.Extract(ctx, job.DocumentURL)
	if err != nil {
		return Outcome{Err: err}
	}

	subtype := ""
	if job.DocumentSubtype != nil {
		subtype = *job.DocumentSubtype
	}
	result := &model.VerificationResult{
		Kind:            model.CategorySupporting,
		Verified:        true,
		ConfidenceScore: model.ClampConfidence(extraction.Confidence),
		Supporting: &model.SupportingResult{
			DocumentSubtype:  subtype,
			ValidationPassed: true,
		},
	}
	return d.finish(extraction, result, "")
}

// finish turns a negative answer into a terminal rejection carrying the reason
func (d *Dispatcher) finish(extraction *model.ExtractionResult, result *model.VerificationResult, reason string) Outcome {
	if err := result.Validate(); err != nil {
		d.logger.Error("Strategy produced an inconsistent result", zap.Error(err))
		return Outcome{Extraction: extraction, Err: apperrors.NewFatal(err, "verification result")}
	}
	if result.Verified {
		return Outcome{Extraction: extraction, Verification: result}
	}
	result.ErrorMessage = reason
	return Outcome{
		Extraction:   extraction,
		Verification: result,
		Err:          apperrors.NewFatal(fmt.Errorf("%w: %s", apperrors.ErrVerificationRejected, reason), "%s", string(result.Kind)),
	}
}
