package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
)

func TestValidate_SubmitRequest(t *testing.T) {
	validHash := strings.Repeat("ab", 32)
	longName := strings.Repeat("x", 256)
	badHash := strings.Repeat("zz", 32)

	tests := []struct {
		name      string
		mutate    func(r *model.SubmitRequest)
		wantField string
	}{
		{"valid https", func(r *model.SubmitRequest) {}, ""},
		{"valid s3", func(r *model.SubmitRequest) { r.DocumentURL = "s3://kyc-uploads/landlords/nin.png" }, ""},
		{"valid with hash", func(r *model.SubmitRequest) { r.ContentHash = &validHash }, ""},
		{"unknown type is accepted", func(r *model.SubmitRequest) { r.DocumentType = "utility_bill" }, ""},
		{"missing onboarding", func(r *model.SubmitRequest) { r.OnboardingID = "" }, "onboarding_id"},
		{"bad onboarding uuid", func(r *model.SubmitRequest) { r.OnboardingID = "landlord-7" }, "onboarding_id"},
		{"missing type", func(r *model.SubmitRequest) { r.DocumentType = "" }, "document_type"},
		{"bad url", func(r *model.SubmitRequest) { r.DocumentURL = "not a url" }, "document_url"},
		{"filename too long", func(r *model.SubmitRequest) { r.OriginalFilename = &longName }, "original_filename"},
		{"hash not hex", func(r *model.SubmitRequest) { r.ContentHash = &badHash }, "content_hash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := model.NewSubmitRequest()
			tt.mutate(req)

			err := Validate(req)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))
			assert.Contains(t, err.Error(), "'"+tt.wantField+"'")
		})
	}
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar("0d4b6a1f-7b0e-4d55-9a0c-1d6e6f2f8f10", "uuid"))
	assert.Error(t, ValidateVar("nope", "uuid"))
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
