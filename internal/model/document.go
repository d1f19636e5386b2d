package model

import "strings"

// DocumentType identifies which verification strategy a job runs
type DocumentType string

const (
	DocumentTypeIdentityPrimary   DocumentType = "identity_number_primary"
	DocumentTypeIdentitySecondary DocumentType = "identity_number_secondary"
	DocumentTypeIDDocument        DocumentType = "id_document"
	DocumentTypeSelfie            DocumentType = "selfie"
	DocumentTypeBankStatement     DocumentType = "bank_statement"
	DocumentTypeSupporting        DocumentType = "supporting_document"
)

// DocumentCategory groups document types that share a verification strategy
type DocumentCategory string

const (
	CategoryIdentity   DocumentCategory = "identity"
	CategoryBiometric  DocumentCategory = "biometric"
	CategoryBank       DocumentCategory = "bank_account"
	CategorySupporting DocumentCategory = "supporting"
	CategoryUnknown    DocumentCategory = "unknown"
)

// legacyDocumentTypes maps names still sent by older clients onto the canonical set.
var legacyDocumentTypes = map[string]DocumentType{
	"nin":             DocumentTypeIdentityPrimary,
	"bvn":             DocumentTypeIdentitySecondary,
	"insurance":       DocumentTypeSupporting,
	"cac_certificate": DocumentTypeSupporting,
	"guarantor_id":    DocumentTypeSupporting,
}

// KnownDocumentTypes lists the canonical document types in a stable order
func KnownDocumentTypes() []DocumentType {
	return []DocumentType{
		DocumentTypeIdentityPrimary,
		DocumentTypeIdentitySecondary,
		DocumentTypeIDDocument,
		DocumentTypeSelfie,
		DocumentTypeBankStatement,
		DocumentTypeSupporting,
	}
}

// NormalizeDocumentType resolves a submitted type to its canonical form.
// The returned subtype is the legacy alias for supporting documents and nil otherwise.
// Unrecognised values are returned lower-cased and untouched so the job can fail on them.
func NormalizeDocumentType(raw string) (DocumentType, *string) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := legacyDocumentTypes[v]; ok {
		if canonical == DocumentTypeSupporting {
			subtype := v
			return canonical, &subtype
		}
		return canonical, nil
	}
	return DocumentType(v), nil
}

// IsKnown reports whether t belongs to the canonical set
func (t DocumentType) IsKnown() bool {
	return t.Category() != CategoryUnknown
}

// Category returns the verification strategy family for t
func (t DocumentType) Category() DocumentCategory {
	switch t {
	case DocumentTypeIdentityPrimary, DocumentTypeIdentitySecondary, DocumentTypeIDDocument:
		return CategoryIdentity
	case DocumentTypeSelfie:
		return CategoryBiometric
	case DocumentTypeBankStatement:
		return CategoryBank
	case DocumentTypeSupporting:
		return CategorySupporting
	default:
		return CategoryUnknown
	}
}

// RequiresExtraction reports whether the strategy for t starts with OCR
func (t DocumentType) RequiresExtraction() bool {
	switch t.Category() {
	case CategoryIdentity, CategoryBank, CategorySupporting:
		return true
	default:
		return false
	}
}

func (t DocumentType) String() string {
	return string(t)
}
