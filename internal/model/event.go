package model

// EventType represents the subjects this service consumes and emits
type EventType string

// Default subjects (with versioning)
const (
	// Version 1 inbound subjects
	V1DocumentsSubmit EventType = "v1.documents.submit"
	V1DocumentsJobs   EventType = "v1.documents.jobs"
	// Version 1 outbound notification subjects
	V1OnboardingStatus         EventType = "v1.onboarding.status"
	V1OnboardingDocumentFailed EventType = "v1.onboarding.document_failed"
)

// WithSuffix appends an identifier segment, e.g. "v1.onboarding.status" + id
func (e EventType) WithSuffix(id string) string {
	if id == "" {
		return string(e)
	}
	return string(e) + "." + id
}
