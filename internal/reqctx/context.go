package reqctx

import (
	"context"
	"errors"
)

type contextKey string

const (
	requestIDKey    contextKey = "requestID"
	onboardingIDKey contextKey = "onboardingID"
	jobIDKey        contextKey = "jobID"
)

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// ErrNoOnboardingIDInContext is returned when no onboarding ID is found in context
var ErrNoOnboardingIDInContext = errors.New("no onboarding ID found in context")

// ErrNoJobIDInContext is returned when no job ID is found in context
var ErrNoJobIDInContext = errors.New("no job ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from the context
func RequestIDFromContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}

// WithOnboardingID adds the onboarding the current work belongs to
func WithOnboardingID(ctx context.Context, onboardingID string) context.Context {
	return context.WithValue(ctx, onboardingIDKey, onboardingID)
}

// OnboardingIDFromContext extracts the onboarding ID from the context
func OnboardingIDFromContext(ctx context.Context) (string, error) {
	onboardingID, ok := ctx.Value(onboardingIDKey).(string)
	if !ok || onboardingID == "" {
		return "", ErrNoOnboardingIDInContext
	}
	return onboardingID, nil
}

// WithJobID adds the document processing job ID to the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext extracts the job ID from the context
func JobIDFromContext(ctx context.Context) (string, error) {
	jobID, ok := ctx.Value(jobIDKey).(string)
	if !ok || jobID == "" {
		return "", ErrNoJobIDInContext
	}
	return jobID, nil
}

// MustRequestIDFromContext extracts the request ID from the context or panics
func MustRequestIDFromContext(ctx context.Context) string {
	requestID, err := RequestIDFromContext(ctx)
	if err != nil {
		panic(err)
	}
	return requestID
}
