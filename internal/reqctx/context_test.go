package reqctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()

	_, err := RequestIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrNoRequestIDInContext)

	ctx = WithRequestID(ctx, "req-123")
	id, err := RequestIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "req-123", id)
	assert.Equal(t, "req-123", MustRequestIDFromContext(ctx))
}

func TestRequestID_EmptyIsMissing(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	_, err := RequestIDFromContext(ctx)
	assert.ErrorIs(t, err, ErrNoRequestIDInContext)
	assert.Panics(t, func() { MustRequestIDFromContext(ctx) })
}

func TestOnboardingAndJobIDs(t *testing.T) {
	ctx := WithJobID(WithOnboardingID(context.Background(), "onb-1"), "job-1")

	onboardingID, err := OnboardingIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "onb-1", onboardingID)

	jobID, err := JobIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	_, err = JobIDFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoJobIDInContext)
	_, err = OnboardingIDFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoOnboardingIDInContext)
}
