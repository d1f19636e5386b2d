package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventType_WithSuffix(t *testing.T) {
	assert.Equal(t, "v1.onboarding.status.42", V1OnboardingStatus.WithSuffix("42"))
	assert.Equal(t, "v1.onboarding.status", V1OnboardingStatus.WithSuffix(""))
}
