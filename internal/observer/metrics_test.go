package observer

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
)

func TestSanitizeErrorType(t *testing.T) {
	tests := map[string]string{
		"":                                      "none",
		"none":                                  "none",
		"database error: connection refused":    "database",
		"validation failed: field 'x'":          "validation",
		"record not found":                      "not_found",
		"nats: timeout":                         "nats",
		"context deadline exceeded":             "timeout",
		"fetch failed: status 502":              "fetch",
		"verification rejected by oracle":       "oracle",
		"json: cannot unmarshal string into Go": "unmarshal",
		"recovered panic in worker":             "panic",
		"something else entirely":               "unknown",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, SanitizeErrorType(input), input)
	}
}

func TestSanitizeDocumentType(t *testing.T) {
	assert.Equal(t, "selfie", sanitizeDocumentType(model.DocumentTypeSelfie))
	assert.Equal(t, "unknown", sanitizeDocumentType(model.DocumentType("drivers_permit")))
}

func TestHelpersRespectEnabledFlag(t *testing.T) {
	t.Cleanup(func() { InitMetrics(true) })

	InitMetrics(false)
	before := testutil.ToFloat64(jobOutcomesTotal.WithLabelValues("bank_statement", "completed"))
	IncJobOutcome(model.DocumentTypeBankStatement, model.JobStatusCompleted)
	IncWorkerFetchRequest("jobs")
	assert.Equal(t, before, testutil.ToFloat64(jobOutcomesTotal.WithLabelValues("bank_statement", "completed")))
	assert.False(t, Enabled())

	InitMetrics(true)
	IncJobOutcome(model.DocumentTypeBankStatement, model.JobStatusCompleted)
	assert.Equal(t, before+1, testutil.ToFloat64(jobOutcomesTotal.WithLabelValues("bank_statement", "completed")))

	fetchBefore := testutil.ToFloat64(workerFetchRequestsTotal.WithLabelValues("jobs"))
	IncWorkerFetchRequest("jobs")
	assert.Equal(t, fetchBefore+1, testutil.ToFloat64(workerFetchRequestsTotal.WithLabelValues("jobs")))
}

func TestObserveOracleCall_LabelsOutcome(t *testing.T) {
	InitMetrics(true)
	ObserveOracleCall("ocr", 20*time.Millisecond, nil)
	ObserveOracleCall("ocr", 30*time.Millisecond, errors.New("timeout"))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(oracleCallDurationSeconds), 2)
}
