package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

func jsonServer(t *testing.T, check func(t *testing.T, body map[string]interface{}), status int, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if check != nil {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			check(t, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func endpointFor(srv *httptest.Server) config.OracleEndpoint {
	return config.OracleEndpoint{URL: srv.URL, Timeout: time.Second}
}

func TestOCRClient_Extract(t *testing.T) {
	logger.Log = zaptest.NewLogger(t)

	t.Run("maps response", func(t *testing.T) {
		srv := jsonServer(t, func(t *testing.T, body map[string]interface{}) {
			assert.Equal(t, "https://cdn.example.com/nin.jpg", body["image_url"])
		}, http.StatusOK, `{"text":"NIN 12345678901","confidence":91.5,"processing_time":1.2,"language":"eng"}`)

		res, err := NewOCRClient(endpointFor(srv), nil).Extract(context.Background(), "https://cdn.example.com/nin.jpg")
		require.NoError(t, err)
		assert.Equal(t, "NIN 12345678901", res.Text)
		assert.InDelta(t, 91.5, res.Confidence, 0.001)
		assert.Equal(t, "eng", res.Language)
	})

	t.Run("defaults language", func(t *testing.T) {
		srv := jsonServer(t, nil, http.StatusOK, `{"text":"abc","confidence":50}`)
		res, err := NewOCRClient(endpointFor(srv), nil).Extract(context.Background(), "https://x/y.jpg")
		require.NoError(t, err)
		assert.Equal(t, model.DefaultExtractionLanguage, res.Language)
	})
}

func TestEndpoint_ErrorClassification(t *testing.T) {
	logger.Log = zaptest.NewLogger(t)

	testCases := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, true},
		{"unavailable", http.StatusServiceUnavailable, ``, true},
		{"throttled", http.StatusTooManyRequests, ``, true},
		{"bad request", http.StatusBadRequest, `{"error":"bad image"}`, false},
		{"unauthorized", http.StatusUnauthorized, ``, false},
		{"malformed body", http.StatusOK, `{"text":`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := jsonServer(t, nil, tc.status, tc.body)
			_, err := NewOCRClient(endpointFor(srv), nil).Extract(context.Background(), "https://x/y.jpg")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrOracle)
			assert.Equal(t, tc.wantRetryable, apperrors.IsRetryable(err))
			assert.Equal(t, !tc.wantRetryable, apperrors.IsFatal(err))
		})
	}
}

func TestEndpoint_Timeout(t *testing.T) {
	logger.Log = zaptest.NewLogger(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := NewOCRClient(config.OracleEndpoint{URL: srv.URL, Timeout: 30 * time.Millisecond}, nil)
	_, err := client.Extract(context.Background(), "https://x/y.jpg")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.True(t, apperrors.IsTimeoutError(err))
}

func TestEndpoint_MissingURLIsFatal(t *testing.T) {
	_, err := NewBankClient(config.OracleEndpoint{}, nil).Verify(context.Background(), BankRequest{AccountNumber: "0123456789"})
	assert.True(t, apperrors.IsFatal(err))
}

func TestIdentityClient_Verify(t *testing.T) {
	srv := jsonServer(t, func(t *testing.T, body map[string]interface{}) {
		assert.Equal(t, "12345678901", body["extracted_number"])
		assert.Equal(t, "identity_number_primary", body["id_type"])
	}, http.StatusOK, `{"verified":true,"confidence":97,"subject_name":"ADA OBI"}`)

	res, err := NewIdentityClient(endpointFor(srv), nil).Verify(context.Background(), IdentityRequest{
		ExtractedNumber: "12345678901",
		IDType:          "identity_number_primary",
	})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, "ADA OBI", res.SubjectName)
}

func TestFaceClient_Detect(t *testing.T) {
	srv := jsonServer(t, func(t *testing.T, body map[string]interface{}) {
		assert.Equal(t, "https://cdn.example.com/selfie.jpg", body["image_url"])
	}, http.StatusOK, `{"face_detected":true,"face_count":1,"liveness_detected":false,"confidence":88}`)

	res, err := NewFaceClient(endpointFor(srv), nil).Detect(context.Background(), "https://cdn.example.com/selfie.jpg")
	require.NoError(t, err)
	assert.True(t, res.FaceDetected)
	assert.False(t, res.LivenessDetected)
	assert.Equal(t, 1, res.FaceCount)
}

func TestBankClient_Verify(t *testing.T) {
	srv := jsonServer(t, func(t *testing.T, body map[string]interface{}) {
		assert.Equal(t, "0123456789", body["account_number"])
		assert.Equal(t, "ADA OBI", body["account_name"])
	}, http.StatusOK, `{"account_valid":true,"confidence":90,"account_name":"ADA OBI","bank_name":"First Bank"}`)

	res, err := NewBankClient(endpointFor(srv), nil).Verify(context.Background(), BankRequest{
		AccountNumber: "0123456789",
		AccountName:   "ADA OBI",
	})
	require.NoError(t, err)
	assert.True(t, res.AccountValid)
	assert.Equal(t, "First Bank", res.BankName)
}

func TestNewHTTPClient_ClientCredentials(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	oracleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"verified":true,"confidence":80}`))
	}))
	defer oracleSrv.Close()

	httpClient := NewHTTPClient(context.Background(), config.OAuthConfig{
		ClientID:     "processor",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
	})
	res, err := NewIdentityClient(endpointFor(oracleSrv), httpClient).Verify(context.Background(), IdentityRequest{ExtractedNumber: "1"})
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestNewHTTPClient_NoAuth(t *testing.T) {
	c := NewHTTPClient(context.Background(), config.OAuthConfig{})
	assert.NotNil(t, c)
	assert.Nil(t, c.Transport)
}
