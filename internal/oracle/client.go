package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

const (
	defaultCallTimeout   = 30 * time.Second
	maxResponseBodyBytes = 1 << 20
	errorPreviewBytes    = 256
)

// NewHTTPClient returns the client shared by all oracle calls. When auth carries a client id
// the client attaches OAuth2 client-credentials tokens; otherwise it is a plain client.
// Per-call deadlines come from each endpoint's timeout, not from the client.
func NewHTTPClient(ctx context.Context, auth config.OAuthConfig) *http.Client {
	if auth.ClientID == "" {
		return &http.Client{}
	}
	cc := clientcredentials.Config{
		ClientID:     auth.ClientID,
		ClientSecret: auth.ClientSecret,
		TokenURL:     auth.TokenURL,
		Scopes:       auth.Scopes,
	}
	return cc.Client(ctx)
}

// endpoint posts JSON to one oracle URL
type endpoint struct {
	name       string
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

func newEndpoint(name string, cfg config.OracleEndpoint, httpClient *http.Client) endpoint {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return endpoint{name: name, url: cfg.URL, timeout: timeout, httpClient: httpClient}
}

// postJSON sends body and decodes the 2xx response into out. Transport failures,
// timeouts, 5xx, 429 and undecodable bodies are retryable; other statuses are fatal.
func (e endpoint) postJSON(ctx context.Context, body, out interface{}) (err error) {
	start := utils.Now()
	defer func() {
		observer.ObserveOracleCall(e.name, time.Since(start), err)
		if err != nil {
			logger.FromContext(ctx).Warn("Oracle call failed",
				zap.String("oracle", e.name),
				zap.Bool("retryable", apperrors.IsRetryable(err)),
				zap.Error(err))
		}
	}()

	if e.url == "" {
		return apperrors.NewFatal(apperrors.ErrOracle, "%s oracle url is not configured", e.name)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.NewFatal(err, "encode %s request", e.name)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewFatal(err, "build %s request", e.name)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return apperrors.NewRetryable(fmt.Errorf("%w: %w: %w", apperrors.ErrOracle, apperrors.ErrTimeout, err), "%s call timed out after %s", e.name, e.timeout)
		}
		return apperrors.NewRetryable(fmt.Errorf("%w: %w", apperrors.ErrOracle, err), "%s call", e.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, errorPreviewBytes))
		statusErr := fmt.Errorf("%w: status %d: %q", apperrors.ErrOracle, resp.StatusCode, string(preview))
		if retryableStatus(resp.StatusCode) {
			return apperrors.NewRetryable(statusErr, "%s call", e.name)
		}
		return apperrors.NewFatal(statusErr, "%s call", e.name)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(out); err != nil {
		return apperrors.NewRetryable(fmt.Errorf("%w: %w", apperrors.ErrOracle, err), "decode %s response", e.name)
	}
	return nil
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
