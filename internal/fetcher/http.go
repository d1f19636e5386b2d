package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

const (
	defaultHTTPTimeout     = 30 * time.Second
	retryInitialInterval   = 200 * time.Millisecond
	retryMaxInterval       = 2 * time.Second
	defaultFetchAttempts   = 3
	maxErrorBodyPreviewLen = 256
)

// HTTPFetcher downloads documents with GET
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
	attempts int
}

// HTTPOption configures an HTTPFetcher
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the underlying client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// NewHTTPFetcher creates a fetcher bounded by timeout and maxBytes (0 disables the size limit).
// attempts counts the first try; values below 1 default to 3.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, attempts int, opts ...HTTPOption) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if attempts < 1 {
		attempts = defaultFetchAttempts
	}
	f := &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		attempts: attempts,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher. Retryable failures are retried with exponential backoff
// before being returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, documentURL string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.attempts-1)), ctx)

	notify := func(err error, d time.Duration) {
		logger.FromContext(ctx).Warn("Retrying document fetch",
			zap.String("url", documentURL),
			zap.Error(err),
			zap.Duration("after", d))
	}

	data, err := backoff.RetryNotifyWithData(func() ([]byte, error) {
		data, fe := f.fetchOnce(ctx, documentURL)
		if fe == nil {
			return data, nil
		}
		if !fe.Retryable {
			return nil, backoff.Permanent(fe)
		}
		return nil, fe
	}, policy, notify)
	if err == nil {
		return data, nil
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		// Context cancelled between attempts.
		fe = &FetchError{URL: documentURL, Retryable: true, Err: err}
	}
	return nil, classify(fe)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, documentURL string) ([]byte, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return nil, &FetchError{URL: documentURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: documentURL, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreviewLen))
		return nil, &FetchError{
			URL:        documentURL,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        fmt.Errorf("unexpected status: %q", string(preview)),
		}
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, &FetchError{
			URL:        documentURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: content length %d > %d", ErrTooLarge, resp.ContentLength, f.maxBytes),
		}
	}

	data, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, &FetchError{URL: documentURL, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, &FetchError{URL: documentURL, StatusCode: resp.StatusCode, Retryable: true, Err: err}
	}
	return data, nil
}

// retryableStatus treats server errors and throttling as transient
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// readLimited reads r fully, failing with ErrTooLarge past maxBytes (0 means unlimited)
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}
