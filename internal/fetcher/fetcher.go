package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// Fetcher retrieves the raw bytes behind a document URL
type Fetcher interface {
	Fetch(ctx context.Context, documentURL string) ([]byte, error)
}

// FetchError describes a failed retrieval. It unwraps to apperrors.ErrFetch and the cause.
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Retryable  bool
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes ErrFetch and the cause to errors.Is / errors.As.
func (e *FetchError) Unwrap() []error {
	return []error{apperrors.ErrFetch, e.Err}
}

// classify wraps a FetchError in the retry taxonomy the pipeline understands.
func classify(fe *FetchError) error {
	if fe.Retryable {
		return apperrors.NewRetryable(fe, "document fetch")
	}
	return apperrors.NewFatal(fe, "document fetch")
}

// ErrTooLarge is the cause recorded when a payload exceeds the configured limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// ErrUnsupportedScheme is the cause recorded for URLs no fetcher handles.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// Router dispatches on the URL scheme
type Router struct {
	byScheme map[string]Fetcher
}

// NewRouter creates a Router serving http and https with httpFetcher and s3 with s3Fetcher.
// Either may be nil, in which case that scheme is rejected.
func NewRouter(httpFetcher Fetcher, s3Fetcher Fetcher) *Router {
	r := &Router{byScheme: map[string]Fetcher{}}
	if httpFetcher != nil {
		r.byScheme["http"] = httpFetcher
		r.byScheme["https"] = httpFetcher
	}
	if s3Fetcher != nil {
		r.byScheme["s3"] = s3Fetcher
	}
	return r
}

// Fetch implements Fetcher
func (r *Router) Fetch(ctx context.Context, documentURL string) ([]byte, error) {
	scheme := schemeOf(documentURL)
	start := utils.Now()

	f, ok := r.byScheme[scheme]
	if !ok {
		err := classify(&FetchError{URL: documentURL, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)})
		observer.ObserveFetch("unsupported", time.Since(start), err)
		return nil, err
	}

	data, err := f.Fetch(ctx, documentURL)
	observer.ObserveFetch(scheme, time.Since(start), err)
	return data, err
}

func schemeOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
