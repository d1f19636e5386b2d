package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectGetter is the subset of the S3 client used for reads
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads s3://bucket/key URLs
type S3Fetcher struct {
	client   ObjectGetter
	maxBytes int64
}

// NewS3Fetcher loads the default AWS credential chain. An empty region defers to the environment.
func NewS3Fetcher(ctx context.Context, region string, maxBytes int64) (*S3Fetcher, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3FetcherWithClient(s3.NewFromConfig(cfg), maxBytes), nil
}

// NewS3FetcherWithClient wraps an existing client
func NewS3FetcherWithClient(client ObjectGetter, maxBytes int64) *S3Fetcher {
	return &S3Fetcher{client: client, maxBytes: maxBytes}
}

// Fetch implements Fetcher
func (f *S3Fetcher) Fetch(ctx context.Context, documentURL string) ([]byte, error) {
	bucket, key, err := parseS3URL(documentURL)
	if err != nil {
		return nil, classify(&FetchError{URL: documentURL, Err: err})
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(s3FetchError(documentURL, err))
	}
	defer out.Body.Close()

	if f.maxBytes > 0 && out.ContentLength != nil && *out.ContentLength > f.maxBytes {
		return nil, classify(&FetchError{
			URL: documentURL,
			Err: fmt.Errorf("%w: content length %d > %d", ErrTooLarge, *out.ContentLength, f.maxBytes),
		})
	}

	data, err := readLimited(out.Body, f.maxBytes)
	if err != nil {
		return nil, classify(&FetchError{URL: documentURL, Retryable: !errors.Is(err, ErrTooLarge), Err: err})
	}
	return data, nil
}

func s3FetchError(documentURL string, err error) *FetchError {
	fe := &FetchError{URL: documentURL, Err: err, Retryable: true}

	var noKey *s3types.NoSuchKey
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noKey) || errors.As(err, &noBucket) {
		fe.StatusCode = http.StatusNotFound
		fe.Retryable = false
		return fe
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		fe.StatusCode = respErr.HTTPStatusCode()
		fe.Retryable = retryableStatus(fe.StatusCode)
	}
	return fe
}

// parseS3URL splits s3://bucket/key
func parseS3URL(raw string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q must be s3://bucket/key", raw)
	}
	return u.Host, key, nil
}
