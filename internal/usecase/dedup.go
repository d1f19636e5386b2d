package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/fetcher"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

// ResolveOptions carries the optional submission fields
type ResolveOptions struct {
	DocumentSubtype  *string
	OriginalFilename *string
	ContentHash      *string // caller-computed hex SHA-256 of the document bytes
}

// Deduplicator fingerprints submitted documents and makes sure one content hash maps to
// at most one live or completed job.
type Deduplicator struct {
	jobs       storage.JobRepo
	fetcher    fetcher.Fetcher // nil disables byte fingerprinting
	maxRetries int
	logger     *zap.Logger
}

// NewDeduplicator creates a Deduplicator. maxRetries is copied onto every new job.
func NewDeduplicator(jobs storage.JobRepo, f fetcher.Fetcher, maxRetries int) *Deduplicator {
	return &Deduplicator{
		jobs:       jobs,
		fetcher:    f,
		maxRetries: maxRetries,
		logger:     logger.Log.Named("deduplicator"),
	}
}

// ResolveOrCreate returns the live or completed job already holding the document's
// fingerprint, or inserts a new queued job. created is true only for a new row.
func (d *Deduplicator) ResolveOrCreate(ctx context.Context, onboardingID string, documentType model.DocumentType, documentURL string, opts ResolveOptions) (*model.Job, bool, error) {
	return d.insert(ctx, onboardingID, documentType, documentURL, opts, d.fingerprint(ctx, documentURL, opts.ContentHash))
}

// RecordUnrecognized inserts a queued job for a document type the dispatcher cannot
// handle. The document is never fetched, and its fingerprint is scoped to the type and
// URL so it cannot resolve to a job of a recognized type.
func (d *Deduplicator) RecordUnrecognized(ctx context.Context, onboardingID string, documentType model.DocumentType, documentURL string, opts ResolveOptions) (*model.Job, bool, error) {
	hash := utils.SHA256Hex([]byte("unrecognized:" + string(documentType) + ":" + documentURL))
	return d.insert(ctx, onboardingID, documentType, documentURL, opts, hash)
}

func (d *Deduplicator) insert(ctx context.Context, onboardingID string, documentType model.DocumentType, documentURL string, opts ResolveOptions, hash string) (*model.Job, bool, error) {
	now := utils.Now()
	job := &model.Job{
		ID:               uuid.New().String(),
		OnboardingID:     onboardingID,
		DocumentType:     documentType,
		DocumentSubtype:  opts.DocumentSubtype,
		DocumentURL:      documentURL,
		OriginalFilename: opts.OriginalFilename,
		ContentHash:      hash,
		Status:           model.JobStatusQueued,
		MaxRetries:       d.maxRetries,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	stored, created, err := d.jobs.InsertOrGetLive(ctx, job)
	if err != nil {
		return nil, false, err
	}
	if !created {
		logger.FromContextOr(ctx, d.logger).Info("Document already has a live job",
			zap.String("job_id", stored.ID),
			zap.String("job_status", string(stored.Status)),
			zap.String("content_hash", hash))
	}
	return stored, created, nil
}

// fingerprint prefers the caller's hash, then the document bytes, then the URL itself
func (d *Deduplicator) fingerprint(ctx context.Context, documentURL string, supplied *string) string {
	if supplied != nil && *supplied != "" {
		return strings.ToLower(*supplied)
	}
	if d.fetcher == nil {
		observer.IncHashFallback("disabled")
		return utils.SHA256Hex([]byte(documentURL))
	}

	data, err := d.fetcher.Fetch(ctx, documentURL)
	if err != nil {
		logger.FromContextOr(ctx, d.logger).Warn("Falling back to URL fingerprint",
			zap.String("document_url", documentURL),
			zap.Error(err))
		observer.IncHashFallback(err.Error())
		return utils.SHA256Hex([]byte(documentURL))
	}
	return utils.SHA256Hex(data)
}
