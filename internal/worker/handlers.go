package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/reqctx"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/usecase"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

// JobProcessor runs one delivery of a job
type JobProcessor interface {
	Process(ctx context.Context, jobID string) (*usecase.ProcessResult, error)
}

// Submitter registers a document submission
type Submitter interface {
	Submit(ctx context.Context, req *model.SubmitRequest) (*model.Job, error)
}

// JobHandler settles job messages from the outcome of the pipeline
type JobHandler struct {
	processor JobProcessor
	nakBase   time.Duration
	nakMax    time.Duration
	logger    *zap.Logger
}

// NewJobHandler creates a handler backing off infrastructure errors per cfg
func NewJobHandler(processor JobProcessor, cfg config.ConsumerNatsConfig) *JobHandler {
	return &JobHandler{
		processor: processor,
		nakBase:   cfg.NakBaseDelay,
		nakMax:    cfg.NakMaxDelay,
		logger:    logger.Log.Named("job_handler"),
	}
}

// Handle processes one job message
func (h *JobHandler) Handle(ctx context.Context, d Delivery) Decision {
	var msg model.JobMessage
	if err := json.Unmarshal(d.Data, &msg); err != nil {
		h.logger.Error("Failed to unmarshal job message", zap.Error(err), zap.ByteString("data", d.Data))
		return Term("unmarshal")
	}
	if msg.JobID == "" {
		h.logger.Error("Job message without job id", zap.ByteString("data", d.Data))
		return Term("validation")
	}

	ctx = reqctx.WithJobID(ctx, msg.JobID)
	if msg.OnboardingID != "" {
		ctx = reqctx.WithOnboardingID(ctx, msg.OnboardingID)
	}
	log := logger.FromContextOr(ctx, h.logger)

	res, err := h.processor.Process(ctx, msg.JobID)
	if err != nil {
		if apperrors.IsFatal(err) {
			log.Error("Job message cannot be processed", zap.Error(err))
			return Term(err.Error())
		}
		delay := usecase.BackoffDelay(int(d.NumDelivered), h.nakBase, h.nakMax)
		log.Warn("Job processing hit an infrastructure error, redelivering",
			zap.Uint64("num_delivered", d.NumDelivered),
			zap.Duration("delay", delay),
			zap.Error(err))
		return Nak(delay, err.Error())
	}

	if res != nil && res.Requeue {
		return Nak(res.RetryAfter, "")
	}
	return Ack()
}

// SubmissionHandler registers documents arriving on the submission subject
type SubmissionHandler struct {
	submitter Submitter
	nakBase   time.Duration
	nakMax    time.Duration
	logger    *zap.Logger
}

// NewSubmissionHandler creates a handler backing off infrastructure errors per cfg
func NewSubmissionHandler(submitter Submitter, cfg config.ConsumerNatsConfig) *SubmissionHandler {
	return &SubmissionHandler{
		submitter: submitter,
		nakBase:   cfg.NakBaseDelay,
		nakMax:    cfg.NakMaxDelay,
		logger:    logger.Log.Named("submission_handler"),
	}
}

// Handle submits one document reference
func (h *SubmissionHandler) Handle(ctx context.Context, d Delivery) Decision {
	var req model.SubmitRequest
	if err := json.Unmarshal(d.Data, &req); err != nil {
		h.logger.Error("Failed to unmarshal submission", zap.Error(err), zap.ByteString("data", d.Data))
		return Term("unmarshal")
	}
	if requestID := d.Header.Get(RequestIDHeader); requestID != "" {
		ctx = reqctx.WithRequestID(ctx, requestID)
	}

	job, err := h.submitter.Submit(ctx, &req)
	if err != nil {
		log := logger.FromContextOr(ctx, h.logger)
		if apperrors.IsValidationError(err) || apperrors.IsFatal(err) {
			log.Warn("Rejected submission", zap.String("onboarding_id", req.OnboardingID), zap.Error(err))
			return Term(err.Error())
		}
		delay := usecase.BackoffDelay(int(d.NumDelivered), h.nakBase, h.nakMax)
		log.Warn("Submission failed, redelivering", zap.Duration("delay", delay), zap.Error(err))
		return Nak(delay, err.Error())
	}

	logger.FromContextOr(ctx, h.logger).Debug("Submission registered",
		zap.String("job_id", job.ID),
		zap.String("job_status", string(job.Status)))
	return Ack()
}

// RequestIDHeader carries the originating request id on submission messages
const RequestIDHeader = "X-Request-Id"
