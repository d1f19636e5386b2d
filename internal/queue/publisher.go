package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/jetstream"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

// MsgIDHeader is the JetStream header used for publish-side deduplication
const MsgIDHeader = "Nats-Msg-Id"

// JobPublisher publishes job messages on the jobs subject
type JobPublisher struct {
	js      jetstream.ClientInterface
	subject string
	logger  *zap.Logger
}

// NewJobPublisher creates a publisher for cfg.JobsSubject
func NewJobPublisher(js jetstream.ClientInterface, cfg config.NATSConfig) *JobPublisher {
	return &JobPublisher{
		js:      js,
		subject: cfg.JobsSubject,
		logger:  logger.Log.Named("job_publisher"),
	}
}

// PublishJob publishes msg. The message id includes the retry count so each attempt of a
// job is accepted once within the stream's duplicate window.
func (p *JobPublisher) PublishJob(ctx context.Context, msg model.JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return apperrors.NewFatal(err, "marshal job message %s", msg.JobID)
	}

	headers := map[string]string{MsgIDHeader: JobMessageID(msg)}
	if err := p.js.Publish(ctx, p.subject, data, headers); err != nil {
		return apperrors.NewRetryable(err, "publish job %s", msg.JobID)
	}

	logger.FromContextOr(ctx, p.logger).Debug("Published job message",
		zap.String("job_id", msg.JobID),
		zap.Int("retry_count", msg.RetryCount))
	return nil
}

// JobMessageID is the dedup id of one attempt of a job
func JobMessageID(msg model.JobMessage) string {
	return fmt.Sprintf("%s-%d", msg.JobID, msg.RetryCount)
}
