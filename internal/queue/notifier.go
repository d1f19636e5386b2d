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

// Notifier publishes onboarding events to the events stream. Subjects are suffixed with the
// onboarding id so consumers can filter per onboarding.
type Notifier struct {
	js            jetstream.ClientInterface
	statusSubject model.EventType
	failedSubject model.EventType
	logger        *zap.Logger
}

// NewNotifier creates a notifier for the status and document-failed subjects in cfg
func NewNotifier(js jetstream.ClientInterface, cfg config.NATSConfig) *Notifier {
	return &Notifier{
		js:            js,
		statusSubject: model.EventType(cfg.StatusSubject),
		failedSubject: model.EventType(cfg.DocumentFailedSubj),
		logger:        logger.Log.Named("notifier"),
	}
}

// OnboardingStatusChanged publishes a rollup change
func (n *Notifier) OnboardingStatusChanged(ctx context.Context, evt model.OnboardingStatusChanged) error {
	msgID := fmt.Sprintf("%s-%s-%d", evt.OnboardingID, evt.Current, evt.At.UnixNano())
	return n.publish(ctx, n.statusSubject.WithSuffix(evt.OnboardingID), msgID, evt)
}

// DocumentFailed publishes a terminal job failure
func (n *Notifier) DocumentFailed(ctx context.Context, evt model.DocumentFailed) error {
	// One terminal failure per job, so the job id is a stable dedup key.
	return n.publish(ctx, n.failedSubject.WithSuffix(evt.OnboardingID), "failed-"+evt.JobID, evt)
}

func (n *Notifier) publish(ctx context.Context, subject, msgID string, evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return apperrors.NewFatal(err, "marshal event for %s", subject)
	}
	if err := n.js.Publish(ctx, subject, data, map[string]string{MsgIDHeader: msgID}); err != nil {
		return apperrors.NewRetryable(err, "publish event to %s", subject)
	}
	logger.FromContextOr(ctx, n.logger).Debug("Published event", zap.String("subject", subject))
	return nil
}
