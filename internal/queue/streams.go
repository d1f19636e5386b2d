package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/jetstream"
)

// DuplicateWindow is how long the documents stream remembers message ids
const DuplicateWindow = 2 * time.Minute

// DocumentsStreamConfig holds submissions and job messages
func DocumentsStreamConfig(cfg config.NATSConfig) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       cfg.DocumentsStream,
		Subjects:   []string{cfg.SubmitSubject, cfg.JobsSubject},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     maxAge(cfg),
		Duplicates: DuplicateWindow,
	}
}

// EventsStreamConfig holds outbound onboarding notifications
func EventsStreamConfig(cfg config.NATSConfig) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:       cfg.EventsStream,
		Subjects:   []string{cfg.StatusSubject + ".>", cfg.DocumentFailedSubj + ".>"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     maxAge(cfg),
		Duplicates: DuplicateWindow,
	}
}

// PullConsumerConfig builds an explicit-ack durable pull consumer on filterSubject
func PullConsumerConfig(filterSubject string, c config.ConsumerNatsConfig) *nats.ConsumerConfig {
	return &nats.ConsumerConfig{
		Durable:       c.Consumer,
		FilterSubject: filterSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxDeliver:    c.MaxDeliver,
		AckWait:       c.AckWait,
		MaxAckPending: c.MaxAckPending,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}
}

// SetupTopology creates or updates both streams and the two pull consumers
func SetupTopology(ctx context.Context, js jetstream.ClientInterface, cfg config.NATSConfig) error {
	for _, sc := range []*nats.StreamConfig{DocumentsStreamConfig(cfg), EventsStreamConfig(cfg)} {
		if err := js.SetupStream(ctx, sc); err != nil {
			return fmt.Errorf("setup stream %s: %w", sc.Name, err)
		}
	}

	consumers := []*nats.ConsumerConfig{
		PullConsumerConfig(cfg.JobsSubject, cfg.Jobs),
		PullConsumerConfig(cfg.SubmitSubject, cfg.Submissions),
	}
	for _, cc := range consumers {
		if err := js.SetupConsumer(ctx, cfg.DocumentsStream, cc); err != nil {
			return fmt.Errorf("setup consumer %s: %w", cc.Durable, err)
		}
	}
	return nil
}

func maxAge(cfg config.NATSConfig) time.Duration {
	return time.Duration(cfg.MaxAgeDays) * 24 * time.Hour
}
