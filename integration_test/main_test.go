//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	pgtc "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

// BaseIntegrationSuite starts Postgres and NATS once per suite and applies the migrations.
type BaseIntegrationSuite struct {
	suite.Suite
	Postgres    testcontainers.Container
	PostgresDSN string
	NATS        testcontainers.Container
	NATSURL     string
	Repo        *storage.PostgresRepo
	DB          *gorm.DB
	Ctx         context.Context
	cancel      context.CancelFunc
}

func (s *BaseIntegrationSuite) SetupSuite() {
	s.Ctx, s.cancel = context.WithCancel(context.Background())
	logger.Log = zaptest.NewLogger(s.T()).Named("integration")
	start := time.Now()

	var err error
	s.Postgres, s.PostgresDSN, err = startPostgres(s.Ctx)
	s.Require().NoError(err, "start postgres")

	s.NATS, s.NATSURL, err = startNATS(s.Ctx)
	s.Require().NoError(err, "start nats")

	s.Repo, err = storage.NewPostgresRepo(s.Ctx, s.PostgresDSN, true)
	s.Require().NoError(err, "open repository")

	s.DB, err = gorm.Open(postgres.Open(s.PostgresDSN), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	s.Require().NoError(err, "open fixture connection")

	log.Printf("Integration infrastructure ready in %v", time.Since(start))
}

func (s *BaseIntegrationSuite) TearDownSuite() {
	if s.Repo != nil {
		_ = s.Repo.Close(context.Background())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if s.NATS != nil {
		if err := s.NATS.Terminate(context.Background()); err != nil {
			s.T().Logf("terminate nats: %v", err)
		}
	}
	if s.Postgres != nil {
		if err := s.Postgres.Terminate(context.Background()); err != nil {
			s.T().Logf("terminate postgres: %v", err)
		}
	}
	s.cancel()
}

// SetupTest clears job rows so fingerprints from earlier tests do not collide.
func (s *BaseIntegrationSuite) SetupTest() {
	s.Require().NoError(s.DB.Exec("TRUNCATE document_processing_jobs").Error)
	s.Require().NoError(s.DB.Exec("TRUNCATE landlord_onboarding").Error)
}

// CreateOnboarding inserts a pending onboarding row owned by the marketplace backend.
func (s *BaseIntegrationSuite) CreateOnboarding() *model.Onboarding {
	o := model.NewOnboarding()
	s.Require().NoError(s.DB.WithContext(s.Ctx).Create(o).Error)
	return o
}

// testNATSConfig returns the production NATS layout with names unique to the caller.
func testNATSConfig(url, prefix string) config.NATSConfig {
	consumer := func(name string) config.ConsumerNatsConfig {
		return config.ConsumerNatsConfig{
			Consumer:      prefix + "_" + name,
			MaxDeliver:    10,
			AckWait:       30 * time.Second,
			MaxAckPending: 100,
			NakBaseDelay:  100 * time.Millisecond,
			NakMaxDelay:   time.Second,
			FetchBatch:    10,
			FetchMaxWait:  500 * time.Millisecond,
		}
	}
	return config.NATSConfig{
		URL:                url,
		DocumentsStream:    prefix + "_documents",
		SubmitSubject:      prefix + ".documents.submit",
		JobsSubject:        prefix + ".documents.jobs",
		EventsStream:       prefix + "_events",
		StatusSubject:      prefix + ".onboarding.status",
		DocumentFailedSubj: prefix + ".onboarding.document_failed",
		MaxAgeDays:         1,
		Jobs:               consumer("jobs"),
		Submissions:        consumer("submissions"),
	}
}

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := pgtc.Run(ctx,
		"postgres:17-bookworm",
		pgtc.WithDatabase("documents"),
		pgtc.WithUsername("postgres"),
		pgtc.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, "", fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
	}
	return container, dsn, nil
}

func startNATS(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := tcnats.Run(ctx,
		"nats:2.11-alpine",
		tcnats.WithArgument("name", "document-test-nats"),
		tcnats.WithArgument("store_dir", "/data"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start NATS container: %w", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		return container, "", fmt.Errorf("failed to get NATS connection string: %w", err)
	}
	return container, url, nil
}
