package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/cache"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/fetcher"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/jetstream"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/oracle"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/queue"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/server"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage/memory"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/usecase"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/verification"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/worker"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

const serviceName = "document-verification-processor"

// stores bundles the repositories and their lifecycle
type stores struct {
	jobs        storage.JobRepo
	onboardings storage.OnboardingRepo
	health      storage.HealthChecker
	close       func(ctx context.Context) error
}

func main() {
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting document verification processor",
		zap.String("environment", cfg.Environment),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Int("max_retries", cfg.Pipeline.MaxRetries),
	)

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	st, err := initStores(mainCtx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize storage", zap.Error(err))
	}

	jsClient, err := jetstream.NewClient(cfg.NATS.URL, serviceName)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}
	if err := queue.SetupTopology(mainCtx, jsClient, cfg.NATS); err != nil {
		logger.Log.Fatal("Failed to set up JetStream topology", zap.Error(err))
	}

	docFetcher, err := initFetcher(mainCtx, cfg.Fetcher)
	if err != nil {
		logger.Log.Fatal("Failed to initialize document fetcher", zap.Error(err))
	}

	oracleHTTP := oracle.NewHTTPClient(mainCtx, cfg.Oracles.Auth)
	dispatcher := verification.NewDispatcher(
		oracle.NewOCRClient(cfg.Oracles.OCR, oracleHTTP),
		oracle.NewIdentityClient(cfg.Oracles.Identity, oracleHTTP),
		oracle.NewFaceClient(cfg.Oracles.Face, oracleHTTP),
		oracle.NewBankClient(cfg.Oracles.Bank, oracleHTTP),
		cfg.Pipeline.IdentityDigits,
	)

	var hashFetcher fetcher.Fetcher
	if cfg.Pipeline.HashFetchEnabled {
		hashFetcher = docFetcher
	}

	notifier := queue.NewNotifier(jsClient, cfg.NATS)
	pipeline := usecase.NewPipeline(
		cfg.Pipeline,
		st.jobs,
		usecase.NewDeduplicator(st.jobs, hashFetcher, cfg.Pipeline.MaxRetries),
		dispatcher,
		usecase.NewAggregator(st.onboardings, notifier),
		queue.NewJobPublisher(jsClient, cfg.NATS),
		notifier,
		cache.NewTTLCache[string, []*model.Job]("job_list", cfg.Cache.JobListTTL),
	)
	sweeper := usecase.NewSweeper(pipeline, cfg.Pipeline)

	jobWorker, err := worker.New(jsClient, worker.Options{
		Stream:   cfg.NATS.DocumentsStream,
		Subject:  cfg.NATS.JobsSubject,
		Consumer: cfg.NATS.Jobs,
		Pool:     cfg.WorkerPools.Documents,
	}, worker.NewJobHandler(pipeline, cfg.NATS.Jobs))
	if err != nil {
		logger.Log.Fatal("Failed to initialize job worker", zap.Error(err))
	}

	intakeWorker, err := worker.New(jsClient, worker.Options{
		Stream:   cfg.NATS.DocumentsStream,
		Subject:  cfg.NATS.SubmitSubject,
		Consumer: cfg.NATS.Submissions,
		Pool:     cfg.WorkerPools.Intake,
	}, worker.NewSubmissionHandler(pipeline, cfg.NATS.Submissions))
	if err != nil {
		logger.Log.Fatal("Failed to initialize submission worker", zap.Error(err))
	}

	httpServer := server.New(server.Options{
		Port:           cfg.Server.Port,
		MetricsEnabled: observer.Enabled(),
		Checks: map[string]server.ReadinessCheck{
			"database": st.health.Ping,
			"nats": func(context.Context) error {
				if !jsClient.IsConnected() {
					return fmt.Errorf("nats connection is down")
				}
				return nil
			},
		},
	}, pipeline)
	httpServer.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for name, w := range map[string]*worker.Worker{"jobs": jobWorker, "submissions": intakeWorker} {
		name, w := name, w
		go func() {
			if err := w.Start(mainCtx); err != nil {
				logger.Log.Error("Worker failed to start, initiating shutdown", zap.String("worker", name), zap.Error(err))
				select {
				case sigChan <- syscall.SIGTERM:
				default:
				}
			}
		}()
	}
	utils.SafeGo(func() { sweeper.Run(mainCtx) }, nil)

	logger.Log.Info("Service started",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	mainCancel()

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", timeout))

	var wg sync.WaitGroup
	stop := func(name string, fn func()) { stopAsync(&wg, name, fn) }

	stop("job worker", jobWorker.Stop)
	stop("submission worker", intakeWorker.Stop)
	stop("HTTP server", func() {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		}
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] Workers and HTTP server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, closing connections anyway")
	}

	// Connections close last so in-flight tasks can still settle.
	jsClient.Close()
	if err := st.close(shutdownCtx); err != nil {
		logger.Log.Error("[shutdown] Failed to close storage", zap.Error(err))
	}
	logger.Log.Info("Document verification processor shutdown complete")
}

// initStores connects to Postgres, or falls back to the in-memory store when no DSN is set
func initStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.PostgresDSN == "" {
		if cfg.Environment == "production" {
			return nil, fmt.Errorf("postgres DSN is required in production")
		}
		logger.Log.Warn("No postgres DSN configured, using in-memory storage")
		mem := memory.NewStore()
		return &stores{jobs: mem, onboardings: mem, health: mem, close: mem.Close}, nil
	}

	repo, err := storage.NewPostgresRepo(ctx, cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}
	return &stores{
		jobs:        storage.NewJobRepoAdapter(repo),
		onboardings: storage.NewOnboardingRepoAdapter(repo),
		health:      repo,
		close:       repo.Close,
	}, nil
}

// initFetcher builds the scheme router. S3 is optional; without a region only http(s) URLs are fetched.
func initFetcher(ctx context.Context, cfg config.FetcherConfig) (*fetcher.Router, error) {
	maxBytes, err := cfg.MaxSizeBytes()
	if err != nil {
		return nil, err
	}
	httpFetcher := fetcher.NewHTTPFetcher(cfg.Timeout, maxBytes, cfg.Attempts)

	var s3Fetcher fetcher.Fetcher
	if cfg.S3Region != "" {
		s3f, err := fetcher.NewS3Fetcher(ctx, cfg.S3Region, maxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 fetcher: %w", err)
		}
		s3Fetcher = s3f
	}
	return fetcher.NewRouter(httpFetcher, s3Fetcher), nil
}

// stopAsync runs one shutdown step on its own goroutine and marks wg done exactly once,
// even when the step panics.
func stopAsync(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping " + name)
		start := time.Now()
		fn()
		logger.Log.Info("[shutdown] Stopped "+name, zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping "+name, zap.Any("panic", r), zap.ByteString("stack", stack))
	})
}
