package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/jetstream"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/observer"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/worker"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

const defaultBatchSize = 20

// submissionBatch is one unit of work for the publishing pool.
type submissionBatch struct {
	Requests []*model.SubmitRequest
	Subject  string
	Client   jetstream.ClientInterface
}

// generator produces submissions over a fixed set of onboardings and re-sends
// earlier documents at the configured ratio to exercise deduplication.
type generator struct {
	mu             sync.Mutex
	rnd            *rand.Rand
	onboardings    []string
	types          []string
	duplicateRatio float64
	sent           []*model.SubmitRequest
}

func newGenerator(onboardings int, types []string, duplicateRatio float64) *generator {
	ids := make([]string, onboardings)
	for i := range ids {
		ids[i] = gofakeit.UUID()
	}
	return &generator{
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
		onboardings:    ids,
		types:          types,
		duplicateRatio: duplicateRatio,
	}
}

func (g *generator) next() *model.SubmitRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.sent) > 0 && g.rnd.Float64() < g.duplicateRatio {
		prev := *g.sent[g.rnd.Intn(len(g.sent))]
		return &prev
	}

	req := model.NewSubmitRequest(&model.SubmitRequest{
		OnboardingID: g.onboardings[g.rnd.Intn(len(g.onboardings))],
		DocumentType: g.types[g.rnd.Intn(len(g.types))],
	})
	if len(g.sent) < 1000 {
		g.sent = append(g.sent, req)
	}
	return req
}

func main() {
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	natsURL := flag.String("url", cfg.NATS.URL, "NATS server URL")
	subject := flag.String("subject", cfg.NATS.SubmitSubject, "Submission subject")
	rate := flag.Int("rate", 20, "Target submissions per second")
	duration := flag.Duration("duration", time.Minute, "Load test duration")
	concurrency := flag.Int("concurrency", 5, "Number of concurrent publishers")
	batchSize := flag.Int("batch-size", defaultBatchSize, "Submissions per publisher batch")
	onboardings := flag.Int("onboardings", 50, "Number of distinct onboardings to spread submissions over")
	duplicateRatio := flag.Float64("duplicate-ratio", 0.2, "Fraction of submissions that repeat an earlier document")
	typesStr := flag.String("types", "", "Comma-separated document types (default: all known types)")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Document submission load generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *batchSize <= 0 {
		*batchSize = defaultBatchSize
	}
	if *rate <= 0 || *onboardings <= 0 {
		fmt.Println("rate and onboardings must be positive")
		os.Exit(1)
	}

	if err := logger.Initialize(*logLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	types, err := parseTypes(*typesStr)
	if err != nil {
		logger.Log.Fatal("Invalid document types", zap.Error(err))
	}

	observer.InitMetrics(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := startMetricsServer(*metricsPort)
	var metricsWg sync.WaitGroup
	metricsWg.Add(1)
	go func() {
		defer metricsWg.Done()
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}()

	logger.Log.Info("Starting document load generator",
		zap.String("nats_url", *natsURL),
		zap.String("subject", *subject),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Int("batch_size", *batchSize),
		zap.Int("onboardings", *onboardings),
		zap.Float64("duplicate_ratio", *duplicateRatio),
		zap.Strings("types", types),
	)

	natsClient, err := jetstream.NewClient(*natsURL, "document-loadgen")
	if err != nil {
		logger.Log.Fatal("Failed to connect to NATS", zap.String("url", *natsURL), zap.Error(err))
	}
	defer natsClient.Close()

	gofakeit.Seed(time.Now().UnixNano())
	gen := newGenerator(*onboardings, types, *duplicateRatio)

	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		publishBatch(context.Background(), data.(submissionBatch), &wg)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runLoadLoop(ctx, *rate, *duration, *batchSize, *subject, gen, natsClient, pool, &wg)
	}()

	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal, shutting down", zap.String("signal", sig.String()))
	case <-loopDone:
		logger.Log.Info("Load generation finished")
	}
	cancel()

	<-loopDone
	wg.Wait()
	metricsWg.Wait()
	logger.Log.Info("Load generator shutdown complete")
}

func parseTypes(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		known := model.KnownDocumentTypes()
		out := make([]string, len(known))
		for i, t := range known {
			out[i] = string(t)
		}
		return out, nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		t, _ := model.NormalizeDocumentType(part)
		if !t.IsKnown() {
			return nil, fmt.Errorf("unknown document type %q", part)
		}
		out = append(out, string(t))
	}
	return out, nil
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return server
}

// runLoadLoop generates submissions at rate and hands them to the pool in batches
// until duration elapses or ctx is cancelled.
func runLoadLoop(ctx context.Context, rate int, duration time.Duration, batchSize int, subject string, gen *generator, nc jetstream.ClientInterface, pool *ants.PoolWithFunc, wg *sync.WaitGroup) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	timer := time.NewTimer(duration)
	defer timer.Stop()

	batch := make([]*model.SubmitRequest, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		wg.Add(1)
		if err := pool.Invoke(submissionBatch{Requests: batch, Subject: subject, Client: nc}); err != nil {
			wg.Done()
			logger.Log.Warn("Failed to invoke worker pool", zap.Int("batch", len(batch)), zap.Error(err))
			for range batch {
				observer.IncLoadgenPublishErrors(subject)
			}
		}
		batch = make([]*model.SubmitRequest, 0, batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			flush()
			return
		case <-ticker.C:
			observer.IncLoadgenMessagesAttempted(subject)
			batch = append(batch, gen.next())
			if len(batch) >= batchSize {
				flush()
			}
		}
	}
}

func publishBatch(ctx context.Context, batch submissionBatch, wg *sync.WaitGroup) {
	defer wg.Done()

	for _, req := range batch.Requests {
		data, err := json.Marshal(req)
		if err != nil {
			logger.Log.Error("Failed to marshal submission", zap.Error(err))
			observer.IncLoadgenPublishErrors(batch.Subject)
			continue
		}

		headers := map[string]string{worker.RequestIDHeader: uuid.NewString()}
		if err := batch.Client.Publish(ctx, batch.Subject, data, headers); err != nil {
			logger.Log.Error("Failed to publish submission",
				zap.String("onboarding_id", req.OnboardingID),
				zap.String("document_type", req.DocumentType),
				zap.Error(err),
			)
			observer.IncLoadgenPublishErrors(batch.Subject)
			continue
		}
		observer.IncLoadgenMessagesPublished(batch.Subject)
	}
}
