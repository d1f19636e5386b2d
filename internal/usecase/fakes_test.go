package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/cache"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/oracle"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage/memory"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/verification"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: utils.Now()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeExtractor struct {
	mu     sync.Mutex
	calls  int
	result func(url string) (*model.ExtractionResult, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, imageURL string) (*model.ExtractionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.result(imageURL)
}

func (f *fakeExtractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeIdentity struct {
	mu    sync.Mutex
	calls int
	resp  *oracle.IdentityResponse
	err   error
}

func (f *fakeIdentity) Verify(ctx context.Context, req oracle.IdentityRequest) (*oracle.IdentityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.resp, f.err
}

func (f *fakeIdentity) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFace struct {
	calls int
	resp  *oracle.FaceResponse
}

func (f *fakeFace) Detect(ctx context.Context, imageURL string) (*oracle.FaceResponse, error) {
	f.calls++
	return f.resp, nil
}

type fakeBank struct {
	calls int
	resp  *oracle.BankResponse
}

func (f *fakeBank) Verify(ctx context.Context, req oracle.BankRequest) (*oracle.BankResponse, error) {
	f.calls++
	return f.resp, nil
}

// fakeFetcher serves fixed bytes per URL; unknown URLs fail transiently
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	docs  map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, documentURL string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if data, ok := f.docs[documentURL]; ok {
		return data, nil
	}
	return nil, apperrors.NewRetryable(errors.New("connection refused"), "document fetch")
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []model.JobMessage
	err  error
}

func (r *recordingPublisher) PublishJob(ctx context.Context, msg model.JobMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingPublisher) Messages() []model.JobMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.JobMessage(nil), r.msgs...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []model.OnboardingStatusChanged
	failed  []model.DocumentFailed
	err     error
}

func (r *recordingNotifier) OnboardingStatusChanged(ctx context.Context, evt model.OnboardingStatusChanged) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, evt)
	return r.err
}

func (r *recordingNotifier) DocumentFailed(ctx context.Context, evt model.DocumentFailed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, evt)
	return r.err
}

func ocrText(text string) func(string) (*model.ExtractionResult, error) {
	return func(string) (*model.ExtractionResult, error) {
		return &model.ExtractionResult{Text: text, Confidence: 91.2, ProcessingTime: 0.8, Language: "eng"}, nil
	}
}

func ocrTimeout(string) (*model.ExtractionResult, error) {
	return nil, apperrors.NewRetryable(apperrors.ErrTimeout, "ocr call timed out after %s", 30*time.Second)
}

var testPipelineConfig = config.PipelineConfig{
	MaxRetries:     3,
	RetryBaseDelay: 30 * time.Second,
	RetryMaxDelay:  15 * time.Minute,
	IdentityDigits: 11,
	StaleAfter:     10 * time.Minute,
	SweepInterval:  time.Minute,
	SweepBatch:     50,
}

type testEnv struct {
	pipeline   *Pipeline
	store      *memory.Store
	clock      *fakeClock
	fetcher    *fakeFetcher
	extractor  *fakeExtractor
	identity   *fakeIdentity
	face       *fakeFace
	bank       *fakeBank
	publisher  *recordingPublisher
	notifier   *recordingNotifier
	jobCache   *JobListCache
	onboarding *model.Onboarding
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger.Log = zaptest.NewLogger(t)

	env := &testEnv{
		store:     memory.NewStore(),
		clock:     newFakeClock(),
		fetcher:   &fakeFetcher{docs: map[string][]byte{}},
		extractor: &fakeExtractor{result: ocrText("FEDERAL REPUBLIC NIN 12345678901")},
		identity:  &fakeIdentity{resp: &oracle.IdentityResponse{Verified: true, Confidence: 94.7, SubjectName: "ADA OBI"}},
		face:      &fakeFace{resp: &oracle.FaceResponse{FaceDetected: true, FaceCount: 1, LivenessDetected: true, Confidence: 90}},
		bank:      &fakeBank{resp: &oracle.BankResponse{AccountValid: true, Confidence: 85, BankName: "First Bank"}},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	env.onboarding = model.NewOnboarding()
	env.store.PutOnboarding(env.onboarding)
	env.jobCache = cache.NewTTLCache[string, []*model.Job]("job_list", time.Minute).WithClock(env.clock.Now)

	dispatcher := verification.NewDispatcher(env.extractor, env.identity, env.face, env.bank, testPipelineConfig.IdentityDigits)
	dedup := NewDeduplicator(env.store, env.fetcher, testPipelineConfig.MaxRetries)
	aggregator := NewAggregator(env.store, env.notifier)
	env.pipeline = NewPipeline(testPipelineConfig, env.store, dedup, dispatcher, aggregator, env.publisher, env.notifier, env.jobCache).
		WithClock(env.clock.Now)
	return env
}

// submit registers a document whose bytes the fake fetcher can serve
func (e *testEnv) submit(t *testing.T, docType, url string) *model.Job {
	t.Helper()
	if _, ok := e.fetcher.docs[url]; !ok {
		e.fetcher.docs[url] = []byte("bytes of " + url)
	}
	job, err := e.pipeline.Submit(context.Background(), &model.SubmitRequest{
		OnboardingID: e.onboarding.ID,
		DocumentType: docType,
		DocumentURL:  url,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", url, err)
	}
	return job
}

func (e *testEnv) storedOnboarding(t *testing.T) *model.Onboarding {
	t.Helper()
	o, err := e.store.FindOnboarding(context.Background(), e.onboarding.ID)
	if err != nil {
		t.Fatalf("find onboarding: %v", err)
	}
	return o
}
