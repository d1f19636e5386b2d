//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/suite"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/cache"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/config"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/jetstream"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/oracle"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/queue"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/storage"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/usecase"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/verification"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/worker"
)

// PipelineE2ETestSuite runs both workers against Postgres, JetStream and a stub face oracle.
type PipelineE2ETestSuite struct {
	BaseIntegrationSuite
	client      *jetstream.Client
	nc          *natsgo.Conn
	faceOracle  *httptest.Server
	faceCalls   atomic.Int32
	faceLive    atomic.Bool
	natsCfg     config.NATSConfig
	pipeline    *usecase.Pipeline
	workers     []*worker.Worker
	stopWorkers func()
}

func TestPipelineE2ESuite(t *testing.T) {
	suite.Run(t, new(PipelineE2ETestSuite))
}

func (s *PipelineE2ETestSuite) SetupSuite() {
	s.BaseIntegrationSuite.SetupSuite()

	var err error
	s.client, err = jetstream.NewClient(s.NATSURL, "pipeline-e2e")
	s.Require().NoError(err)
	s.nc, err = natsgo.Connect(s.NATSURL)
	s.Require().NoError(err)

	s.faceOracle = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.faceCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oracle.FaceResponse{
			FaceDetected:     true,
			FaceCount:        1,
			LivenessDetected: s.faceLive.Load(),
			Confidence:       91.6,
		})
	}))
}

func (s *PipelineE2ETestSuite) TearDownSuite() {
	if s.faceOracle != nil {
		s.faceOracle.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	s.BaseIntegrationSuite.TearDownSuite()
}

func (s *PipelineE2ETestSuite) SetupTest() {
	s.BaseIntegrationSuite.SetupTest()
	s.faceCalls.Store(0)
	s.faceLive.Store(true)

	s.natsCfg = testNATSConfig(s.NATSURL, "e2e_"+s.T().Name()[len("TestPipelineE2ESuite/"):])
	s.Require().NoError(queue.SetupTopology(s.Ctx, s.client, s.natsCfg))

	pipelineCfg := config.PipelineConfig{
		MaxRetries:     3,
		RetryBaseDelay: 50 * time.Millisecond,
		RetryMaxDelay:  200 * time.Millisecond,
		IdentityDigits: 11,
		StaleAfter:     time.Minute,
		SweepBatch:     10,
	}

	jobs := storage.NewJobRepoAdapter(s.Repo)
	httpClient := &http.Client{}
	unused := config.OracleEndpoint{URL: s.faceOracle.URL + "/unused"}
	dispatcher := verification.NewDispatcher(
		oracle.NewOCRClient(unused, httpClient),
		oracle.NewIdentityClient(unused, httpClient),
		oracle.NewFaceClient(config.OracleEndpoint{URL: s.faceOracle.URL, Timeout: 5 * time.Second}, httpClient),
		oracle.NewBankClient(unused, httpClient),
		pipelineCfg.IdentityDigits,
	)
	notifier := queue.NewNotifier(s.client, s.natsCfg)
	s.pipeline = usecase.NewPipeline(
		pipelineCfg,
		jobs,
		usecase.NewDeduplicator(jobs, nil, pipelineCfg.MaxRetries),
		dispatcher,
		usecase.NewAggregator(storage.NewOnboardingRepoAdapter(s.Repo), notifier),
		queue.NewJobPublisher(s.client, s.natsCfg),
		notifier,
		cache.NewTTLCache[string, []*model.Job]("job_list_e2e", 0),
	)

	pool := config.WorkerPoolConfig{PoolSize: 4, QueueSize: 10, ExpiryTime: time.Minute, TaskTimeout: 30 * time.Second}
	jobWorker, err := worker.New(s.client, worker.Options{
		Stream: s.natsCfg.DocumentsStream, Subject: s.natsCfg.JobsSubject, Consumer: s.natsCfg.Jobs, Pool: pool,
	}, worker.NewJobHandler(s.pipeline, s.natsCfg.Jobs))
	s.Require().NoError(err)
	intakeWorker, err := worker.New(s.client, worker.Options{
		Stream: s.natsCfg.DocumentsStream, Subject: s.natsCfg.SubmitSubject, Consumer: s.natsCfg.Submissions, Pool: pool,
	}, worker.NewSubmissionHandler(s.pipeline, s.natsCfg.Submissions))
	s.Require().NoError(err)

	s.workers = []*worker.Worker{jobWorker, intakeWorker}
	for _, w := range s.workers {
		w := w
		go func() { _ = w.Start(s.Ctx) }()
	}
	s.stopWorkers = func() {
		for _, w := range s.workers {
			w.Stop()
		}
	}
}

func (s *PipelineE2ETestSuite) TearDownTest() {
	if s.stopWorkers != nil {
		s.stopWorkers()
	}
}

func (s *PipelineE2ETestSuite) submit(req *model.SubmitRequest) {
	data, err := json.Marshal(req)
	s.Require().NoError(err)
	s.Require().NoError(s.client.Publish(s.Ctx, s.natsCfg.SubmitSubject, data, map[string]string{
		worker.RequestIDHeader: "e2e-" + req.OnboardingID,
	}))
}

func (s *PipelineE2ETestSuite) waitForJobs(onboardingID string, n int, settled bool) []*model.Job {
	var jobs []*model.Job
	s.Require().Eventually(func() bool {
		var err error
		jobs, err = s.Repo.FindByOnboarding(s.Ctx, onboardingID)
		if err != nil || len(jobs) != n {
			return false
		}
		if !settled {
			return true
		}
		for _, j := range jobs {
			if j.Status != model.JobStatusCompleted && j.Status != model.JobStatusFailed {
				return false
			}
		}
		return true
	}, 20*time.Second, 100*time.Millisecond)
	return jobs
}

func (s *PipelineE2ETestSuite) TestSelfieSubmissionVerifiesOnboarding() {
	o := s.CreateOnboarding()
	statusSub, err := s.nc.SubscribeSync(s.natsCfg.StatusSubject + "." + o.ID)
	s.Require().NoError(err)
	defer func() { _ = statusSub.Unsubscribe() }()

	s.submit(&model.SubmitRequest{OnboardingID: o.ID, DocumentType: "selfie", DocumentURL: "https://cdn.example.com/selfie.jpg"})

	jobs := s.waitForJobs(o.ID, 1, true)
	s.Equal(model.JobStatusCompleted, jobs[0].Status)
	s.Require().NotNil(jobs[0].ConfidenceScore)
	s.Equal(92, *jobs[0].ConfidenceScore)

	stored, err := s.Repo.FindOnboarding(s.Ctx, o.ID)
	s.Require().NoError(err)
	s.True(stored.SelfieVerified)
	s.Equal(model.ProcessingCompleted, stored.DocumentProcessingStatus)

	// pending -> in_progress on submission, then in_progress -> completed.
	var last model.OnboardingStatusChanged
	for {
		m, err := statusSub.NextMsg(5 * time.Second)
		s.Require().NoError(err)
		s.Require().NoError(json.Unmarshal(m.Data, &last))
		if last.Current == model.ProcessingCompleted {
			break
		}
	}
	s.Equal(o.ID, last.OnboardingID)
}

func (s *PipelineE2ETestSuite) TestDuplicateSubmissionsProcessOnce() {
	o := s.CreateOnboarding()
	req := &model.SubmitRequest{OnboardingID: o.ID, DocumentType: "selfie", DocumentURL: "https://cdn.example.com/twice.jpg"}
	for i := 0; i < 3; i++ {
		s.submit(req)
	}

	jobs := s.waitForJobs(o.ID, 1, true)
	s.Equal(model.JobStatusCompleted, jobs[0].Status)

	// Give stray deliveries a moment; the oracle must still have been called once.
	time.Sleep(500 * time.Millisecond)
	s.Equal(int32(1), s.faceCalls.Load())
}

func (s *PipelineE2ETestSuite) TestRejectedSelfieFailsAndNotifies() {
	s.faceLive.Store(false)
	o := s.CreateOnboarding()
	failedSub, err := s.nc.SubscribeSync(s.natsCfg.DocumentFailedSubj + "." + o.ID)
	s.Require().NoError(err)
	defer func() { _ = failedSub.Unsubscribe() }()

	s.submit(&model.SubmitRequest{OnboardingID: o.ID, DocumentType: "selfie", DocumentURL: "https://cdn.example.com/photo-of-photo.jpg"})

	jobs := s.waitForJobs(o.ID, 1, true)
	s.Equal(model.JobStatusFailed, jobs[0].Status)
	s.Require().NotNil(jobs[0].ErrorMessage)
	s.Contains(*jobs[0].ErrorMessage, "liveness not detected")

	m, err := failedSub.NextMsg(5 * time.Second)
	s.Require().NoError(err)
	var evt model.DocumentFailed
	s.Require().NoError(json.Unmarshal(m.Data, &evt))
	s.Equal(jobs[0].ID, evt.JobID)

	stored, err := s.Repo.FindOnboarding(s.Ctx, o.ID)
	s.Require().NoError(err)
	s.False(stored.SelfieVerified)
	s.Equal(model.ProcessingFailed, stored.DocumentProcessingStatus)
}

func (s *PipelineE2ETestSuite) TestUnknownDocumentTypeIsRecordedAsFailed() {
	o := s.CreateOnboarding()
	s.submit(&model.SubmitRequest{OnboardingID: o.ID, DocumentType: "utility_bill_scan", DocumentURL: "https://cdn.example.com/bill.pdf"})

	jobs := s.waitForJobs(o.ID, 1, true)
	s.Equal(model.JobStatusFailed, jobs[0].Status)
	s.Zero(s.faceCalls.Load())
}

func (s *PipelineE2ETestSuite) TestListJobsReturnsNewestFirst() {
	o := s.CreateOnboarding()
	s.submit(&model.SubmitRequest{OnboardingID: o.ID, DocumentType: "selfie", DocumentURL: "https://cdn.example.com/a.jpg"})
	s.waitForJobs(o.ID, 1, true)
	s.submit(&model.SubmitRequest{OnboardingID: o.ID, DocumentType: "selfie", DocumentURL: "https://cdn.example.com/b.jpg"})
	s.waitForJobs(o.ID, 2, true)

	listed, err := s.pipeline.ListJobs(s.Ctx, o.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.False(listed[0].CreatedAt.Before(listed[1].CreatedAt))
	s.Equal("https://cdn.example.com/b.jpg", listed[0].DocumentURL)
}
