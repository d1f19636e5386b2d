package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/utils"
)

const readyCheckTimeout = 2 * time.Second

// JobService is the pipeline surface exposed over HTTP
type JobService interface {
	Submit(ctx context.Context, req *model.SubmitRequest) (*model.Job, error)
	ListJobs(ctx context.Context, onboardingID string) ([]*model.Job, error)
}

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Server is the HTTP surface: probes, metrics and the job endpoints
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	jobs       JobService
	checks     map[string]ReadinessCheck
	logger     *zap.Logger
}

// HealthResponse is the response structure for health check endpoints
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Options configures the server
type Options struct {
	Port           int
	MetricsEnabled bool
	Checks         map[string]ReadinessCheck
}

// New creates the server and registers all routes
func New(opts Options, jobs JobService) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	log := logger.Log.Named("http")

	s := &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		jobs:   jobs,
		checks: opts.Checks,
		logger: log,
	}

	engine.Use(RequestID(), Logging(log), Recovery(log))

	engine.GET("/health", s.handleHealth)
	engine.GET("/ready", s.handleReady)
	if opts.MetricsEnabled {
		log.Info("Registering /metrics endpoint")
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := engine.Group("/v1")
	v1.POST("/documents", s.handleSubmit)
	v1.GET("/onboardings/:id/jobs", s.handleListJobs)

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving in the background
func (s *Server) Start() {
	utils.SafeGo(func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}, nil)
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealth is the liveness probe
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "UP", Version: "1.0.0"})
}

// handleReady runs every readiness check; any failure makes the service unready
func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyCheckTimeout)
	defer cancel()

	details := map[string]string{"timestamp": utils.FormatISO8601(utils.Now())}
	status, code := "READY", http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			details[name] = "DOWN"
			status, code = "NOT_READY", http.StatusServiceUnavailable
			continue
		}
		details[name] = "UP"
	}
	c.JSON(code, HealthResponse{Status: status, Details: details})
}
