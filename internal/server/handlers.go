package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/apperrors"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/model"
	"gitlab.com/nuloafrica/api/document-verification-processor/internal/reqctx"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

// ErrorBody is the error object of every non-2xx response
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps the error body
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// JobsResponse lists an onboarding's jobs
type JobsResponse struct {
	OnboardingID string       `json:"onboarding_id"`
	Jobs         []*model.Job `json:"jobs"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "bad_request", "request body must be a JSON document submission")
		return
	}

	job, err := s.jobs.Submit(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	onboardingID := c.Param("id")
	ctx := reqctx.WithOnboardingID(c.Request.Context(), onboardingID)

	jobs, err := s.jobs.ListJobs(ctx, onboardingID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	c.JSON(http.StatusOK, JobsResponse{OnboardingID: onboardingID, Jobs: jobs})
}

// respondError maps the error taxonomy onto HTTP statuses
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidationError(err), errors.Is(err, apperrors.ErrBadRequest):
		abortWithError(c, http.StatusBadRequest, "validation", err.Error())
	case apperrors.IsNotFoundError(err):
		abortWithError(c, http.StatusNotFound, "not_found", "resource not found")
	case apperrors.IsRetryable(err), apperrors.IsDatabaseError(err):
		logger.FromContextOr(c.Request.Context(), s.logger).Warn("Dependency unavailable", zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
	default:
		logger.FromContextOr(c.Request.Context(), s.logger).Error("Request failed", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "internal", "unexpected server error")
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
