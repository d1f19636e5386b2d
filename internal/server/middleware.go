package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/docker/go-units"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/nuloafrica/api/document-verification-processor/internal/reqctx"
	"gitlab.com/nuloafrica/api/document-verification-processor/pkg/logger"
)

// RequestIDHeader is read from and echoed on every request
const RequestIDHeader = "X-Request-Id"

// RequestID attaches a request id to the request context and the response header
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Request = c.Request.WithContext(reqctx.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// Logging emits one structured line per request
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("response_size", responseSize(c.Writer)),
			zap.String("client_ip", c.ClientIP()),
		}
		reqLog := logger.FromContextOr(c.Request.Context(), log)
		if c.Writer.Status() >= http.StatusInternalServerError {
			reqLog.Warn("Request completed", fields...)
			return
		}
		reqLog.Debug("Request completed", fields...)
	}
}

// responseSize renders the written body size in SI units, e.g. "1.5kB"
func responseSize(w gin.ResponseWriter) string {
	size := w.Size()
	if size < 0 {
		size = 0
	}
	return units.HumanSize(float64(size))
}

// Recovery turns a handler panic into a 500
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContextOr(c.Request.Context(), log).Error("[panic] Recovered from panic in HTTP handler",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path))
				abortWithError(c, http.StatusInternalServerError, "internal", "unexpected server error")
			}
		}()
		c.Next()
	}
}
