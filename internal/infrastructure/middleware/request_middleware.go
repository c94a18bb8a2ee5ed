package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"huddle/pkg/logger"
	"huddle/pkg/tracing"
	"huddle/pkg/utils"
)

const (
	RequestIDHeader = "X-Request-ID"
	// VoiceActiveHeader tells a poller whether it is still in the voice room.
	// A client that sees "false" has been dropped and must join again.
	VoiceActiveHeader = "X-Voice-Active"
)

// RequestIDMiddleware propagates or assigns a request id and stores it, with
// the trace id when there is one, in the request context for ContextLogger.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		c.Header(RequestIDHeader, id)

		ctx := logger.WithValue(c.Request.Context(), logger.RequestIDKey, id)
		if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
			ctx = logger.WithValue(ctx, logger.TraceIDKey, traceID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// HTTPObserver receives per-request measurements.
type HTTPObserver interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// AccessLogMiddleware logs each request through cl and reports it to obs,
// which may be nil. Client errors log at warn and server errors at error.
func AccessLogMiddleware(cl *logger.ContextLogger, obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if obs != nil {
			obs.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), elapsed)
		}
		status := c.Writer.Status()
		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			cl.LogError(ctx, requestError(c, status), "http_request", requestFields(c, status, elapsed)...)
		case status >= http.StatusBadRequest:
			cl.LogWarn(ctx, "http_request", requestFields(c, status, elapsed)...)
		default:
			cl.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, status, elapsed.Milliseconds())
		}
	}
}

func requestFields(c *gin.Context, status int, elapsed time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status_code", status),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
}

func requestError(c *gin.Context, status int) error {
	if last := c.Errors.Last(); last != nil {
		return last.Err
	}
	return fmt.Errorf("%d %s", status, http.StatusText(status))
}

// CORSMiddleware allows the configured origins, or any origin when the list
// is empty or contains "*".
func CORSMiddleware(allowedOrigins []string, log *zap.SugaredLogger) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", RequestIDHeader)
	cfg.ExposeHeaders = []string{RequestIDHeader, VoiceActiveHeader}
	cfg.MaxAge = 12 * time.Hour

	allowAll := len(allowedOrigins) == 0
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}

	log.Debugw("cors configured", "allow_all", allowAll, "origins", allowedOrigins)
	return cors.New(cfg)
}
