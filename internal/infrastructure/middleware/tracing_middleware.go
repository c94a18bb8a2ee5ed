package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"huddle/pkg/tracing"
)

// TracingMiddleware opens a server span per request named after the route
// template, so /api/channels/:id/messages is one span name for all channels.
// Session identity and channel id are attached when present.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, route)
		defer span.End()

		span.SetAttributes(attribute.String("http.client_ip", c.ClientIP()))
		if id := c.Param("id"); id != "" {
			span.SetAttributes(tracing.ChannelIDKey.String(id))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if who, ok := SessionParticipant(c); ok {
			span.SetAttributes(tracing.UserIDKey.String(string(who.ID)))
		}
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))

		switch {
		case c.Writer.Status() >= 500:
			span.SetStatus(codes.Error, c.Errors.String())
		case len(c.Errors) > 0:
			span.SetAttributes(attribute.String("app.error", c.Errors.Last().Error()))
		}
	}
}
