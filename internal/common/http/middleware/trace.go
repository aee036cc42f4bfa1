// Package middleware holds the gin middleware shared by the judge HTTP service.
package middleware

import (
	"strings"

	"lessonjudge/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
	// UserIDContextKey holds the caller-supplied learner id on the gin context.
	UserIDContextKey = "user_id"
)

// maxHeaderIDLen caps caller-supplied ids; longer values are replaced.
const maxHeaderIDLen = 128

// TraceContextConfig controls which caller headers are trusted.
type TraceContextConfig struct {
	// AllowUserIDHeader copies X-User-Id onto the request. The id only tags
	// verdict events and logs; it is not an identity.
	AllowUserIDHeader bool
}

// TraceContextMiddleware tags each request with trace and request ids.
func TraceContextMiddleware() gin.HandlerFunc {
	return TraceContextMiddlewareWithConfig(TraceContextConfig{AllowUserIDHeader: true})
}

// TraceContextMiddlewareWithConfig is TraceContextMiddleware with explicit settings.
func TraceContextMiddlewareWithConfig(cfg TraceContextConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := headerID(c, traceIDHeader, true)
		requestID := headerID(c, requestIDHeader, true)

		ctx := contextkey.With(c.Request.Context(), contextkey.TraceID, traceID)
		ctx = contextkey.With(ctx, contextkey.RequestID, requestID)
		c.Set(traceIDContextKey, traceID)
		c.Set(requestIDContextKey, requestID)
		if cfg.AllowUserIDHeader {
			if userID := headerID(c, userIDHeader, false); userID != "" {
				c.Set(UserIDContextKey, userID)
				ctx = contextkey.With(ctx, contextkey.UserID, userID)
			}
		}
		c.Request = c.Request.WithContext(ctx)

		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Next()
	}
}

// headerID reads an id header, generating one when generate is set and the
// header is missing or oversized.
func headerID(c *gin.Context, name string, generate bool) string {
	v := strings.TrimSpace(c.GetHeader(name))
	if len(v) > maxHeaderIDLen || strings.ContainsAny(v, "\r\n") {
		v = ""
	}
	if v == "" && generate {
		v = uuid.NewString()
	}
	return v
}
