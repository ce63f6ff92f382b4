package pipeline

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/observability"
	"github.com/routefs/routefs/internal/util"
)

// RequestIDHeader is the header name for request IDs.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a middleware that attaches a request ID to the
// request context and response headers, generating one when the client
// did not send one.
func RequestID() MiddlewareFunc {
	return func(c *Context) (any, error) {
		requestID := c.RequestHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := util.ContextWithRequestID(c.Context(), requestID)
		c.request = c.request.WithContext(ctx)
		c.Header().Set(RequestIDHeader, requestID)

		return nil, nil
	}
}

// AccessLog returns a middleware that logs each request as it enters the
// pipeline.
func AccessLog(logger observability.Logger) MiddlewareFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(c *Context) (any, error) {
		logger.WithContext(c.Context()).Info("request received",
			observability.String("method", c.Method()),
			observability.String("path", c.Path()),
		)
		return nil, nil
	}
}

// rateLimiterEntry tracks one client's limiter and its last use for
// idle eviction.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns a middleware that applies a per-client token bucket.
// Exhausted clients receive a 429 response via the short-circuit path.
func RateLimit(cfg *config.RateLimitConfig) MiddlewareFunc {
	if cfg == nil || !cfg.Enabled {
		return func(*Context) (any, error) { return nil, nil }
	}

	var mu sync.Mutex
	clients := make(map[string]*rateLimiterEntry)
	lastSweep := time.Now()

	return func(c *Context) (any, error) {
		key := clientIP(c)

		mu.Lock()
		entry, ok := clients[key]
		if !ok {
			entry = &rateLimiterEntry{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			clients[key] = entry
		}
		entry.lastSeen = time.Now()

		if time.Since(lastSweep) > time.Minute {
			for k, e := range clients {
				if time.Since(e.lastSeen) > 10*time.Minute {
					delete(clients, k)
				}
			}
			lastSweep = time.Now()
		}
		mu.Unlock()

		if !entry.limiter.Allow() {
			return NewResponse(429, "application/json",
				[]byte(`{"error":"rate limit exceeded"}`)), nil
		}

		return nil, nil
	}
}

// clientIP extracts the client address, ignoring the port.
func clientIP(c *Context) string {
	addr := c.Request().RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
