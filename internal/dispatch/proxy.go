package dispatch

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/observability"
	"github.com/routefs/routefs/internal/util"
)

// proxyTracerName is the OpenTelemetry tracer name for upstream calls.
const proxyTracerName = "routefs/proxy"

// hopHeaders are stripped in both directions when forwarding.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy forwards rule-selected requests to an upstream and relays the
// response verbatim. Failures are not retried; a circuit breaker keeps
// a dead upstream from absorbing every request.
type Proxy struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// NewProxy creates a Proxy from the configuration.
func NewProxy(cfg *config.ProxyConfig, logger observability.Logger) *Proxy {
	if logger == nil {
		logger = observability.NopLogger()
	}

	timeout := 30 * time.Second
	var breakerCfg *config.BreakerConfig
	if cfg != nil {
		if d := cfg.Timeout.Duration(); d > 0 {
			timeout = d
		}
		breakerCfg = cfg.Breaker
	}

	p := &Proxy{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				// Redirects are relayed to the client, not followed.
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}

	if breakerCfg != nil && breakerCfg.Enabled {
		p.breaker = newBreaker(breakerCfg, logger)
	}

	return p
}

func newBreaker(cfg *config.BreakerConfig, logger observability.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout.Duration()
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "proxy-upstream",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("proxy breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))
		},
	})
}

// Forward sends the request to the target and writes the upstream
// response to w. On failure nothing is written and an UpstreamError is
// returned for the caller to map to a gateway error.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, target string) error {
	ctx, span := otel.Tracer(proxyTracerName).Start(r.Context(), "proxy.Forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("proxy.target", target),
			attribute.String("http.method", r.Method),
		),
	)
	defer span.End()

	// Path-only targets resolve against the inbound host.
	if !strings.Contains(target, "://") {
		target = "http://" + r.Host + target
	}

	// The inbound query travels with the request.
	if q := r.URL.RawQuery; q != "" {
		if strings.Contains(target, "?") {
			target += "&" + q
		} else {
			target += "?" + q
		}
	}

	outbound, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return util.NewUpstreamError(target, err)
	}

	copyHeaders(outbound.Header, r.Header)
	outbound.Header.Set("X-Forwarded-Host", r.Host)
	outbound.Header.Set("X-Forwarded-Proto", forwardedProto(r))
	if addr := clientAddr(r); addr != "" {
		outbound.Header.Add("X-Forwarded-For", addr)
	}

	resp, err := p.roundTrip(outbound)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return util.NewUpstreamError(target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	GetMetrics().proxyRequestsTotal.WithLabelValues(
		strconv.Itoa(resp.StatusCode)).Inc()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)

	return nil
}

// roundTrip executes the upstream call through the breaker when one is
// configured.
func (p *Proxy) roundTrip(r *http.Request) (*http.Response, error) {
	if p.breaker == nil {
		return p.client.Do(r)
	}

	result, err := p.breaker.Execute(func() (any, error) {
		return p.client.Do(r)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// copyHeaders copies headers, skipping hop-by-hop ones.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, hop := range hopHeaders {
		if strings.EqualFold(name, hop) {
			return true
		}
	}
	return false
}

func forwardedProto(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		return addr[:i]
	}
	return addr
}
