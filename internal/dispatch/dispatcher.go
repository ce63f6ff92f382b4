// Package dispatch composes rule resolution, route matching, caching and
// the middleware pipeline into the request serving path.
package dispatch

import (
	"errors"
	"net/http"
	"time"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/internal/discovery"
	"github.com/routefs/routefs/internal/observability"
	"github.com/routefs/routefs/internal/pipeline"
	"github.com/routefs/routefs/internal/router"
	"github.com/routefs/routefs/internal/rules"
	"github.com/routefs/routefs/internal/util"
)

// Dispatcher serves requests by resolving route rules, matching the
// routing tree and running the middleware pipeline around the handler.
// It is immutable after construction and safe for concurrent use.
type Dispatcher struct {
	matcher   *router.Matcher
	resolver  *rules.Resolver
	pipeline  *pipeline.Pipeline
	registry  *discovery.Registry
	decorator *cache.Decorator
	proxy     *Proxy
	logger    observability.Logger
}

// Options carries the collaborators a Dispatcher is assembled from.
type Options struct {
	Matcher   *router.Matcher
	Resolver  *rules.Resolver
	Pipeline  *pipeline.Pipeline
	Registry  *discovery.Registry
	Decorator *cache.Decorator
	Proxy     *Proxy
	Logger    observability.Logger
}

// New creates a Dispatcher. Nil collaborators degrade to no-ops so the
// dispatcher stays usable in partial assemblies and tests.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		matcher:   opts.Matcher,
		resolver:  opts.Resolver,
		pipeline:  opts.Pipeline,
		registry:  opts.Registry,
		decorator: opts.Decorator,
		proxy:     opts.Proxy,
		logger:    opts.Logger,
	}
	if d.logger == nil {
		d.logger = observability.NopLogger()
	}
	if d.pipeline == nil {
		d.pipeline = pipeline.Build(nil)
	}
	if d.resolver == nil {
		d.resolver, _ = rules.Compile(nil)
	}
	return d
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("request handling panicked",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Any("panic", rec))
			if !sw.wrote {
				util.WriteJSONError(sw, http.StatusInternalServerError, "internal server error")
			}
		}
		GetMetrics().observe(r.Method, sw.status, time.Since(start))
	}()

	d.dispatch(sw, r)
}

func (d *Dispatcher) dispatch(w *statusWriter, r *http.Request) {
	path := util.NormalizePath(r.URL.Path)
	resolved := d.resolver.Resolve(path)

	if resolved.Redirect != nil {
		d.applyRuleHeaders(w.Header(), resolved)
		http.Redirect(w, r, resolved.Redirect.To, resolved.Redirect.Status)
		return
	}

	if resolved.Proxy != nil {
		d.forward(w, r, resolved)
		return
	}

	if resolved.CORS && isPreflight(r) {
		d.applyRuleHeaders(w.Header(), resolved)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	match := d.match(r.Method, path)
	if match == nil {
		d.applyRuleHeaders(w.Header(), resolved)
		d.writeError(w, r, util.NewRouteNotFoundError(r.Method, path))
		return
	}

	spec, ok := d.registry.Handler(match.Entry.HandlerRef)
	if !ok {
		d.logger.Error("matched route has no handler",
			observability.String("ref", match.Entry.HandlerRef))
		util.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Expose the matched pattern to context-aware log enrichment.
	r = r.WithContext(util.ContextWithRoute(r.Context(), match.Entry.Pattern))
	c := pipeline.NewContext(r, match.Params)

	effective := *spec
	if resolved.Cache != nil && d.decorator != nil && spec.Handler != nil {
		effective.Handler = d.decorator.Wrap(spec.Handler, resolved.Cache)
	}

	result, err := d.pipeline.Run(c, &effective)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	resp, err := pipeline.Materialize(c, result)
	if err != nil {
		d.writeError(w, r, err)
		return
	}

	d.writeResponse(w, resp, resolved)
}

// isPreflight reports whether the request is a CORS preflight probe.
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

// match resolves the route, falling back to the registered root
// catch-all for paths the tree cannot place (the bare root), and to nil
// when no matcher is wired at all.
func (d *Dispatcher) match(method, path string) *router.MatchResult {
	if d.matcher == nil {
		return nil
	}
	if result := d.matcher.Match(method, path); result != nil {
		return result
	}
	return d.matcher.CatchAll(method, path)
}

// forward hands the request to the proxy and maps upstream failures to
// a gateway error response.
func (d *Dispatcher) forward(w *statusWriter, r *http.Request, resolved *rules.Resolved) {
	if d.proxy == nil {
		util.WriteJSONError(w, http.StatusBadGateway, "no upstream proxy configured")
		return
	}

	d.applyRuleHeaders(w.Header(), resolved)
	if err := d.proxy.Forward(w, r, resolved.Proxy.To); err != nil {
		d.logger.Warn("proxy upstream failed",
			observability.String("target", resolved.Proxy.To),
			observability.Error(err))
		if !w.wrote {
			util.WriteJSONError(w, http.StatusBadGateway, "upstream request failed")
		}
	}
}

// writeError maps failures onto responses. No-match errors are 404s,
// upstream errors are gateway errors, everything else is an isolated 500.
func (d *Dispatcher) writeError(w *statusWriter, r *http.Request, err error) {
	var notFound *util.RouteNotFoundError
	if errors.As(err, &notFound) {
		util.WriteJSONError(w, http.StatusNotFound, "not found: "+notFound.Path)
		return
	}

	var upstreamErr *util.UpstreamError
	if errors.As(err, &upstreamErr) {
		d.logger.Warn("upstream failure",
			observability.String("path", r.URL.Path),
			observability.Error(err))
		util.WriteJSONError(w, http.StatusBadGateway, "upstream request failed")
		return
	}

	d.logger.Error("request failed",
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.Error(err))
	util.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
}

// writeResponse writes the materialized response with the rule's header
// and CORS additions applied last.
func (d *Dispatcher) writeResponse(w *statusWriter, resp *pipeline.Response, resolved *rules.Resolved) {
	header := w.Header()
	for name, values := range resp.Header {
		header[name] = values
	}
	d.applyRuleHeaders(header, resolved)

	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

// applyRuleHeaders adds the resolved rule's headers and permissive CORS
// headers to the response.
func (d *Dispatcher) applyRuleHeaders(header http.Header, resolved *rules.Resolved) {
	for name, value := range resolved.Headers {
		header.Set(name, value)
	}
	if resolved.CORS {
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "*")
	}
}

// statusWriter records the written status code for metrics and tracks
// whether a response has started, so error paths do not double-write.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.wrote {
		return
	}
	w.wrote = true
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}
