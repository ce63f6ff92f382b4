package pipeline

import (
	"net/http"
	"sort"
)

// Handler produces a response value for a request. A nil result with a
// nil error means the handler expressed its response through the context
// (status and headers) with an empty body.
type Handler func(c *Context) (any, error)

// MiddlewareFunc is one interceptor. Returning a non-nil value
// short-circuits the chain: that value becomes the final response and
// nothing further runs. Returning (nil, nil) passes control on.
type MiddlewareFunc func(c *Context) (any, error)

// ResponseHook observes the handler's response before it is sent. Hooks
// may mutate the context but conventionally do not replace the payload.
type ResponseHook func(c *Context, result any) error

// HandlerSpec is the object-syntax handler declaration: request-phase
// interceptors, the handler itself, and response-phase hooks, executed in
// that strict order.
type HandlerSpec struct {
	OnRequest        []MiddlewareFunc
	Handler          Handler
	OnBeforeResponse []ResponseHook
}

// MiddlewareEntry is one globally registered interceptor.
type MiddlewareEntry struct {
	// Name identifies the entry in logs and errors.
	Name string

	// Order is the explicit numeric filename prefix. Entries without a
	// prefix sort after all prefixed entries, in listing order.
	Order int

	// Prefixed reports whether Order was set explicitly.
	Prefixed bool

	// Match optionally scopes the entry to some paths. Nil matches all.
	Match func(path string) bool

	// Fn is the interceptor body.
	Fn MiddlewareFunc
}

// Pipeline is a compiled, immutable middleware chain. Ordering is
// computed once at build time and fixed for the process lifetime.
type Pipeline struct {
	entries []MiddlewareEntry
}

// Build orders the entries and returns a Pipeline. The sort is stable so
// equal-order entries and unprefixed entries keep their listing order.
func Build(entries []MiddlewareEntry) *Pipeline {
	ordered := make([]MiddlewareEntry, len(entries))
	copy(ordered, entries)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Prefixed != b.Prefixed {
			return a.Prefixed
		}
		if a.Prefixed {
			return a.Order < b.Order
		}
		return false
	})

	return &Pipeline{entries: ordered}
}

// Entries returns the ordered entries.
func (p *Pipeline) Entries() []MiddlewareEntry {
	out := make([]MiddlewareEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Run executes global middleware, the handler spec's request phase, the
// handler, and the response phase, honoring the short-circuit contract:
// the first non-nil value returned by any interceptor is the final
// response and skips everything after it, including the response hooks.
func (p *Pipeline) Run(c *Context, spec *HandlerSpec) (any, error) {
	for _, entry := range p.entries {
		if entry.Match != nil && !entry.Match(c.Path()) {
			continue
		}
		if result, err := entry.Fn(c); err != nil || result != nil {
			return result, err
		}
	}

	if spec == nil {
		return nil, nil
	}

	for _, fn := range spec.OnRequest {
		if result, err := fn(c); err != nil || result != nil {
			return result, err
		}
	}

	var result any
	if spec.Handler != nil {
		var err error
		result, err = spec.Handler(c)
		if err != nil {
			return nil, err
		}
	}

	for _, hook := range spec.OnBeforeResponse {
		if err := hook(c, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Response is a fully materialized response: interceptors and the cache
// decorator return it when they need to control status and headers, and
// the dispatcher writes it verbatim.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse builds a Response with a single content type header.
func NewResponse(status int, contentType string, body []byte) *Response {
	header := make(http.Header, 1)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &Response{Status: status, Header: header, Body: body}
}
