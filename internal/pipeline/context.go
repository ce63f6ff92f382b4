// Package pipeline runs an ordered chain of request interceptors around a
// handler invocation, with short-circuit and response-hook semantics.
package pipeline

import (
	"context"
	"io"
	"net/http"

	"github.com/routefs/routefs/internal/router"
)

// maxBodyBytes bounds buffered request bodies.
const maxBodyBytes = 10 << 20 // 10MB

// Context is the shared mutable request context threaded through the
// middleware chain and the handler. It is scoped to one request and never
// shared across requests.
type Context struct {
	request *http.Request
	params  []router.Param

	values map[string]any

	status int
	header http.Header

	body     []byte
	bodyErr  error
	bodyRead bool
}

// NewContext creates a context for one request.
func NewContext(r *http.Request, params []router.Param) *Context {
	return &Context{
		request: r,
		params:  params,
		header:  make(http.Header),
	}
}

// Request returns the underlying HTTP request.
func (c *Context) Request() *http.Request {
	return c.request
}

// Context returns the request's context.
func (c *Context) Context() context.Context {
	return c.request.Context()
}

// Method returns the request method.
func (c *Context) Method() string {
	return c.request.Method
}

// Path returns the request URL path.
func (c *Context) Path() string {
	return c.request.URL.Path
}

// Param returns the captured path parameter value for name, or "".
func (c *Context) Param(name string) string {
	for _, p := range c.params {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// Params returns the captured path parameters in declaration order.
func (c *Context) Params() []router.Param {
	return c.params
}

// Set stores a value in the per-request bag, passing data from middleware
// to the handler.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get retrieves a value from the per-request bag.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// SetStatus records the response status code to use when the handler
// returns a bare value.
func (c *Context) SetStatus(code int) {
	c.status = code
}

// Status returns the recorded status code, or 0 when unset.
func (c *Context) Status() int {
	return c.status
}

// Header returns the response headers accumulated so far.
func (c *Context) Header() http.Header {
	return c.header
}

// RequestHeader returns a request header value.
func (c *Context) RequestHeader(name string) string {
	return c.request.Header.Get(name)
}

// Body reads and buffers the request body. Repeated calls return the
// same bytes.
func (c *Context) Body() ([]byte, error) {
	if c.bodyRead {
		return c.body, c.bodyErr
	}
	c.bodyRead = true

	if c.request.Body == nil {
		return nil, nil
	}
	defer func() { _ = c.request.Body.Close() }()

	c.body, c.bodyErr = io.ReadAll(io.LimitReader(c.request.Body, maxBodyBytes))
	return c.body, c.bodyErr
}

// Detach returns a copy of the context whose request outlives the
// client connection. Background cache revalidations use it so that an
// aborted request does not cancel the refresh.
func (c *Context) Detach() *Context {
	detachedReq := c.request.Clone(context.WithoutCancel(c.request.Context()))

	detached := NewContext(detachedReq, c.params)
	if len(c.values) > 0 {
		detached.values = make(map[string]any, len(c.values))
		for k, v := range c.values {
			detached.values[k] = v
		}
	}
	return detached
}
