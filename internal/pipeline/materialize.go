package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Materialize converts a handler's return value into a concrete Response,
// folding in any status and headers the handler set on the context.
// Strings become text/plain bodies, byte slices are passed through
// unlabeled, a *Response is taken verbatim, nil produces an empty body,
// and anything else is JSON-encoded.
func Materialize(c *Context, result any) (*Response, error) {
	if resp, ok := result.(*Response); ok {
		return resp, nil
	}

	resp := &Response{
		Status: c.Status(),
		Header: make(http.Header),
	}
	for name, values := range c.Header() {
		resp.Header[name] = append([]string(nil), values...)
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}

	switch v := result.(type) {
	case nil:
		if c.Status() == 0 && c.Method() != http.MethodHead {
			resp.Status = http.StatusNoContent
		}
	case string:
		resp.Body = []byte(v)
		if resp.Header.Get("Content-Type") == "" {
			resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	case []byte:
		resp.Body = v
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("serialize response: %w", err)
		}
		resp.Body = body
		if resp.Header.Get("Content-Type") == "" {
			resp.Header.Set("Content-Type", "application/json; charset=utf-8")
		}
	}

	return resp, nil
}

// Clone returns a deep copy of the response. Cached and flight-shared
// responses are cloned before callers mutate headers.
func (r *Response) Clone() *Response {
	clone := &Response{
		Status: r.Status,
		Header: make(http.Header, len(r.Header)),
		Body:   append([]byte(nil), r.Body...),
	}
	for name, values := range r.Header {
		clone.Header[name] = append([]string(nil), values...)
	}
	return clone
}
