package cache

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/routefs/routefs/internal/pipeline"
)

// Entry is a cached response with its freshness metadata. The store
// keeps entries past their freshness window so that stale-while-
// revalidate can serve them while a refresh runs.
type Entry struct {
	// Status is the response status code.
	Status int `json:"status"`

	// Header holds the response headers captured at store time.
	Header http.Header `json:"header,omitempty"`

	// Body is the response body.
	Body []byte `json:"body,omitempty"`

	// CreatedAt is when the entry was produced.
	CreatedAt time.Time `json:"createdAt"`

	// MaxAge is the freshness window in seconds.
	MaxAge int `json:"maxAge"`
}

// Fresh reports whether the entry is still within its freshness window.
func (e *Entry) Fresh(now time.Time) bool {
	if e.MaxAge <= 0 {
		return false
	}
	return now.Before(e.CreatedAt.Add(time.Duration(e.MaxAge) * time.Second))
}

// Age returns the entry's age at the given instant.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Response converts the entry into a response the dispatcher can write.
func (e *Entry) Response() *pipeline.Response {
	header := make(http.Header, len(e.Header))
	for name, values := range e.Header {
		header[name] = append([]string(nil), values...)
	}
	return &pipeline.Response{
		Status: e.Status,
		Header: header,
		Body:   append([]byte(nil), e.Body...),
	}
}

// Encode serializes the entry for storage.
func (e *Entry) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEntry deserializes a stored entry.
func DecodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// NewEntry builds an entry from a materialized response.
func NewEntry(resp *pipeline.Response, maxAge int, now time.Time) *Entry {
	return &Entry{
		Status:    resp.Status,
		Header:    resp.Header,
		Body:      resp.Body,
		CreatedAt: now,
		MaxAge:    maxAge,
	}
}
