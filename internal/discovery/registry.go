package discovery

import (
	"fmt"

	"github.com/routefs/routefs/internal/pipeline"
	"github.com/routefs/routefs/internal/router"
	"github.com/routefs/routefs/internal/util"
)

// Registry resolves handler and middleware references from a manifest
// to their implementations. Population happens before the server starts
// serving, after which the registry is read-only.
type Registry struct {
	handlers   map[string]*pipeline.HandlerSpec
	middleware map[string]pipeline.MiddlewareFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:   make(map[string]*pipeline.HandlerSpec),
		middleware: make(map[string]pipeline.MiddlewareFunc),
	}
}

// Handle registers a handler spec under a reference.
func (r *Registry) Handle(ref string, spec *pipeline.HandlerSpec) {
	r.handlers[ref] = spec
}

// HandleFunc registers a bare handler function under a reference.
func (r *Registry) HandleFunc(ref string, fn pipeline.Handler) {
	r.handlers[ref] = &pipeline.HandlerSpec{Handler: fn}
}

// Middleware registers a middleware function under a reference.
func (r *Registry) Middleware(ref string, fn pipeline.MiddlewareFunc) {
	r.middleware[ref] = fn
}

// Handler looks up a handler spec by reference.
func (r *Registry) Handler(ref string) (*pipeline.HandlerSpec, bool) {
	spec, ok := r.handlers[ref]
	return spec, ok
}

// Routes converts the manifest's route files into route entries,
// verifying that every reference has a registered handler. A dangling
// reference is a build-time configuration error.
func (r *Registry) Routes(manifest *Manifest) ([]*router.RouteEntry, error) {
	entries := make([]*router.RouteEntry, 0, len(manifest.Routes))
	for _, file := range manifest.Routes {
		if _, ok := r.handlers[file.Ref]; !ok {
			return nil, util.NewConfigError("routes",
				fmt.Sprintf("no handler registered for %q", file.Ref))
		}

		entry, err := router.NewRouteEntry(file.Pattern, file.Method, file.Ref)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// MiddlewareEntries converts the manifest's middleware files into
// pipeline entries, verifying registration the same way.
func (r *Registry) MiddlewareEntries(manifest *Manifest) ([]pipeline.MiddlewareEntry, error) {
	entries := make([]pipeline.MiddlewareEntry, 0, len(manifest.Middleware))
	for _, file := range manifest.Middleware {
		fn, ok := r.middleware[file.Ref]
		if !ok {
			return nil, util.NewConfigError("middleware",
				fmt.Sprintf("no middleware registered for %q", file.Ref))
		}

		entries = append(entries, pipeline.MiddlewareEntry{
			Name:     file.Name,
			Order:    file.Order,
			Prefixed: file.Prefixed,
			Fn:       fn,
		})
	}
	return entries, nil
}
