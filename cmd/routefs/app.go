package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/routefs/routefs/internal/cache"
	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/discovery"
	"github.com/routefs/routefs/internal/dispatch"
	"github.com/routefs/routefs/internal/observability"
	"github.com/routefs/routefs/internal/pipeline"
	"github.com/routefs/routefs/internal/router"
	"github.com/routefs/routefs/internal/rules"
)

// application holds the assembled server and its collaborators.
type application struct {
	config     *config.Config
	logger     observability.Logger
	store      cache.Store
	dispatcher *dispatch.Dispatcher
	server     *http.Server
}

// buildApplication assembles the dispatcher and HTTP server from the
// configuration and the site directory conventions.
func buildApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	manifest, registry, err := discoverSite(cfg.Server.SiteDir, logger)
	if err != nil {
		return nil, err
	}

	entries, err := registry.Routes(manifest)
	if err != nil {
		return nil, err
	}
	matcher, err := router.Compile(entries)
	if err != nil {
		return nil, err
	}

	resolver, err := rules.Compile(cfg.RouteRules.Entries)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(&cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache store: %w", err)
	}

	middleware, err := globalMiddleware(manifest, registry, cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.New(dispatch.Options{
		Matcher:   matcher,
		Resolver:  resolver,
		Pipeline:  pipeline.Build(middleware),
		Registry:  registry,
		Decorator: cache.NewDecorator(store, logger),
		Proxy:     dispatch.NewProxy(&cfg.Proxy, logger),
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", dispatcher)

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration(),
	}

	logger.Info("application assembled",
		observability.Int("routes", len(entries)),
		observability.Int("rules", len(resolver.Rules())),
		observability.Int("middleware", len(middleware)))

	return &application{
		config:     cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		server:     server,
	}, nil
}

// discoverSite scans the site directory and registers a content handler
// for every discovered route file: the file's bytes become the response
// body, typed by extension. Middleware files are declaration-only in
// this binary and register as pass-through entries.
func discoverSite(siteDir string, logger observability.Logger) (*discovery.Manifest, *discovery.Registry, error) {
	registry := discovery.NewRegistry()

	if siteDir == "" {
		logger.Info("no site directory configured, filesystem discovery disabled")
		return &discovery.Manifest{}, registry, nil
	}
	if _, err := os.Stat(siteDir); err != nil {
		logger.Warn("site directory not found, serving no routes",
			observability.String("siteDir", siteDir))
		return &discovery.Manifest{}, registry, nil
	}

	manifest, err := discovery.Scan(os.DirFS(siteDir))
	if err != nil {
		return nil, nil, fmt.Errorf("scan site directory: %w", err)
	}

	for _, route := range manifest.Routes {
		registry.Handle(route.Ref, contentHandler(siteDir, route, logger))
	}
	for _, mw := range manifest.Middleware {
		registry.Middleware(mw.Ref, func(*pipeline.Context) (any, error) {
			return nil, nil
		})
	}

	return manifest, registry, nil
}

// contentHandler serves a discovered route file's content. The file is
// read per request so edits show up without a restart; cache rules make
// repeated reads cheap.
func contentHandler(siteDir string, route discovery.RouteFile, logger observability.Logger) *pipeline.HandlerSpec {
	filePath := filepath.Join(siteDir, filepath.FromSlash(route.Path))
	contentType := mime.TypeByExtension(filepath.Ext(route.Path))

	return &pipeline.HandlerSpec{
		Handler: func(c *pipeline.Context) (any, error) {
			data, err := os.ReadFile(filePath)
			if err != nil {
				logger.Error("route file unreadable",
					observability.String("file", filePath),
					observability.Error(err))
				return nil, err
			}
			if contentType != "" {
				c.Header().Set("Content-Type", contentType)
			}
			return data, nil
		},
	}
}

// globalMiddleware combines the built-in interceptors with the site's
// discovered middleware entries.
func globalMiddleware(
	manifest *discovery.Manifest,
	registry *discovery.Registry,
	cfg *config.Config,
	logger observability.Logger,
) ([]pipeline.MiddlewareEntry, error) {
	entries := []pipeline.MiddlewareEntry{
		{Name: "request-id", Order: 0, Prefixed: true, Fn: pipeline.RequestID()},
		{Name: "access-log", Order: 1, Prefixed: true, Fn: pipeline.AccessLog(logger)},
	}
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		entries = append(entries, pipeline.MiddlewareEntry{
			Name: "rate-limit", Order: 2, Prefixed: true,
			Fn: pipeline.RateLimit(cfg.RateLimit),
		})
	}

	discovered, err := registry.MiddlewareEntries(manifest)
	if err != nil {
		return nil, err
	}
	return append(entries, discovered...), nil
}

// metricsHandler serves all metric families from a dedicated registry.
func metricsHandler() http.Handler {
	registry := prometheus.NewRegistry()
	router.GetMatcherMetrics().MustRegister(registry)
	cache.GetMetrics().MustRegister(registry)
	cache.GetMetrics().Init()
	dispatch.GetMetrics().MustRegister(registry)

	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
