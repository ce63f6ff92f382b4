package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/observability"
)

// run starts the server and the config watcher, then blocks until a
// shutdown signal arrives.
func run(app *application, configPath string, logger observability.Logger) {
	go func() {
		logger.Info("listening", observability.String("addr", app.server.Addr))
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", observability.Error(err))
		}
	}()

	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, logger)
}

// startConfigWatcher watches the config file for rule changes. Reload
// applies to validation only: a changed file that fails validation is
// rejected and logged, the process keeps the last good config. Applying
// rule changes requires a restart.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		logger.Info("configuration file changed and validated, restart to apply",
			observability.Int("rules", len(cfg.RouteRules.Entries)))
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("config watcher failed to start", observability.Error(err))
		return nil
	}

	return watcher
}

// waitForShutdown blocks on SIGINT/SIGTERM and drains the server.
func waitForShutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", observability.String("signal", sig.String()))

	timeout := app.config.Server.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if err := app.store.Close(); err != nil {
		logger.Error("failed to close cache store", observability.Error(err))
	}

	logger.Info("routefs stopped")
}
