package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/promo-notifier/internal/api"
	"github.com/ignite/promo-notifier/internal/app"
	"github.com/ignite/promo-notifier/internal/config"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	if err := run(cfg); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		return fmt.Errorf("pre-flight check: %w", err)
	}

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Queue.Start(); err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		if err := a.Sweeper.Start(); err != nil {
			return err
		}
	}

	server := api.NewServer(cfg.Server, a.APIDeps(), a.HealthChecker())

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-done:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	a.Sweeper.Stop()
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		logger.Warn("activation queue did not drain", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
