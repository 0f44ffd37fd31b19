// Command worker runs the daily promotion sweep and the activation dispatch
// pool without the admin API. Replicas coordinate through the sweep lock.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/promo-notifier/internal/app"
	"github.com/ignite/promo-notifier/internal/config"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	sweepNow := flag.Bool("sweep-now", false, "run one sweep at startup")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.Redact())

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Queue.Start(); err != nil {
		logger.Error("start activation queue", "error", err)
		os.Exit(1)
	}

	if *sweepNow {
		n, err := a.Sweeper.RunOnce(context.Background())
		if err != nil {
			logger.Warn("startup sweep did not run", "error", err)
		} else {
			logger.Info("startup sweep complete", "updated", n)
		}
	}

	// The worker always schedules; scheduler.enabled only governs the API server.
	if err := a.Sweeper.Start(); err != nil {
		logger.Error("start sweep scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("worker running", "next_sweep", a.Sweeper.Status().NextRun.Format(time.RFC3339))

	// Heartbeat
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := a.Queue.Stats()
				logger.Info("worker heartbeat", "queued", st.Depth, "in_flight", st.InFlight, "dispatched", st.Dispatched, "dropped", st.Dropped)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	cancel()
	a.Sweeper.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := a.Queue.Stop(stopCtx); err != nil {
		logger.Warn("activation queue did not drain", "error", err)
	}
	logger.Info("worker stopped")
}
