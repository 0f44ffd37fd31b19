// Command migrate applies the embedded schema migrations.
package main

import (
	"flag"
	"os"

	"github.com/ignite/promo-notifier/internal/config"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
	"github.com/ignite/promo-notifier/internal/repository/postgres"
	"github.com/ignite/promo-notifier/migrations"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	down := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	status := flag.Bool("status", false, "print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	url := cfg.Database.URL

	switch {
	case *status:
		v, dirty, err := postgres.SchemaVersion(url)
		if err != nil {
			logger.Error("read schema version", "error", err)
			os.Exit(1)
		}
		logger.Info("schema version", "version", v, "dirty", dirty, "expected", migrations.Version)

	case *down > 0:
		if err := postgres.Rollback(url, *down); err != nil {
			logger.Error("rollback failed", "error", err)
			os.Exit(1)
		}
		logger.Info("rollback complete", "steps", *down)

	default:
		from, err := postgres.Migrate(url)
		if err != nil {
			logger.Error("migrate failed", "from", from, "error", err)
			os.Exit(1)
		}
		logger.Info("migrations complete", "from", from, "to", migrations.Version)
	}
}
