// Package app assembles the notifier's components from configuration. Both
// the API server and the headless worker start from Build.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/promo-notifier/internal/api"
	"github.com/ignite/promo-notifier/internal/config"
	"github.com/ignite/promo-notifier/internal/delivery"
	"github.com/ignite/promo-notifier/internal/domain"
	"github.com/ignite/promo-notifier/internal/pkg/distlock"
	"github.com/ignite/promo-notifier/internal/pkg/logger"
	"github.com/ignite/promo-notifier/internal/ratelimit"
	"github.com/ignite/promo-notifier/internal/repository/postgres"
	"github.com/ignite/promo-notifier/internal/service/consent"
	"github.com/ignite/promo-notifier/internal/service/notification"
	"github.com/ignite/promo-notifier/internal/service/promotion"
	"github.com/ignite/promo-notifier/internal/storage"
	"github.com/ignite/promo-notifier/internal/worker"
)

// SweepLockKey names the lock every sweep holds.
const SweepLockKey = "sweep:promotions"

// App holds the wired components. Build starts nothing; callers start the
// queue and scheduler they need.
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Redis      *redis.Client
	S3         *s3.Client
	Channel    domain.Channel
	Policy     ratelimit.Policy
	Limiter    ratelimit.Limiter
	Ledger     notification.LedgerStore
	Consent    *consent.Service
	Promotions *promotion.Service
	Dispatcher *notification.Dispatcher
	Queue      *worker.ActivationQueue
	Sweeper    *worker.SweepScheduler
}

// ExtractHost returns the host portion of a DSN for logging without
// credentials.
func ExtractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// Build connects to the stores and wires every service.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database", "host", ExtractHost(cfg.Database.URL))

	if cfg.Database.AutoMigrate {
		from, err := postgres.Migrate(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		logger.Info("schema up to date", "from_version", from)
	}

	if !cfg.Redis.Enabled() {
		logger.Info("redis not configured, rate limits and sweep lock use postgres")
		return nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	a.Redis = redis.NewClient(opts)

	pingCtx, cancel = context.WithTimeout(ctx, 3*time.Second)
	err = a.Redis.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("connected to redis")
	return nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	ch, ok := domain.ParseChannel(cfg.Notification.Channel)
	if !ok {
		return fmt.Errorf("unknown notification channel %q", cfg.Notification.Channel)
	}
	a.Channel = ch

	a.Policy = ratelimit.Policy{Max: cfg.Notification.RateLimitMax, Window: cfg.Notification.RateLimitWindow}
	if a.Redis != nil {
		a.Limiter = ratelimit.NewRedisLimiter(a.Redis, a.Policy)
	} else {
		a.Limiter = ratelimit.NewStoreLimiter(postgres.NewRateLimitRepo(a.DB), a.Policy)
	}

	ledger, err := a.buildLedger(ctx)
	if err != nil {
		return err
	}
	a.Ledger = ledger

	reports, err := a.buildReports(ctx)
	if err != nil {
		return err
	}

	gateway, err := a.buildGateway(ctx)
	if err != nil {
		return err
	}

	renderer, err := notification.NewRenderer(notification.RendererConfig{
		Subject:  cfg.Notification.SubjectTemplate,
		BodyPath: cfg.Notification.TemplatePath,
		CTAURL:   cfg.Notification.FrontendURL,
	})
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	a.Consent = consent.NewService(postgres.NewConsentRepo(a.DB))
	a.Dispatcher = notification.NewDispatcher(a.Consent, a.Limiter, gateway, ledger, renderer, reports, notification.Config{
		Channel:     ch,
		PacingDelay: cfg.Notification.PacingDelay,
		FromName:    cfg.SES.FromName,
		FromEmail:   cfg.SES.FromEmail,
	})
	a.Queue = worker.NewActivationQueue(a.Dispatcher, cfg.Dispatch.Workers, cfg.Dispatch.BacklogWarn)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}
	a.Promotions = promotion.NewService(postgres.NewPromotionRepo(a.DB), a.Queue, promotion.WithLocation(loc))

	a.Sweeper, err = worker.NewSweepScheduler(a.Promotions, a.newSweepLock, cfg.Scheduler.SweepTime, loc)
	return err
}

func (a *App) newSweepLock() distlock.Lock {
	return distlock.NewLock(a.Redis, a.DB, SweepLockKey, 15*time.Minute)
}

func (a *App) buildLedger(ctx context.Context) (notification.LedgerStore, error) {
	cfg := a.Config.Ledger
	switch cfg.Backend {
	case "postgres":
		logger.Info("dispatch ledger ready", "backend", "postgres")
		return postgres.NewLedgerRepo(a.DB), nil
	case "dynamodb":
		if cfg.DynamoDBTable == "" {
			return nil, fmt.Errorf("ledger.dynamodb_table is required for the dynamodb backend")
		}
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		logger.Info("dispatch ledger ready", "backend", "dynamodb", "table", cfg.DynamoDBTable)
		return storage.NewDynamoLedger(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, retention), nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}

// buildReports returns nil when the archive is disabled.
func (a *App) buildReports(ctx context.Context) (notification.ReportSink, error) {
	cfg := a.Config.Reports
	if !cfg.Enabled {
		return nil, nil
	}
	switch {
	case cfg.S3Bucket != "":
		awsCfg, err := storage.LoadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		a.S3 = s3.NewFromConfig(awsCfg)
		logger.Info("dispatch reports archived to s3", "bucket", cfg.S3Bucket)
		return storage.NewS3ReportArchive(a.S3, cfg.S3Bucket), nil
	case cfg.LocalDir != "":
		logger.Info("dispatch reports archived locally", "dir", cfg.LocalDir)
		return storage.NewLocalReportArchive(cfg.LocalDir), nil
	}
	logger.Warn("reports enabled without s3_bucket or local_dir, archive disabled")
	return nil, nil
}

func (a *App) buildGateway(ctx context.Context) (notification.Gateway, error) {
	cfg := a.Config.SES
	if !cfg.Enabled {
		logger.Warn("ses disabled, messages are logged instead of sent")
		return delivery.NewLogGateway(), nil
	}
	ses, err := delivery.NewSESGatewayFromCredentials(ctx, cfg.AccessKey, cfg.SecretKey, cfg.Region)
	if err != nil {
		return nil, err
	}
	logger.Info("ses gateway enabled", "region", cfg.Region)
	return ses.WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second), nil
}

// APIDeps returns the handler dependencies.
func (a *App) APIDeps() api.Deps {
	return api.Deps{
		Promotions: a.Promotions,
		Sweep:      a.Sweeper,
		Consent:    a.Consent,
		Ledger:     a.Ledger,
		Queue:      a.Queue,
		Limiter:    a.Limiter,
		Policy:     a.Policy,
		Channel:    a.Channel,
	}
}

// HealthChecker returns a checker over the configured stores.
func (a *App) HealthChecker() *api.HealthChecker {
	var bucket api.BucketHeader
	if a.S3 != nil {
		bucket = a.S3
	}
	return api.NewHealthChecker(a.DB, a.Redis, bucket, a.Config.Reports.S3Bucket, a.Queue)
}

// Close releases the store connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
