package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	SES          SESConfig          `yaml:"ses"`
	Notification NotificationConfig `yaml:"notification"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Reports      ReportsConfig      `yaml:"reports"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for net/http.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// RedisConfig holds the optional Redis connection. An empty URL disables
// Redis; rate limiting and sweep locking then fall back to PostgreSQL.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a Redis URL is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// NotificationConfig holds the dispatch policy for promotional messages
type NotificationConfig struct {
	Channel         string        `yaml:"channel"`
	RateLimitMax    int           `yaml:"rate_limit_max"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	PacingDelay     time.Duration `yaml:"pacing_delay"`
	FrontendURL     string        `yaml:"frontend_url"`
	TemplatePath    string        `yaml:"template_path"`
	SubjectTemplate string        `yaml:"subject_template"`
}

// SchedulerConfig holds the daily sweep trigger settings
type SchedulerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SweepTime string `yaml:"sweep_time"` // "HH:MM", local to Timezone
	Timezone  string `yaml:"timezone"`
}

// Location resolves Timezone, defaulting to the process local zone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// DispatchConfig sizes the activation worker pool
type DispatchConfig struct {
	Workers     int `yaml:"workers"`
	BacklogWarn int `yaml:"backlog_warn"`
}

// LedgerConfig selects where dispatch records are appended
type LedgerConfig struct {
	Backend       string `yaml:"backend"` // "postgres" or "dynamodb"
	DynamoDBTable string `yaml:"dynamodb_table"`
	Region        string `yaml:"region"`
	RetentionDays int    `yaml:"retention_days"` // DynamoDB TTL; 0 keeps records forever
}

// ReportsConfig enables the dispatch report archive. S3Bucket wins over
// LocalDir when both are set.
type ReportsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	S3Bucket string `yaml:"s3_bucket"`
	Region   string `yaml:"region"`
	LocalDir string `yaml:"local_dir"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact returns the configured redaction flag, true when unset.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied. Used when no
// config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.FromName == "" {
		cfg.SES.FromName = "PetStore"
	}
	if cfg.SES.FromEmail == "" {
		cfg.SES.FromEmail = "noreply@petstore.com"
	}
	if cfg.Notification.Channel == "" {
		cfg.Notification.Channel = "EMAIL_PROMOTION"
	}
	if cfg.Notification.RateLimitMax == 0 {
		cfg.Notification.RateLimitMax = 10
	}
	if cfg.Notification.RateLimitWindow == 0 {
		cfg.Notification.RateLimitWindow = time.Hour
	}
	if cfg.Notification.PacingDelay == 0 {
		cfg.Notification.PacingDelay = 100 * time.Millisecond
	}
	if cfg.Notification.FrontendURL == "" {
		cfg.Notification.FrontendURL = "https://fluffy-deals-hub.vercel.app"
	}
	if cfg.Scheduler.SweepTime == "" {
		cfg.Scheduler.SweepTime = "00:01"
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.BacklogWarn == 0 {
		cfg.Dispatch.BacklogWarn = 64
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "postgres"
	}
	if cfg.Ledger.Region == "" {
		cfg.Ledger.Region = cfg.SES.Region
	}
	if cfg.Reports.Region == "" {
		cfg.Reports.Region = cfg.SES.Region
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
// A missing config file is not an error; defaults are used instead.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if from := os.Getenv("SES_FROM_EMAIL"); from != "" {
		cfg.SES.FromEmail = from
	}
	if frontend := os.Getenv("FRONTEND_URL"); frontend != "" {
		cfg.Notification.FrontendURL = frontend
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}

	return cfg, nil
}
