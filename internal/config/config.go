package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the engine.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig
	Calendar     CalendarConfig
	SLA          SLAConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables sweep leases.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Service     string
	Development bool
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig configures outbound notifications.
type NotificationConfig struct {
	WebhookURL         string
	WebhookTimeout     time.Duration
	RatePerSecond      float64
	Burst              int
	MaxAttempts        int
	BreakerFailures    int
	BreakerOpenTimeout time.Duration
}

// SchedulerConfig drives the sweep loops.
type SchedulerConfig struct {
	Enabled            bool
	EscalationInterval time.Duration
	ExpiryInterval     time.Duration
	OutboxInterval     time.Duration
	AutoCloseInterval  time.Duration
	ReminderInterval   time.Duration
	ReminderEvery      time.Duration
	ItemTimeout        time.Duration
	Concurrency        int
	AutoCloseAfterDays int
	BatchSize          int
}

// CalendarConfig locates the operational-hours profile.
type CalendarConfig struct {
	Timezone      string
	ProfilePath   string
	AtRiskMinutes int
}

// SLAConfig maps ticket priorities (LOW, MEDIUM, HIGH, URGENT) to the SLA
// attached when a caller names none.
type SLAConfig struct {
	DefaultByPriority map[string]string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	rate, err := strconv.ParseFloat(getEnv("NOTIFY_RATE_PER_SECOND", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_RATE_PER_SECOND: %w", err)
	}

	appName := getEnv("APP_NAME", "deadline-engine")
	appEnv := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  appName,
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Service:     appName,
			Development: appEnv == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			WebhookURL:         os.Getenv("NOTIFY_WEBHOOK_URL"),
			WebhookTimeout:     getEnvAsDuration("NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second),
			RatePerSecond:      rate,
			Burst:              getEnvAsInt("NOTIFY_BURST", 5),
			MaxAttempts:        getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 8),
			BreakerFailures:    getEnvAsInt("NOTIFY_BREAKER_FAILURES", 5),
			BreakerOpenTimeout: getEnvAsDuration("NOTIFY_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SCHEDULER_ENABLED", true),
			EscalationInterval: getEnvAsDuration("SCHEDULER_ESCALATION_INTERVAL", time.Minute),
			ExpiryInterval:     getEnvAsDuration("SCHEDULER_EXPIRY_INTERVAL", 5*time.Minute),
			OutboxInterval:     getEnvAsDuration("SCHEDULER_OUTBOX_INTERVAL", 10*time.Second),
			AutoCloseInterval:  getEnvAsDuration("SCHEDULER_AUTOCLOSE_INTERVAL", time.Hour),
			ReminderInterval:   getEnvAsDuration("SCHEDULER_REMINDER_INTERVAL", time.Hour),
			ReminderEvery:      getEnvAsDuration("APPROVAL_REMINDER_EVERY", 24*time.Hour),
			ItemTimeout:        getEnvAsDuration("SCHEDULER_ITEM_TIMEOUT", 30*time.Second),
			Concurrency:        getEnvAsInt("SCHEDULER_CONCURRENCY", 4),
			AutoCloseAfterDays: getEnvAsInt("SCHEDULER_AUTOCLOSE_AFTER_DAYS", 10),
			BatchSize:          getEnvAsInt("SCHEDULER_BATCH_SIZE", 500),
		},
		Calendar: CalendarConfig{
			Timezone:      getEnv("CALENDAR_TIMEZONE", "Asia/Manila"),
			ProfilePath:   os.Getenv("CALENDAR_PROFILE_PATH"),
			AtRiskMinutes: getEnvAsInt("SLA_AT_RISK_MINUTES", 60),
		},
		SLA: SLAConfig{
			DefaultByPriority: map[string]string{
				"LOW":    getEnv("SLA_DEFAULT_LOW", "default-low"),
				"MEDIUM": getEnv("SLA_DEFAULT_MEDIUM", "default-medium"),
				"HIGH":   getEnv("SLA_DEFAULT_HIGH", "default-high"),
				"URGENT": getEnv("SLA_DEFAULT_URGENT", "default-urgent"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	intervals := map[string]time.Duration{
		"SCHEDULER_ESCALATION_INTERVAL": c.Scheduler.EscalationInterval,
		"SCHEDULER_EXPIRY_INTERVAL":     c.Scheduler.ExpiryInterval,
		"SCHEDULER_OUTBOX_INTERVAL":     c.Scheduler.OutboxInterval,
		"SCHEDULER_AUTOCLOSE_INTERVAL":  c.Scheduler.AutoCloseInterval,
		"SCHEDULER_REMINDER_INTERVAL":   c.Scheduler.ReminderInterval,
		"APPROVAL_REMINDER_EVERY":       c.Scheduler.ReminderEvery,
		"SCHEDULER_ITEM_TIMEOUT":        c.Scheduler.ItemTimeout,
	}
	for key, val := range intervals {
		if val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Scheduler.Concurrency <= 0 {
		errs = append(errs, errors.New("SCHEDULER_CONCURRENCY must be positive"))
	}
	if c.Scheduler.AutoCloseAfterDays <= 0 {
		errs = append(errs, errors.New("SCHEDULER_AUTOCLOSE_AFTER_DAYS must be positive"))
	}
	if c.Notification.RatePerSecond <= 0 {
		errs = append(errs, errors.New("NOTIFY_RATE_PER_SECOND must be positive"))
	}
	if _, err := time.LoadLocation(c.Calendar.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", c.Calendar.Timezone, err))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
