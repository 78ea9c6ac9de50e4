package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Lifecycle    LifecycleConfig
	Assignment   AssignmentConfig
	Feed         FeedConfig
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

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret              string
	AccessTokenTTLMinutes  int
	BcryptCost             int
	BootstrapAdminName     string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// NotificationConfig controls outbound copies of feed notifications.
type NotificationConfig struct {
	EmailFrom       string
	SendGridAPIKey  string
	WebhookURL      string
	WebhookTimeout  time.Duration
	QueueSize       int
	DeliveryTimeout time.Duration
}

// LifecycleConfig holds ticket status policy.
type LifecycleConfig struct {
	// CustomerReplyStatus is the status a waiting_on_customer ticket moves to
	// when the customer answers: open or in_progress.
	CustomerReplyStatus      string
	ReopenOnCustomerReply    bool
	AgentReplyAwaitsCustomer bool
	AutoCloseAfter           time.Duration
	AutoCloseSchedule        string
}

// AssignmentConfig holds reassignment policy.
type AssignmentConfig struct {
	DefaultCapacity     int
	DeclineWindow       time.Duration
	MatchTimeout        time.Duration
	MatchConcurrency    int
	DefaultDispatcherID string
}

// FeedConfig holds notification feed limits.
type FeedConfig struct {
	DefaultLimit   int
	MaxLimit       int
	PollInterval   time.Duration
	UnreadCacheTTL time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-lifecycle"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 0),
			BootstrapAdminName:     getEnv("AUTH_BOOTSTRAP_ADMIN_NAME", "Administrator"),
			BootstrapAdminEmail:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Notification: NotificationConfig{
			EmailFrom:       getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			SendGridAPIKey:  os.Getenv("SENDGRID_API_KEY"),
			WebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeout:  getEnvAsDuration("NOTIFY_WEBHOOK_TIMEOUT_MS", 5000, time.Millisecond),
			QueueSize:       getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			DeliveryTimeout: getEnvAsDuration("NOTIFY_DELIVERY_TIMEOUT_MS", 10000, time.Millisecond),
		},
		Lifecycle: LifecycleConfig{
			CustomerReplyStatus:      getEnv("TICKET_CUSTOMER_REPLY_STATUS", "open"),
			ReopenOnCustomerReply:    getEnvAsBool("TICKET_REOPEN_ON_CUSTOMER_REPLY", true),
			AgentReplyAwaitsCustomer: getEnvAsBool("TICKET_AGENT_REPLY_AWAITS_CUSTOMER", true),
			AutoCloseAfter:           getEnvAsDuration("TICKET_AUTO_CLOSE_AFTER_HOURS", 0, time.Hour),
			AutoCloseSchedule:        getEnv("TICKET_AUTO_CLOSE_SCHEDULE", "@every 1h"),
		},
		Assignment: AssignmentConfig{
			DefaultCapacity:     getEnvAsInt("ASSIGNMENT_DEFAULT_CAPACITY", 10),
			DeclineWindow:       getEnvAsDuration("ASSIGNMENT_DECLINE_WINDOW_HOURS", 168, time.Hour),
			MatchTimeout:        getEnvAsDuration("ASSIGNMENT_MATCH_TIMEOUT_MS", 500, time.Millisecond),
			MatchConcurrency:    getEnvAsInt("ASSIGNMENT_MATCH_CONCURRENCY", 8),
			DefaultDispatcherID: os.Getenv("ASSIGNMENT_DEFAULT_DISPATCHER_ID"),
		},
		Feed: FeedConfig{
			DefaultLimit:   getEnvAsInt("NOTIFICATION_DEFAULT_LIMIT", 20),
			MaxLimit:       getEnvAsInt("NOTIFICATION_MAX_LIMIT", 100),
			PollInterval:   getEnvAsDuration("NOTIFICATION_POLL_INTERVAL_SECONDS", 30, time.Second),
			UnreadCacheTTL: getEnvAsDuration("NOTIFICATION_UNREAD_CACHE_TTL_SECONDS", 60, time.Second),
		},
	}

	if err := cfg.Lifecycle.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown policy values.
func (l LifecycleConfig) Validate() error {
	switch l.CustomerReplyStatus {
	case "open", "in_progress":
		return nil
	default:
		return fmt.Errorf("invalid TICKET_CUSTOMER_REPLY_STATUS %q: want open or in_progress", l.CustomerReplyStatus)
	}
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

func getEnvAsDuration(key string, fallback int, unit time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * unit
}
