package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: values with no safe default, checked in Validate because they
//   depend on the selected store backend
// - default: everything else; a bare `docker run` comes up with an in-memory store
// -----------------------------------------------------------------------------

// Store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Queue     QueueConfig
	Store     StoreConfig
	DB        DBConfig
	Redis     RedisConfig
	Delivery  DeliveryConfig
	Events    EventsConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// QueueConfig is the queue's recognised option surface.
type QueueConfig struct {
	// Enabled=false delivers every message inline on the caller's goroutine.
	Enabled          bool          `envconfig:"QUEUE_ENABLED" default:"true"`
	MaxAttempts      int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"5"`
	DrainInterval    time.Duration `envconfig:"QUEUE_DRAIN_INTERVAL" default:"10s"`
	RetentionTTL     time.Duration `envconfig:"QUEUE_RETENTION_TTL" default:"168h"`
	PriorityOrdering bool          `envconfig:"QUEUE_PRIORITY_ORDERING" default:"false"`

	// SendingLease is how long an item may stay SENDING before a pass records the attempt as lost.
	SendingLease time.Duration `envconfig:"QUEUE_SENDING_LEASE" default:"5m"`
}

type StoreConfig struct {
	Backend       string        `envconfig:"STORE_BACKEND" default:"memory"`
	PurgeInterval time.Duration `envconfig:"STORE_PURGE_INTERVAL" default:"10m"`
}

type DBConfig struct {
	DatabaseURL string `envconfig:"DATABASE_URL"`
	MaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns    int32  `envconfig:"DB_MIN_CONNS" default:"5"`
}

type RedisConfig struct {
	Addr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	DB        int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"delivery_queue"`
}

type DeliveryConfig struct {
	// WebhookURL empty selects the log backend.
	WebhookURL     string        `envconfig:"WEBHOOK_URL"`
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	TemplateDir    string        `envconfig:"TEMPLATE_DIR"`
	DefaultFrom    string        `envconfig:"DEFAULT_FROM" default:"noreply@westbethelmotel.com"`
	// RateLimit is the maximum sends per second per priority tier; 0 disables limiting.
	RateLimit int `envconfig:"DELIVERY_RATE_LIMIT" default:"50"`
}

type EventsConfig struct {
	AMQPURL      string   `envconfig:"AMQP_URL"`
	AMQPQueue    string   `envconfig:"AMQP_QUEUE" default:"notification-events"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"notification-events"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"delivery-queue"`

	// RetryDelay is the pause before a transiently failed Kafka message is handled again.
	RetryDelay time.Duration `envconfig:"KAFKA_RETRY_DELAY" default:"5s"`
}

type TelemetryConfig struct {
	// OTLPEndpoint empty disables tracing export.
	OTLPEndpoint string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `envconfig:"OTEL_SERVICE_NAME" default:"delivery-queue"`
	SampleRate   float64 `envconfig:"OTEL_SAMPLE_RATE" default:"1"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process env config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the rules envconfig tags cannot express.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case StorePostgres:
		if c.DB.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required when STORE_BACKEND=redis")
		}
	case StoreMemory:
	default:
		return errors.Newf("unknown STORE_BACKEND %q: must be postgres, redis or memory", c.Store.Backend)
	}
	if c.Queue.MaxAttempts < 1 {
		return errors.Newf("QUEUE_MAX_ATTEMPTS must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.DrainInterval <= 0 {
		return errors.New("QUEUE_DRAIN_INTERVAL must be positive")
	}
	if c.Queue.SendingLease <= 0 {
		return errors.New("QUEUE_SENDING_LEASE must be positive")
	}
	if c.Queue.RetentionTTL <= 0 {
		return errors.New("QUEUE_RETENTION_TTL must be positive")
	}
	if c.Store.PurgeInterval <= 0 {
		return errors.New("STORE_PURGE_INTERVAL must be positive")
	}
	if c.DB.MinConns > c.DB.MaxConns {
		return errors.Newf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DB.MinConns, c.DB.MaxConns)
	}
	if c.Delivery.RateLimit < 0 {
		return errors.New("DELIVERY_RATE_LIMIT must not be negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.New("OTEL_SAMPLE_RATE must be between 0 and 1")
	}
	return nil
}
