// Package config provides configuration structures and validation for the
// payment orchestrator. It handles environment-based configuration for all
// major components: the HTTP server, the transaction store, the lock store,
// the job queues, and the simulated gateway and webhook endpoints.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Each field represents
// a subsystem's configuration and is validated during startup.
type Config struct {
	Application  ApplicationConfig
	Logging      LoggingConfig
	Server       ServerConfig
	Postgres     PostgresConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Lock         LockConfig
	PaymentQueue QueueConfig
	WebhookQueue QueueConfig
	Gateway      GatewayConfig
	Webhook      WebhookConfig
	WorkerPool   WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the attempt audit log
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration for the lock store
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// KafkaConfig contains Kafka configuration for the lifecycle event stream.
// An empty Brokers value disables event publishing entirely.
type KafkaConfig struct {
	Brokers           string
	EventTopic        string
	DLQTopic          string
	NumPartitions     int
	ReplicationFactor int
	MaxWait           time.Duration
}

// Enabled reports whether the event stream is configured
func (c *KafkaConfig) Enabled() bool {
	return c.Brokers != ""
}

// LockConfig contains distributed lock configuration. TTL must exceed the
// expected gateway-call latency with a wide margin.
type LockConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// QueueConfig contains job queue retry configuration
type QueueConfig struct {
	MaxAttempts int           // Default per-job delivery ceiling
	BackoffBase time.Duration // First redelivery delay; doubles per attempt
	BackoffMax  time.Duration // Ceiling on the redelivery delay
}

// GatewayConfig contains simulated payment gateway configuration
type GatewayConfig struct {
	SuccessPercent int           // Probability of a successful charge
	TimeoutPercent int           // Probability of a transient timeout
	Latency        time.Duration // Simulated call duration
}

// WebhookConfig contains simulated webhook delivery configuration
type WebhookConfig struct {
	FailurePercent int           // Probability of a failed delivery
	Delay          time.Duration // Simulated network delay
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of concurrent job executions per queue
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}
	if c.Redis.DialTimeout <= 0 {
		validationErrors = append(validationErrors, "REDIS_DIAL_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config (optional subsystem; topics matter only when enabled)
	if c.Kafka.Enabled() {
		if c.Kafka.EventTopic == "" {
			validationErrors = append(validationErrors, "KAFKA_EVENT_TOPIC is required when KAFKA_BROKERS is set")
		}
		if c.Kafka.MaxWait <= 0 {
			validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
		}
	}

	// Validate Lock config
	if c.Lock.TTL <= 0 {
		validationErrors = append(validationErrors, "LOCK_TTL must be greater than 0")
	}
	if c.Lock.TTL <= c.Gateway.Latency {
		validationErrors = append(validationErrors, "LOCK_TTL must exceed GATEWAY_LATENCY")
	}

	// Validate queue configs
	if c.PaymentQueue.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "PAYMENT_QUEUE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.PaymentQueue.BackoffBase <= 0 {
		validationErrors = append(validationErrors, "PAYMENT_QUEUE_BACKOFF_BASE must be greater than 0")
	}
	if c.PaymentQueue.BackoffMax < c.PaymentQueue.BackoffBase {
		validationErrors = append(validationErrors, "PAYMENT_QUEUE_BACKOFF_MAX must be at least PAYMENT_QUEUE_BACKOFF_BASE")
	}
	if c.WebhookQueue.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "WEBHOOK_QUEUE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.WebhookQueue.BackoffBase <= 0 {
		validationErrors = append(validationErrors, "WEBHOOK_QUEUE_BACKOFF_BASE must be greater than 0")
	}
	if c.WebhookQueue.BackoffMax < c.WebhookQueue.BackoffBase {
		validationErrors = append(validationErrors, "WEBHOOK_QUEUE_BACKOFF_MAX must be at least WEBHOOK_QUEUE_BACKOFF_BASE")
	}

	// Validate Gateway config
	if c.Gateway.SuccessPercent < 0 || c.Gateway.SuccessPercent > 100 {
		validationErrors = append(validationErrors, "GATEWAY_SUCCESS_PERCENT must be between 0 and 100")
	}
	if c.Gateway.TimeoutPercent < 0 || c.Gateway.SuccessPercent+c.Gateway.TimeoutPercent > 100 {
		validationErrors = append(validationErrors, "GATEWAY_SUCCESS_PERCENT plus GATEWAY_TIMEOUT_PERCENT must not exceed 100")
	}
	if c.Gateway.Latency < 0 {
		validationErrors = append(validationErrors, "GATEWAY_LATENCY must not be negative")
	}

	// Validate Webhook config
	if c.Webhook.FailurePercent < 0 || c.Webhook.FailurePercent > 100 {
		validationErrors = append(validationErrors, "WEBHOOK_FAILURE_PERCENT must be between 0 and 100")
	}
	if c.Webhook.Delay < 0 {
		validationErrors = append(validationErrors, "WEBHOOK_DELAY must not be negative")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
