// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"

	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	devJWTSecret = "dev-secret-key-change-in-production"
)

// Config is the root configuration of the server.
type Config struct {
	Addr         string `env:"LMS_ADDR" envDefault:":5000"`
	Environment  string `env:"ENVIRONMENT" envDefault:"development"`
	JWTSecret    string `env:"JWT_SECRET"`
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`

	Server       ServerConfig
	Redis        RedisConfig
	Postgres     PostgresConfig
	Kafka        KafkaConfig
	Verification VerificationConfig
	Realtime     RealtimeConfig
	Log          LogConfig
}

// ServerConfig holds HTTP server timeouts. There is no write timeout since
// websocket connections are long lived.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"2m"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RedisConfig configures the Redis client used by the Redis store and the
// account lookup cache. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

type PostgresConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// KafkaConfig enables the Kafka audit sink when Brokers is set.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"lms.verification.audit"`
	ClientID   string   `env:"KAFKA_CLIENT_ID" envDefault:"lms"`

	// Topic provisioning at startup. -1 takes the broker default.
	AuditPartitions  int32 `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"-1"`
	AuditReplication int16 `env:"KAFKA_AUDIT_REPLICATION" envDefault:"-1"`
}

type VerificationConfig struct {
	EventTimeout    time.Duration `env:"VERIFICATION_EVENT_TIMEOUT" envDefault:"10s"`
	AccountCacheTTL time.Duration `env:"ACCOUNT_LOOKUP_CACHE_TTL" envDefault:"10m"`
	AuditBuffer     int           `env:"AUDIT_BUFFER" envDefault:"1024"`

	// The account lookup breaker opens after this many consecutive provider
	// failures and probes again once per cooldown.
	AccountFailureThreshold int           `env:"ACCOUNT_LOOKUP_FAILURE_THRESHOLD" envDefault:"5"`
	AccountCooldown         time.Duration `env:"ACCOUNT_LOOKUP_COOLDOWN" envDefault:"30s"`

	// AccountDirectory maps "provider:phone" to the account holder name, e.g.
	// ACCOUNT_DIRECTORY="mpamba:+265888000111=J Banda,tnm:+265999000111=Mary Phiri".
	AccountDirectory map[string]string `env:"ACCOUNT_DIRECTORY" envSeparator:"," envKeyValSeparator:"="`
}

type RealtimeConfig struct {
	IdleTimeout        time.Duration `env:"WS_IDLE_TIMEOUT" envDefault:"5m"`
	MaxFramesPerSecond int           `env:"WS_MAX_FRAMES_PER_SECOND" envDefault:"20"`
	SendBuffer         int           `env:"WS_SEND_BUFFER" envDefault:"64"`
	MaxFrameBytes      int           `env:"WS_MAX_FRAME_BYTES" envDefault:"16777216"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// FromMap parses vars instead of the process environment.
func FromMap(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// Validate checks combinations the env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	case StorePostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be memory, redis or postgres, got %q", c.StoreBackend))
	}
	if c.Verification.EventTimeout <= 0 {
		errs = append(errs, errors.New("VERIFICATION_EVENT_TIMEOUT must be positive"))
	}
	if c.Realtime.IdleTimeout <= 0 {
		errs = append(errs, errors.New("WS_IDLE_TIMEOUT must be positive"))
	}
	if c.Realtime.MaxFramesPerSecond <= 0 || c.Realtime.SendBuffer <= 0 {
		errs = append(errs, errors.New("WS_MAX_FRAMES_PER_SECOND and WS_SEND_BUFFER must be positive"))
	}
	return errors.Join(errs...)
}
