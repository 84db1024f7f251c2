package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries all process configuration. Fields come from the
// environment so main stays lean.
type Config struct {
	Addr     string `env:"VERITAS_ADDR" envDefault:":8080"`
	LogLevel string `env:"VERITAS_LOG_LEVEL" envDefault:"info"`

	Database  DatabaseConfig  `envPrefix:"VERITAS_DB_"`
	Redis     RedisConfig     `envPrefix:"VERITAS_REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"VERITAS_KAFKA_"`
	Mirror    MirrorConfig    `envPrefix:"VERITAS_MIRROR_"`
	Retention RetentionConfig `envPrefix:"VERITAS_RETENTION_"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the idempotency result cache. An empty URL
// disables the cache; the engine then reads the store directly.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the audit mirror's downstream topic. Empty
// brokers disable mirroring; events stay in the local store and outbox.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"veritas.audit.events"`
}

// RetentionConfig overrides the minimum retention per audit category.
// Values below the defaults are ignored by the policy so a misconfigured
// environment can never shorten the compliance window.
type RetentionConfig struct {
	Compliance time.Duration `env:"COMPLIANCE" envDefault:"61320h"`
	Security   time.Duration `env:"SECURITY" envDefault:"17520h"`
	Operations time.Duration `env:"OPERATIONS" envDefault:"2160h"`
}

// MirrorConfig tunes the outbox drain loop.
type MirrorConfig struct {
	Interval  time.Duration `env:"INTERVAL" envDefault:"2s"`
	BatchSize int           `env:"BATCH_SIZE" envDefault:"100"`
}

// Load builds the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
