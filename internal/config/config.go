package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"dev"`
	OpsAddr       string `env:"OPS_ADDR" envDefault:":8090"`
	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	Workers       int           `env:"DISPATCH_WORKERS" envDefault:"32"`
	QueueCapacity int           `env:"DISPATCH_QUEUE_CAP" envDefault:"256"`
	ClaimBatch    int           `env:"CLAIM_BATCH" envDefault:"64"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"250ms"`
	LeaseDuration time.Duration `env:"LEASE_DURATION" envDefault:"120s"`
	MaxAttempts   int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	ReapInterval  time.Duration `env:"REAP_INTERVAL" envDefault:"30s"`

	SenderConcurrency int           `env:"SENDER_CONCURRENCY" envDefault:"8"`
	SenderRatePerSec  float64       `env:"SENDER_RATE_PER_SEC" envDefault:"20"`
	SenderBurst       int           `env:"SENDER_BURST" envDefault:"40"`
	PolicyRefresh     time.Duration `env:"POLICY_REFRESH" envDefault:"15s"`

	SinkFlushInterval time.Duration `env:"SINK_FLUSH_INTERVAL" envDefault:"2s"`
	SinkBatchSize     int           `env:"SINK_BATCH_SIZE" envDefault:"100"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}
