package pipeline

import (
	"time"

	"go.uber.org/zap"
)

const (
	defaultWorkers        = 32
	defaultQueueCapacity  = 256
	defaultClaimBatch     = 64
	defaultPollInterval   = 250 * time.Millisecond
	defaultMaxPollBackoff = time.Second
	defaultIdleSleep      = 30 * time.Second
	defaultIdleThreshold  = 5
	defaultLeaseDuration  = 2 * time.Minute
	defaultMaxAttempts    = 5
	defaultReapInterval   = 30 * time.Second
	defaultJobTimeout     = time.Minute
)

// Config controls the pipeline's concurrency and timing.
type Config struct {
	Workers       int
	QueueCapacity int
	ClaimBatch    int
	PollInterval  time.Duration
	IdleSleep     time.Duration
	LeaseDuration time.Duration
	MaxAttempts   int
	ReapInterval  time.Duration
	JobTimeout    time.Duration
	Logger        *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = defaultClaimBatch
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = defaultIdleSleep
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = defaultReapInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Option configures pipeline behavior.
type Option func(*Config)

// WithWorkers sets the dispatch consumer pool size.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithQueueCapacity sets the bounded work queue size.
func WithQueueCapacity(n int) Option {
	return func(c *Config) { c.QueueCapacity = n }
}

// WithClaimBatch caps the rows claimed per producer tick.
func WithClaimBatch(n int) Option {
	return func(c *Config) { c.ClaimBatch = n }
}

// WithPollInterval sets the base producer poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

// WithIdleSleep sets the long sleep applied after several consecutive empty
// polls.
func WithIdleSleep(d time.Duration) Option {
	return func(c *Config) { c.IdleSleep = d }
}

// WithLeaseDuration sets how long a claim stays valid without a terminal
// write.
func WithLeaseDuration(d time.Duration) Option {
	return func(c *Config) { c.LeaseDuration = d }
}

// WithMaxAttempts sets the dead-letter threshold.
func WithMaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

// WithReapInterval sets the lease reaper sweep interval.
func WithReapInterval(d time.Duration) Option {
	return func(c *Config) { c.ReapInterval = d }
}

// WithJobTimeout bounds the processing of one claimed job.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Config) { c.JobTimeout = d }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
