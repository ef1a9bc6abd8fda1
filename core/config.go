package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds tuning knobs shared by the scheduler, resource guard,
// and retry machinery. It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithMaxConcurrent(4),
//	    WithGlobalTimeout(2*time.Hour),
//	)
type Config struct {
	// Scheduler tuning
	MaxConcurrent int           `json:"max_concurrent" env:"ASTROSEQ_MAX_CONCURRENT" default:"2"`
	GlobalTimeout time.Duration `json:"global_timeout" env:"ASTROSEQ_GLOBAL_TIMEOUT" default:"0"`
	DispatchPoll  time.Duration `json:"dispatch_poll" env:"ASTROSEQ_DISPATCH_POLL" default:"250ms"`

	// Resource ceilings consulted by the resource guard before a task
	// is admitted to run.
	CPUCeiling float64       `json:"cpu_ceiling" env:"ASTROSEQ_CPU_CEILING" default:"90"`
	RSSCeiling int64         `json:"rss_ceiling" env:"ASTROSEQ_RSS_CEILING" default:"0"`
	SampleTTL  time.Duration `json:"sample_ttl" env:"ASTROSEQ_SAMPLE_TTL" default:"200ms"`

	// Retry defaults applied to a Task when its RetryPolicy does not
	// override them.
	RetryMaxAttempts int           `json:"retry_max_attempts" env:"ASTROSEQ_RETRY_MAX_ATTEMPTS" default:"1"`
	RetryBaseDelay   time.Duration `json:"retry_base_delay" env:"ASTROSEQ_RETRY_BASE_DELAY" default:"1s"`

	// Logging configuration
	LogLevel  string `json:"log_level" env:"ASTROSEQ_LOG_LEVEL" default:"info"`
	LogFormat string `json:"log_format" env:"ASTROSEQ_LOG_FORMAT" default:"text"`

	logger Logger `json:"-"`
}

// Option is a functional option for configuring the sequencer. Options
// are applied in order and can return an error if the configuration is
// invalid.
type Option func(*Config) error

// DefaultConfig returns a Config with the defaults documented on each
// field above.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrent:    2,
		GlobalTimeout:    0,
		DispatchPoll:     250 * time.Millisecond,
		CPUCeiling:       90,
		RSSCeiling:       0,
		SampleTTL:        200 * time.Millisecond,
		RetryMaxAttempts: 1,
		RetryBaseDelay:   1 * time.Second,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadFromEnv overlays environment variables onto the config. Variables
// take precedence over defaults but are overridden by functional
// options applied after LoadFromEnv runs.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ASTROSEQ_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_MAX_CONCURRENT", Err: ErrInvalidParameter}
		}
		c.MaxConcurrent = n
	}
	if v := os.Getenv("ASTROSEQ_GLOBAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_GLOBAL_TIMEOUT", Err: ErrInvalidParameter}
		}
		c.GlobalTimeout = d
	}
	if v := os.Getenv("ASTROSEQ_DISPATCH_POLL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_DISPATCH_POLL", Err: ErrInvalidParameter}
		}
		c.DispatchPoll = d
	}
	if v := os.Getenv("ASTROSEQ_CPU_CEILING"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_CPU_CEILING", Err: ErrInvalidParameter}
		}
		c.CPUCeiling = f
	}
	if v := os.Getenv("ASTROSEQ_RSS_CEILING"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_RSS_CEILING", Err: ErrInvalidParameter}
		}
		c.RSSCeiling = n
	}
	if v := os.Getenv("ASTROSEQ_SAMPLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_SAMPLE_TTL", Err: ErrInvalidParameter}
		}
		c.SampleTTL = d
	}
	if v := os.Getenv("ASTROSEQ_RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_RETRY_MAX_ATTEMPTS", Err: ErrInvalidParameter}
		}
		c.RetryMaxAttempts = n
	}
	if v := os.Getenv("ASTROSEQ_RETRY_BASE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &SequencerError{Op: "Config.LoadFromEnv", Kind: KindInvalidParameter, ID: "ASTROSEQ_RETRY_BASE_DELAY", Err: ErrInvalidParameter}
		}
		c.RetryBaseDelay = d
	}
	if v := os.Getenv("ASTROSEQ_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ASTROSEQ_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}

	if c.logger != nil {
		c.logger.Info("configuration loaded from environment", map[string]interface{}{
			"max_concurrent": c.MaxConcurrent,
		})
	}
	return nil
}

// Validate checks that the config's values are usable.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return &SequencerError{Op: "Config.Validate", Kind: KindInvalidParameter, ID: "max_concurrent", Err: fmt.Errorf("%w: max concurrent must be >= 1", ErrInvalidParameter)}
	}
	if c.GlobalTimeout < 0 {
		return &SequencerError{Op: "Config.Validate", Kind: KindInvalidParameter, ID: "global_timeout", Err: fmt.Errorf("%w: global timeout must be >= 0", ErrInvalidParameter)}
	}
	if c.DispatchPoll <= 0 {
		return &SequencerError{Op: "Config.Validate", Kind: KindInvalidParameter, ID: "dispatch_poll", Err: fmt.Errorf("%w: dispatch poll must be positive", ErrInvalidParameter)}
	}
	if c.CPUCeiling <= 0 || c.CPUCeiling > 100 {
		return &SequencerError{Op: "Config.Validate", Kind: KindInvalidParameter, ID: "cpu_ceiling", Err: fmt.Errorf("%w: cpu ceiling must be in (0, 100]", ErrInvalidParameter)}
	}
	if c.RetryMaxAttempts < 1 {
		return &SequencerError{Op: "Config.Validate", Kind: KindInvalidParameter, ID: "retry_max_attempts", Err: fmt.Errorf("%w: retry max attempts must be >= 1", ErrInvalidParameter)}
	}
	return nil
}

// NewConfig builds a Config by applying defaults, then environment
// variables, then the supplied functional options, in that order, and
// validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Functional Options

// WithMaxConcurrent sets the maximum number of tasks the scheduler may
// run at once.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return &SequencerError{Op: "WithMaxConcurrent", Kind: KindInvalidParameter, Err: fmt.Errorf("%w: max concurrent must be >= 1", ErrInvalidParameter)}
		}
		c.MaxConcurrent = n
		return nil
	}
}

// WithGlobalTimeout sets the overall deadline for a single executeAll
// invocation. Zero means no deadline.
func WithGlobalTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return &SequencerError{Op: "WithGlobalTimeout", Kind: KindInvalidParameter, Err: fmt.Errorf("%w: global timeout must be >= 0", ErrInvalidParameter)}
		}
		c.GlobalTimeout = d
		return nil
	}
}

// WithDispatchPoll sets how often the scheduler re-checks the resource
// guard and ready queue while waiting for capacity to free up.
func WithDispatchPoll(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return &SequencerError{Op: "WithDispatchPoll", Kind: KindInvalidParameter, Err: fmt.Errorf("%w: dispatch poll must be positive", ErrInvalidParameter)}
		}
		c.DispatchPoll = d
		return nil
	}
}

// WithResourceCeilings sets the CPU percentage and RSS byte ceilings
// consulted by the resource guard. rssCeiling of 0 disables the RSS
// check.
func WithResourceCeilings(cpuPct float64, rssBytes int64) Option {
	return func(c *Config) error {
		if cpuPct <= 0 || cpuPct > 100 {
			return &SequencerError{Op: "WithResourceCeilings", Kind: KindInvalidParameter, Err: fmt.Errorf("%w: cpu ceiling must be in (0, 100]", ErrInvalidParameter)}
		}
		c.CPUCeiling = cpuPct
		c.RSSCeiling = rssBytes
		return nil
	}
}

// WithSampleTTL sets how long a resource sample is reused before the
// guard re-measures.
func WithSampleTTL(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return &SequencerError{Op: "WithSampleTTL", Kind: KindInvalidParameter, Err: fmt.Errorf("%w: sample ttl must be positive", ErrInvalidParameter)}
		}
		c.SampleTTL = d
		return nil
	}
}

// WithRetryDefaults sets the fallback retry attempts/base delay used
// when a Task does not specify its own RetryPolicy.
func WithRetryDefaults(maxAttempts int, baseDelay time.Duration) Option {
	return func(c *Config) error {
		if maxAttempts < 1 {
			return &SequencerError{Op: "WithRetryDefaults", Kind: KindInvalidParameter, Err: fmt.Errorf("%w: retry max attempts must be >= 1", ErrInvalidParameter)}
		}
		c.RetryMaxAttempts = maxAttempts
		c.RetryBaseDelay = baseDelay
		return nil
	}
}

// WithLogLevel sets the minimum level a SimpleLogger will emit.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.LogLevel = strings.ToLower(level)
		return nil
	}
}

// WithLogFormat records the log line format in LogFormat. SimpleLogger
// does not consult it and always writes text lines.
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.LogFormat = format
		return nil
	}
}

// WithLogger sets the logger the Config keeps and that LoadFromEnv
// reports to. NewConfig loads the environment before it applies
// options, so its own environment load does not report to a logger set
// here.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}
