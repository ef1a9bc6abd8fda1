package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.DispatchPoll)
}

func TestNewConfigAppliesOptionsOverDefaults(t *testing.T) {
	cfg, err := NewConfig(
		WithMaxConcurrent(6),
		WithGlobalTimeout(2*time.Hour),
		WithResourceCeilings(75, 1<<30),
	)

	require.NoError(t, err)
	assert.Equal(t, 6, cfg.MaxConcurrent)
	assert.Equal(t, 2*time.Hour, cfg.GlobalTimeout)
	assert.Equal(t, 75.0, cfg.CPUCeiling)
	assert.Equal(t, int64(1<<30), cfg.RSSCeiling)
}

func TestNewConfigRejectsInvalidOption(t *testing.T) {
	_, err := NewConfig(WithMaxConcurrent(0))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ASTROSEQ_MAX_CONCURRENT", "8")
	t.Setenv("ASTROSEQ_CPU_CEILING", "60.5")
	t.Setenv("ASTROSEQ_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.Equal(t, 60.5, cfg.CPUCeiling)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromEnvRejectsMalformedValue(t *testing.T) {
	t.Setenv("ASTROSEQ_MAX_CONCURRENT", "not-a-number")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestOptionsTakePrecedenceOverEnv(t *testing.T) {
	t.Setenv("ASTROSEQ_MAX_CONCURRENT", "8")

	cfg, err := NewConfig(WithMaxConcurrent(3))

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxConcurrent, "functional options must win over environment variables")
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.MaxConcurrent = 0 },
		func(c *Config) { c.GlobalTimeout = -1 },
		func(c *Config) { c.DispatchPoll = 0 },
		func(c *Config) { c.CPUCeiling = 0 },
		func(c *Config) { c.CPUCeiling = 150 },
		func(c *Config) { c.RetryMaxAttempts = 0 },
	}

	for _, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate())
	}
}
