package logger_test

import (
	"bytes"
	"context"
	stdlog "log"
	"os"
	"testing"

	"github.com/lithium-go/astroseq/core"
	"github.com/lithium-go/astroseq/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleLoggerDoesNotPanic(t *testing.T) {
	log := logger.NewSimpleLogger()

	assert.NotPanics(t, func() {
		log.Debug("debug message", map[string]interface{}{"test": "value"})
		log.Info("info message", map[string]interface{}{"test": "value"})
		log.Warn("warn message", map[string]interface{}{"test": "value"})
		log.Error("error message", map[string]interface{}{"test": "value"})
	})
}

func TestWithComponentPreservesLevel(t *testing.T) {
	log := logger.NewSimpleLogger()
	log.SetLevel("warn")

	scoped := log.WithComponent("sequencer/scheduler")
	assert.NotNil(t, scoped)
	assert.Equal(t, logger.WarnLevel, scoped.(*logger.SimpleLogger).Level())

	assert.NotPanics(t, func() {
		scoped.Info("should be suppressed below warn", nil)
		scoped.Warn("should print", nil)
	})
}

func TestWithContextInjectsRunID(t *testing.T) {
	log := logger.NewSimpleLogger()
	ctx := logger.ContextWithRunID(context.Background(), "run-123")

	var buf bytes.Buffer
	stdlog.SetOutput(&buf)
	defer stdlog.SetOutput(os.Stderr)

	assert.NotPanics(t, func() {
		log.InfoWithContext(ctx, "starting run", nil)
	})
	assert.Contains(t, buf.String(), "run_id=run-123")
}

func TestNewSimpleLoggerFromConfigAppliesLogLevel(t *testing.T) {
	cfg, err := core.NewConfig(core.WithLogLevel("warn"))
	require.NoError(t, err)

	log := logger.NewSimpleLoggerFromConfig(cfg)

	assert.Equal(t, logger.WarnLevel, log.Level())
}

func TestNewSimpleLoggerFromConfigNilUsesDefault(t *testing.T) {
	log := logger.NewSimpleLoggerFromConfig(nil)

	assert.Equal(t, logger.InfoLevel, log.Level())
}

func TestParseLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.DebugLevel,
		"info":    logger.InfoLevel,
		"warn":    logger.WarnLevel,
		"warning": logger.WarnLevel,
		"error":   logger.ErrorLevel,
		"bogus":   logger.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, logger.ParseLevel(in), in)
	}
}
