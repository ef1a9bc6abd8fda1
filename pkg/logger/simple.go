package logger

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/lithium-go/astroseq/core"
)

// SimpleLogger writes "[LEVEL] component: msg key=val ..." lines to the
// standard log package. It implements core.Logger and
// core.ComponentAwareLogger.
type SimpleLogger struct {
	level     LogLevel
	component string
}

// NewSimpleLogger creates a logger at InfoLevel with no component tag.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{level: InfoLevel}
}

// NewDefaultLogger creates a new default core.Logger instance.
func NewDefaultLogger() core.Logger {
	return NewSimpleLogger()
}

// NewSimpleLoggerFromConfig creates a logger at cfg.LogLevel. LogFormat
// is not consulted: SimpleLogger only ever writes the "text" form this
// package implements; a future JSON-formatting logger would be a
// separate core.Logger implementation selected by that field, not a
// mode of this one. A nil cfg behaves like NewSimpleLogger.
func NewSimpleLoggerFromConfig(cfg *core.Config) *SimpleLogger {
	l := NewSimpleLogger()
	if cfg != nil {
		l.SetLevel(cfg.LogLevel)
	}
	return l
}

// SetLevel sets the minimum level this logger emits.
func (l *SimpleLogger) SetLevel(level string) {
	l.level = ParseLevel(level)
}

// Level returns the logger's current minimum emitted level.
func (l *SimpleLogger) Level() LogLevel {
	return l.level
}

// WithComponent returns a logger tagged with component, preserving the
// current level.
func (l *SimpleLogger) WithComponent(component string) core.Logger {
	return &SimpleLogger{level: l.level, component: component}
}

func (l *SimpleLogger) Debug(msg string, fields map[string]interface{}) {
	if l.level <= DebugLevel {
		l.log("DEBUG", msg, fields)
	}
}

func (l *SimpleLogger) Info(msg string, fields map[string]interface{}) {
	if l.level <= InfoLevel {
		l.log("INFO", msg, fields)
	}
}

func (l *SimpleLogger) Warn(msg string, fields map[string]interface{}) {
	if l.level <= WarnLevel {
		l.log("WARN", msg, fields)
	}
}

func (l *SimpleLogger) Error(msg string, fields map[string]interface{}) {
	if l.level <= ErrorLevel {
		l.log("ERROR", msg, fields)
	}
}

func (l *SimpleLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Debug(msg, withRunID(ctx, fields))
}

func (l *SimpleLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Info(msg, withRunID(ctx, fields))
}

func (l *SimpleLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Warn(msg, withRunID(ctx, fields))
}

func (l *SimpleLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Error(msg, withRunID(ctx, fields))
}

type runIDKey struct{}

// ContextWithRunID attaches a run identifier to ctx so *WithContext log
// calls made while executing that run include it automatically.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func withRunID(ctx context.Context, fields map[string]interface{}) map[string]interface{} {
	runID, ok := ctx.Value(runIDKey{}).(string)
	if !ok || runID == "" {
		return fields
	}
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	merged["run_id"] = runID
	return merged
}

func (l *SimpleLogger) log(level, msg string, fields map[string]interface{}) {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", level))
	if l.component != "" {
		parts = append(parts, l.component+":")
	}
	parts = append(parts, msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}

	log.Println(strings.Join(parts, " "))
}
