// Package core holds the ambient types shared by every sequencer
// component: the structured logging interface, the error taxonomy, and
// process configuration. Nothing in this package is astrophotography
// specific; it is the same seam a host application would also use to
// wire its HTTP controllers, device drivers, and config loader.
package core

import (
	"context"
)

// Logger is the minimal structured logging interface used throughout
// the sequencer. Implementations may forward to any backend; callers
// never depend on a concrete logging library.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a component tag so logs
// from the scheduler, a target, or a resource guard can be filtered
// independently in a shared log stream.
//
// Component naming convention:
//   - "sequencer/scheduler"     - dispatch loop
//   - "sequencer/target"        - target execution
//   - "sequencer/resourceguard" - admission control
//   - "sequencer/metrics"       - metrics collection
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional tracing seam the Sequencer uses around
// executeAll and each target's execution. A NoOpTelemetry is
// used when no tracer is configured.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a single traced operation.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpLogger discards everything. Used as the default when no logger
// is supplied, so components never need a nil check before logging.
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

func (n *NoOpLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}
func (n *NoOpLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
}

// NoOpTelemetry discards spans and metrics. Used when the Sequencer is
// created without a Telemetry implementation.
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan discards attributes and errors.
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}
