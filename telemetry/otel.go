// Package telemetry adapts OpenTelemetry to the sequencer's core.Telemetry
// seam: spans around executeAll and each target's execution, exported to
// stdout for local inspection, plus a small set of counters/histograms
// recorded alongside (not instead of) MetricsCollector's own atomic
// counters.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/lithium-go/astroseq/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelProvider implements core.Telemetry with an OpenTelemetry trace
// pipeline exported to stdout and an in-process meter for the handful
// of counters/histograms RecordMetric produces. There is no periodic
// metric exporter wired: a host that wants metrics shipped off-box
// should read MetricsCollector.Snapshot() instead.
type OTelProvider struct {
	tracer   trace.Tracer
	meter    metric.Meter
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
	instr    *instrumentCache
	mu       sync.RWMutex
	shutdown bool
}

// NewOTelProvider creates a provider that prints completed spans to
// stdout, tagged with serviceName under the standard semconv resource
// attribute.
func NewOTelProvider(serviceName string) (*OTelProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name cannot be empty")
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create stdout trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	meterName := "astroseq/sequencer"
	return &OTelProvider{
		tracer: tp.Tracer(meterName),
		meter:  mp.Meter(meterName),
		tp:     tp,
		mp:     mp,
		instr:  newInstrumentCache(mp.Meter(meterName)),
	}, nil
}

// StartSpan implements core.Telemetry.
func (o *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	o.mu.RLock()
	down := o.shutdown
	o.mu.RUnlock()
	if down || o.tracer == nil {
		return ctx, &core.NoOpSpan{}
	}
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry, routing by name suffix to a
// histogram ("_ms", "duration") or a counter (everything else).
func (o *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	o.mu.RLock()
	down := o.shutdown
	o.mu.RUnlock()
	if down {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	if hasSuffix(name, "_ms") || hasSuffix(name, "duration") {
		o.instr.recordHistogram(context.Background(), name, value, attrs)
		return
	}
	o.instr.recordCounter(context.Background(), name, value, attrs)
}

// Shutdown flushes and stops the trace/meter providers. Safe to call
// more than once.
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil
	}
	o.shutdown = true
	o.mu.Unlock()

	var errs []error
	if o.tp != nil {
		if err := o.tp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if o.mp != nil {
		if err := o.mp.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown: %v", errs)
	}
	return nil
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
