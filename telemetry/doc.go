// Package telemetry wires OpenTelemetry tracing into the sequencer's
// optional core.Telemetry seam.
//
// OTelProvider exports spans to stdout via the stdout trace exporter —
// adequate for local runs and tests; a host wanting a remote collector
// should build its own core.Telemetry implementation using the same
// StartSpan/RecordMetric shape.
//
// Usage:
//
//	provider, err := telemetry.NewOTelProvider("astroseq")
//	seq := sequencer.NewSequencer(...)
//	seq.SetTelemetry(provider)
//	defer provider.Shutdown(context.Background())
package telemetry
