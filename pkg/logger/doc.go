// Package logger provides structured logging for the sequencer.
//
// # Structured Logging
//
// All log methods accept structured fields for context:
//
//	log.Info("dispatching task", map[string]interface{}{
//	    "task_id": t.ID,
//	    "target":  target.Name,
//	})
//
// # Component Tagging
//
// WithComponent returns a child logger whose lines are prefixed with a
// component name, so scheduler, target, and resource guard logs can be
// told apart in a shared stream:
//
//	schedLog := log.WithComponent("sequencer/scheduler")
//
// # Configuration
//
// SimpleLogger's level is set via core.Config's LogLevel field, which
// in turn can come from the ASTROSEQ_LOG_LEVEL environment variable.
package logger
