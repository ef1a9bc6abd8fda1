package sequencer

import "github.com/lithium-go/astroseq/core"

// componentLogger tags logger with component if it implements
// core.ComponentAwareLogger, otherwise returns logger unchanged.
func componentLogger(logger core.Logger, component string) core.Logger {
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		return cal.WithComponent(component)
	}
	return logger
}
