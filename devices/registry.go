// Package devices provides an in-memory DeviceRegistry suitable for
// tests and local wiring. Concrete network-backed device drivers are
// outside this module's scope.
package devices

import (
	"fmt"
	"sort"
	"sync"

	"github.com/lithium-go/astroseq/core"
	"github.com/lithium-go/astroseq/resilience"
	"github.com/lithium-go/astroseq/sequencer"
)

// Registry is a concurrency-safe, in-memory sequencer.DeviceRegistry.
// Every registered device gets its own CircuitBreaker; Get returns a
// handle wrapped so that a device failing repeatedly stops being
// dispatched to until its breaker's sleep window elapses, rather than
// having every Task retry hammer a device that is clearly down.
type Registry struct {
	mu       sync.RWMutex
	handles  map[string]sequencer.DeviceHandle
	breakers map[string]*resilience.CircuitBreaker
	logger   core.Logger
}

// NewRegistry creates an empty Registry. A nil logger is replaced with
// a no-op logger.
func NewRegistry(logger core.Logger) *Registry {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Registry{
		handles:  make(map[string]sequencer.DeviceHandle),
		breakers: make(map[string]*resilience.CircuitBreaker),
		logger:   logger,
	}
}

// Register adds handle under name. Registering the same name twice
// returns core.ErrAlreadyRegistered.
func (r *Registry) Register(name string, handle sequencer.DeviceHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[name]; exists {
		return &core.SequencerError{Op: "Registry.Register", Kind: core.KindInvalidParameter, ID: name, Err: core.ErrAlreadyRegistered}
	}
	r.handles[name] = handle
	r.breakers[name] = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:   name,
		Logger: r.logger,
	})
	r.logger.Info("device registered", map[string]interface{}{"device": name})
	return nil
}

// Unregister removes name, if present. Unregistering an unknown name
// is a no-op, matching the teacher's idempotent removal style.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, name)
	delete(r.breakers, name)
}

// Get returns the handle registered under name, wrapped with its
// circuit breaker, if any.
func (r *Registry) Get(name string) (sequencer.DeviceHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	if !ok {
		return nil, false
	}
	return &breakerHandle{name: name, inner: h, breaker: r.breakers[name]}, true
}

// Names returns the registered device names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handles))
	for n := range r.handles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var _ sequencer.DeviceRegistry = (*Registry)(nil)
var _ fmt.Stringer = (*Registry)(nil)

// String summarizes the registry's contents for debugging.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("devices.Registry{%d handles}", len(r.handles))
}

// breakerHandle wraps a device handle so every fallible operation runs
// through the device's CircuitBreaker. It implements every role
// interface sequencer.actions.go might assert against; an operation
// called on a handle that doesn't actually support it fails with a
// plain error rather than panicking, same as a missing method would if
// the assertion itself had failed.
type breakerHandle struct {
	name    string
	inner   sequencer.DeviceHandle
	breaker *resilience.CircuitBreaker
}

func (h *breakerHandle) Name() string                  { return h.inner.Name() }
func (h *breakerHandle) Health() sequencer.DeviceHealth { return h.inner.Health() }

func (h *breakerHandle) Expose(durationSeconds float64, frameType string) error {
	cam, ok := h.inner.(sequencer.CameraHandle)
	if !ok {
		return fmt.Errorf("device %s does not implement CameraHandle", h.name)
	}
	return h.breaker.Execute(func() error { return cam.Expose(durationSeconds, frameType) })
}

func (h *breakerHandle) Abort() error {
	cam, ok := h.inner.(sequencer.CameraHandle)
	if !ok {
		return fmt.Errorf("device %s does not implement CameraHandle", h.name)
	}
	return h.breaker.Execute(func() error { return cam.Abort() })
}

func (h *breakerHandle) MoveTo(position int) error {
	focuser, ok := h.inner.(sequencer.FocuserHandle)
	if !ok {
		return fmt.Errorf("device %s does not implement FocuserHandle", h.name)
	}
	return h.breaker.Execute(func() error { return focuser.MoveTo(position) })
}

func (h *breakerHandle) Position() int {
	if focuser, ok := h.inner.(sequencer.FocuserHandle); ok {
		return focuser.Position()
	}
	return 0
}

func (h *breakerHandle) SetPosition(position int) error {
	wheel, ok := h.inner.(sequencer.FilterWheelHandle)
	if !ok {
		return fmt.Errorf("device %s does not implement FilterWheelHandle", h.name)
	}
	return h.breaker.Execute(func() error { return wheel.SetPosition(position) })
}

func (h *breakerHandle) CurrentFilter() string {
	if wheel, ok := h.inner.(sequencer.FilterWheelHandle); ok {
		return wheel.CurrentFilter()
	}
	return ""
}

func (h *breakerHandle) StartGuiding() error {
	guider, ok := h.inner.(sequencer.GuiderHandle)
	if !ok {
		return fmt.Errorf("device %s does not implement GuiderHandle", h.name)
	}
	return h.breaker.Execute(func() error { return guider.StartGuiding() })
}

func (h *breakerHandle) StopGuiding() error {
	guider, ok := h.inner.(sequencer.GuiderHandle)
	if !ok {
		return fmt.Errorf("device %s does not implement GuiderHandle", h.name)
	}
	return h.breaker.Execute(func() error { return guider.StopGuiding() })
}

func (h *breakerHandle) Dither(pixels float64) error {
	guider, ok := h.inner.(sequencer.GuiderHandle)
	if !ok {
		return fmt.Errorf("device %s does not implement GuiderHandle", h.name)
	}
	return h.breaker.Execute(func() error { return guider.Dither(pixels) })
}

var _ sequencer.DeviceHandle = (*breakerHandle)(nil)
var _ sequencer.CameraHandle = (*breakerHandle)(nil)
var _ sequencer.FocuserHandle = (*breakerHandle)(nil)
var _ sequencer.FilterWheelHandle = (*breakerHandle)(nil)
var _ sequencer.GuiderHandle = (*breakerHandle)(nil)
