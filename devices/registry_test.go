package devices

import (
	"errors"
	"testing"

	"github.com/lithium-go/astroseq/core"
	"github.com/lithium-go/astroseq/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCamera struct {
	name      string
	health    sequencer.DeviceHealth
	failNext  int
	exposures int
}

func (c *fakeCamera) Name() string                 { return c.name }
func (c *fakeCamera) Health() sequencer.DeviceHealth { return c.health }
func (c *fakeCamera) Abort() error                  { return nil }

func (c *fakeCamera) Expose(durationSeconds float64, frameType string) error {
	if c.failNext > 0 {
		c.failNext--
		return errors.New("sensor not cold")
	}
	c.exposures++
	return nil
}

type fakeFocuserOnly struct{ name string }

func (f *fakeFocuserOnly) Name() string                 { return f.name }
func (f *fakeFocuserOnly) Health() sequencer.DeviceHealth { return sequencer.DeviceConnected }
func (f *fakeFocuserOnly) MoveTo(position int) error    { return nil }
func (f *fakeFocuserOnly) Position() int                { return 500 }

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	cam := &fakeCamera{name: "ccd-1", health: sequencer.DeviceConnected}

	require.NoError(t, r.Register("ccd-1", cam))

	handle, ok := r.Get("ccd-1")
	require.True(t, ok)
	assert.Equal(t, "ccd-1", handle.Name())
	assert.Equal(t, sequencer.DeviceConnected, handle.Health())
}

func TestRegistryRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("ccd-1", &fakeCamera{name: "ccd-1"}))

	err := r.Register("ccd-1", &fakeCamera{name: "ccd-1"})

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("ccd-1", &fakeCamera{name: "ccd-1"}))

	assert.NotPanics(t, func() {
		r.Unregister("ccd-1")
		r.Unregister("ccd-1")
		r.Unregister("never-registered")
	})

	_, ok := r.Get("ccd-1")
	assert.False(t, ok)
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("zeta", &fakeCamera{name: "zeta"}))
	require.NoError(t, r.Register("alpha", &fakeCamera{name: "alpha"}))

	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
}

func TestRegistryGetWrapsRoleNotImplementedAsPlainError(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("focuser-1", &fakeFocuserOnly{name: "focuser-1"}))

	handle, ok := r.Get("focuser-1")
	require.True(t, ok)

	cam, ok := handle.(sequencer.CameraHandle)
	require.True(t, ok, "breakerHandle implements CameraHandle unconditionally")

	err := cam.Expose(30, "light")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not implement CameraHandle")
}

func TestRegistryRepeatedFailuresTripDeviceCircuitBreaker(t *testing.T) {
	r := NewRegistry(nil)
	cam := &fakeCamera{name: "ccd-1", health: sequencer.DeviceConnected, failNext: 10}
	require.NoError(t, r.Register("ccd-1", cam))

	handle, ok := r.Get("ccd-1")
	require.True(t, ok)
	camHandle := handle.(sequencer.CameraHandle)

	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = camHandle.Expose(30, "light")
	}
	require.Error(t, lastErr)

	// The breaker has now tripped open; a fresh Get wraps the same
	// breaker, so the next call is rejected without reaching the device.
	handle2, _ := r.Get("ccd-1")
	err := handle2.(sequencer.CameraHandle).Expose(30, "light")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDevice)
	assert.Equal(t, 0, cam.exposures, "breaker opened before any exposure ever succeeded")
}

var _ sequencer.CameraHandle = (*fakeCamera)(nil)
var _ sequencer.FocuserHandle = (*fakeFocuserOnly)(nil)
