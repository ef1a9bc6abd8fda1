package sequencer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/lithium-go/astroseq/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeviceRegistry struct {
	handles map[string]DeviceHandle
}

func newFakeDeviceRegistry() *fakeDeviceRegistry {
	return &fakeDeviceRegistry{handles: make(map[string]DeviceHandle)}
}

func (r *fakeDeviceRegistry) Get(name string) (DeviceHandle, bool) {
	h, ok := r.handles[name]
	return h, ok
}

func (r *fakeDeviceRegistry) Register(name string, handle DeviceHandle) error {
	r.handles[name] = handle
	return nil
}

func (r *fakeDeviceRegistry) Unregister(name string) { delete(r.handles, name) }

func (r *fakeDeviceRegistry) Names() []string {
	names := make([]string, 0, len(r.handles))
	for n := range r.handles {
		names = append(names, n)
	}
	return names
}

type fakeCamera struct {
	name      string
	health    DeviceHealth
	exposures int
}

func (c *fakeCamera) Name() string          { return c.name }
func (c *fakeCamera) Health() DeviceHealth  { return c.health }
func (c *fakeCamera) Abort() error          { return nil }
func (c *fakeCamera) Expose(duration float64, frameType string) error {
	c.exposures++
	return nil
}

type fakeFilterWheel struct {
	name         string
	health       DeviceHealth
	lastPosition int
}

func (w *fakeFilterWheel) Name() string         { return w.name }
func (w *fakeFilterWheel) Health() DeviceHealth { return w.health }
func (w *fakeFilterWheel) CurrentFilter() string {
	return fmt.Sprintf("slot-%d", w.lastPosition)
}
func (w *fakeFilterWheel) SetPosition(position int) error {
	w.lastPosition = position
	return nil
}

func TestTaskFactoryRegisterRejectsDuplicateTag(t *testing.T) {
	factory := NewTaskFactory(nil)
	info := TaskInfo{TypeTag: "custom.action"}
	ctor := func(name string, config json.RawMessage) (*Task, error) {
		return actionTask(name, okAction), nil
	}

	require.NoError(t, factory.Register(info, ctor))
	err := factory.Register(info, ctor)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
}

func TestTaskFactoryCreateUnknownTagFails(t *testing.T) {
	factory := NewTaskFactory(nil)

	_, err := factory.Create("no.such.type", "instance-1", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTaskFactoryIsRegisteredAndListTypes(t *testing.T) {
	factory := NewTaskFactory(nil)
	require.NoError(t, factory.Register(TaskInfo{TypeTag: "b.action"}, func(name string, config json.RawMessage) (*Task, error) {
		return actionTask(name, okAction), nil
	}))
	require.NoError(t, factory.Register(TaskInfo{TypeTag: "a.action"}, func(name string, config json.RawMessage) (*Task, error) {
		return actionTask(name, okAction), nil
	}))

	assert.True(t, factory.IsRegistered("a.action"))
	assert.False(t, factory.IsRegistered("z.action"))
	assert.Equal(t, []string{"a.action", "b.action"}, factory.ListTypes())
}

func TestTaskFactoryGetInfo(t *testing.T) {
	factory := NewTaskFactory(nil)
	want := TaskInfo{TypeTag: "custom.action", Category: "misc", Version: "2.0"}
	require.NoError(t, factory.Register(want, func(name string, config json.RawMessage) (*Task, error) {
		return actionTask(name, okAction), nil
	}))

	got, ok := factory.GetInfo("custom.action")

	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = factory.GetInfo("missing")
	assert.False(t, ok)
}

func TestRegisterBuiltinTypesRegistersAllFive(t *testing.T) {
	factory := NewTaskFactory(nil)
	devices := newFakeDeviceRegistry()

	require.NoError(t, RegisterBuiltinTypes(factory, devices))

	assert.ElementsMatch(t, []string{
		TypeCameraTakeExposure,
		TypeFocuserAutoFocus,
		TypeFilterWheelSetPos,
		TypeGuiderAutoGuide,
		TypeSafetyWeatherMonitor,
	}, factory.ListTypes())
}

func TestRegisterBuiltinTypesCreateAndExecuteCameraTask(t *testing.T) {
	factory := NewTaskFactory(nil)
	devices := newFakeDeviceRegistry()
	cam := &fakeCamera{name: "ccd-1", health: DeviceConnected}
	require.NoError(t, devices.Register("ccd-1", cam))
	require.NoError(t, RegisterBuiltinTypes(factory, devices))

	config, err := json.Marshal(map[string]interface{}{
		"device":           "ccd-1",
		"duration_seconds": 30.0,
		"frame_type":       "light",
	})
	require.NoError(t, err)

	task, err := factory.Create(TypeCameraTakeExposure, "lights-1", config)
	require.NoError(t, err)
	assert.Equal(t, TypeCameraTakeExposure, task.TypeTag)

	require.NoError(t, task.Execute(context.Background(), map[string]interface{}{
		"device":           "ccd-1",
		"duration_seconds": 30.0,
		"frame_type":       "light",
	}))
	assert.Equal(t, 1, cam.exposures)
	assert.Equal(t, TaskCompleted, task.Status())
}

func TestBuiltinCameraTaskRunsThroughBuildSequencerWithoutTargetParams(t *testing.T) {
	factory := NewTaskFactory(nil)
	devices := newFakeDeviceRegistry()
	cam := &fakeCamera{name: "ccd-1", health: DeviceConnected}
	require.NoError(t, devices.Register("ccd-1", cam))
	require.NoError(t, RegisterBuiltinTypes(factory, devices))

	doc := &PlanDocument{
		Strategy:      string(StrategySequential),
		Scheduling:    string(SchedulingFIFO),
		Recovery:      string(RecoveryStop),
		MaxConcurrent: 1,
		Targets: []PlanTargetDef{
			{
				Name: "m31-lights",
				Tasks: []PlanTaskDef{
					{
						Name: "expose-1",
						Type: TypeCameraTakeExposure,
						Params: map[string]interface{}{
							"device":           "ccd-1",
							"duration_seconds": 30.0,
							"frame_type":       "light",
						},
					},
				},
			},
		},
	}

	seq, err := BuildSequencer(doc, factory, nil, nil, Callbacks{}, nil)
	require.NoError(t, err)

	require.NoError(t, seq.ExecuteAll(context.Background()))

	assert.Equal(t, 1, cam.exposures)
	assert.Equal(t, int64(1), seq.Metrics().TasksStarted)
	assert.Equal(t, int64(1), seq.Metrics().TasksCompleted)
}

func TestBuiltinFilterWheelTaskRunsThroughBuildSequencerWithoutTargetParams(t *testing.T) {
	factory := NewTaskFactory(nil)
	devices := newFakeDeviceRegistry()
	wheel := &fakeFilterWheel{name: "fw-1", health: DeviceConnected}
	require.NoError(t, devices.Register("fw-1", wheel))
	require.NoError(t, RegisterBuiltinTypes(factory, devices))

	doc := &PlanDocument{
		Strategy:      string(StrategySequential),
		Scheduling:    string(SchedulingFIFO),
		Recovery:      string(RecoveryStop),
		MaxConcurrent: 1,
		Targets: []PlanTargetDef{
			{
				Name: "filter-swap",
				Tasks: []PlanTaskDef{
					{
						Name: "set-ha",
						Type: TypeFilterWheelSetPos,
						Params: map[string]interface{}{
							"device":   "fw-1",
							"position": 3,
						},
					},
				},
			},
		},
	}

	seq, err := BuildSequencer(doc, factory, nil, nil, Callbacks{}, nil)
	require.NoError(t, err)

	require.NoError(t, seq.ExecuteAll(context.Background()))

	assert.Equal(t, 3, wheel.lastPosition)
}

func TestRegisterBuiltinTypesCreateRejectsMalformedConfig(t *testing.T) {
	factory := NewTaskFactory(nil)
	devices := newFakeDeviceRegistry()
	require.NoError(t, RegisterBuiltinTypes(factory, devices))

	_, err := factory.Create(TypeCameraTakeExposure, "lights-1", json.RawMessage(`not-json`))

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}
