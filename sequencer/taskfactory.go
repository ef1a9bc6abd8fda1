package sequencer

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lithium-go/astroseq/core"
)

// TaskConstructor builds a Task from its instance name and a raw JSON
// configuration blob. Implementations typically close over a
// DeviceRegistry to resolve the device handle the Task's action needs.
type TaskConstructor func(name string, config json.RawMessage) (*Task, error)

// TaskInfo describes a registered type tag for discovery/introspection.
type TaskInfo struct {
	TypeTag     string
	Category    string
	Version     string
	ParamSchema []ParamSpec
}

// TaskFactory is a process-wide registry mapping a type tag to a
// constructor. Registration happens once at startup; concurrent
// registration is serialized by an internal mutex.
type TaskFactory struct {
	mu           sync.RWMutex
	constructors map[string]TaskConstructor
	info         map[string]TaskInfo
	logger       core.Logger
}

// NewTaskFactory creates an empty TaskFactory. A nil logger is replaced
// with a no-op logger.
func NewTaskFactory(logger core.Logger) *TaskFactory {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &TaskFactory{
		constructors: make(map[string]TaskConstructor),
		info:         make(map[string]TaskInfo),
		logger:       logger,
	}
}

// Register adds a constructor under typeTag. Registering the same tag
// twice returns core.ErrAlreadyRegistered.
func (f *TaskFactory) Register(info TaskInfo, ctor TaskConstructor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.constructors[info.TypeTag]; exists {
		return &core.SequencerError{Op: "TaskFactory.Register", Kind: core.KindInvalidParameter, ID: info.TypeTag, Err: core.ErrAlreadyRegistered}
	}
	f.constructors[info.TypeTag] = ctor
	f.info[info.TypeTag] = info
	f.logger.Info("task type registered", map[string]interface{}{"type": info.TypeTag, "category": info.Category})
	return nil
}

// Create constructs a Task of typeTag. Creating an unknown tag returns
// core.ErrNotFound.
func (f *TaskFactory) Create(typeTag, name string, config json.RawMessage) (*Task, error) {
	f.mu.RLock()
	ctor, exists := f.constructors[typeTag]
	f.mu.RUnlock()

	if !exists {
		return nil, &core.SequencerError{Op: "TaskFactory.Create", Kind: core.KindInvalidParameter, ID: typeTag, Err: fmt.Errorf("%w: task type %q", core.ErrNotFound, typeTag)}
	}
	return ctor(name, config)
}

// IsRegistered reports whether typeTag has a constructor registered.
func (f *TaskFactory) IsRegistered(typeTag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.constructors[typeTag]
	return exists
}

// ListTypes returns every registered type tag, sorted.
func (f *TaskFactory) ListTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tags := make([]string, 0, len(f.constructors))
	for tag := range f.constructors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// GetInfo returns the TaskInfo registered for typeTag.
func (f *TaskFactory) GetInfo(typeTag string) (TaskInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	info, exists := f.info[typeTag]
	return info, exists
}

// Built-in type tags recovered from the task categories a complete
// exposure sequencer registers at startup: camera, focus, filter,
// guide, and safety actions driven through the device capability
// interface (sequencer.DeviceHandle and its role interfaces).
const (
	TypeCameraTakeExposure    = "camera.take_exposure"
	TypeFocuserAutoFocus      = "focuser.auto_focus"
	TypeFilterWheelSetPos     = "filterwheel.set_position"
	TypeGuiderAutoGuide       = "guider.auto_guide"
	TypeSafetyWeatherMonitor  = "safety.weather_monitor"
)

// exposureParams is the JSON config shape for TypeCameraTakeExposure.
type exposureParams struct {
	Device          string  `json:"device"`
	DurationSeconds float64 `json:"duration_seconds"`
	FrameType       string  `json:"frame_type"`
}

// RegisterBuiltinTypes registers the illustrative camera/focuser/
// filterwheel/guider/safety task types against devices, wiring each
// constructor's action through the named device's role interface.
func RegisterBuiltinTypes(factory *TaskFactory, devices DeviceRegistry) error {
	if err := factory.Register(TaskInfo{
		TypeTag:  TypeCameraTakeExposure,
		Category: "camera",
		Version:  "1.0",
		ParamSchema: []ParamSpec{
			{Name: "device", Type: ParamString, Required: true},
			{Name: "duration_seconds", Type: ParamNumber, Required: true},
			{Name: "frame_type", Type: ParamString, Required: false, Default: "light"},
		},
	}, func(name string, config json.RawMessage) (*Task, error) {
		var p exposureParams
		if err := json.Unmarshal(config, &p); err != nil {
			return nil, &core.SequencerError{Op: "camera.take_exposure", Kind: core.KindInvalidParameter, ID: name, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
		}
		task := NewTask(name, TypeCameraTakeExposure,
			[]ParamSpec{
				{Name: "device", Type: ParamString, Required: true},
				{Name: "duration_seconds", Type: ParamNumber, Required: true},
				{Name: "frame_type", Type: ParamString, Required: false, Default: "light"},
			},
			cameraExposureAction(devices, p.Device),
			DefaultRetryPolicy(), 0, nil,
		)
		instance := map[string]interface{}{
			"device":           p.Device,
			"duration_seconds": p.DurationSeconds,
		}
		if p.FrameType != "" {
			instance["frame_type"] = p.FrameType
		}
		task.InstanceParams = instance
		return task, nil
	}); err != nil {
		return err
	}

	if err := factory.Register(TaskInfo{
		TypeTag:  TypeFocuserAutoFocus,
		Category: "focus",
		Version:  "1.0",
		ParamSchema: []ParamSpec{
			{Name: "device", Type: ParamString, Required: true},
		},
	}, func(name string, config json.RawMessage) (*Task, error) {
		var p struct {
			Device string `json:"device"`
		}
		if err := json.Unmarshal(config, &p); err != nil {
			return nil, &core.SequencerError{Op: "focuser.auto_focus", Kind: core.KindInvalidParameter, ID: name, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
		}
		task := NewTask(name, TypeFocuserAutoFocus,
			[]ParamSpec{{Name: "device", Type: ParamString, Required: true}},
			focuserAutoFocusAction(devices, p.Device),
			DefaultRetryPolicy(), 0, nil,
		)
		task.InstanceParams = map[string]interface{}{"device": p.Device}
		return task, nil
	}); err != nil {
		return err
	}

	if err := factory.Register(TaskInfo{
		TypeTag:  TypeFilterWheelSetPos,
		Category: "filter",
		Version:  "1.0",
		ParamSchema: []ParamSpec{
			{Name: "device", Type: ParamString, Required: true},
			{Name: "position", Type: ParamInteger, Required: true},
		},
	}, func(name string, config json.RawMessage) (*Task, error) {
		var p struct {
			Device   string `json:"device"`
			Position int    `json:"position"`
		}
		if err := json.Unmarshal(config, &p); err != nil {
			return nil, &core.SequencerError{Op: "filterwheel.set_position", Kind: core.KindInvalidParameter, ID: name, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
		}
		task := NewTask(name, TypeFilterWheelSetPos,
			[]ParamSpec{
				{Name: "device", Type: ParamString, Required: true},
				{Name: "position", Type: ParamInteger, Required: true},
			},
			filterWheelSetPositionAction(devices, p.Device, p.Position),
			DefaultRetryPolicy(), 0, nil,
		)
		task.InstanceParams = map[string]interface{}{
			"device":   p.Device,
			"position": p.Position,
		}
		return task, nil
	}); err != nil {
		return err
	}

	if err := factory.Register(TaskInfo{
		TypeTag:  TypeGuiderAutoGuide,
		Category: "guide",
		Version:  "1.0",
		ParamSchema: []ParamSpec{
			{Name: "device", Type: ParamString, Required: true},
		},
	}, func(name string, config json.RawMessage) (*Task, error) {
		var p struct {
			Device string `json:"device"`
		}
		if err := json.Unmarshal(config, &p); err != nil {
			return nil, &core.SequencerError{Op: "guider.auto_guide", Kind: core.KindInvalidParameter, ID: name, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
		}
		task := NewTask(name, TypeGuiderAutoGuide,
			[]ParamSpec{{Name: "device", Type: ParamString, Required: true}},
			guiderAutoGuideAction(devices, p.Device),
			DefaultRetryPolicy(), 0, nil,
		)
		task.InstanceParams = map[string]interface{}{"device": p.Device}
		return task, nil
	}); err != nil {
		return err
	}

	return factory.Register(TaskInfo{
		TypeTag:  TypeSafetyWeatherMonitor,
		Category: "safety",
		Version:  "1.0",
		ParamSchema: []ParamSpec{
			{Name: "device", Type: ParamString, Required: true},
		},
	}, func(name string, config json.RawMessage) (*Task, error) {
		var p struct {
			Device string `json:"device"`
		}
		if err := json.Unmarshal(config, &p); err != nil {
			return nil, &core.SequencerError{Op: "safety.weather_monitor", Kind: core.KindInvalidParameter, ID: name, Err: fmt.Errorf("%w: %v", core.ErrInvalidParameter, err)}
		}
		task := NewTask(name, TypeSafetyWeatherMonitor,
			[]ParamSpec{{Name: "device", Type: ParamString, Required: true}},
			safetyWeatherMonitorAction(devices, p.Device),
			DefaultRetryPolicy(), 0, nil,
		)
		task.InstanceParams = map[string]interface{}{"device": p.Device}
		return task, nil
	})
}
