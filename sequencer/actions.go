package sequencer

import (
	"context"
	"fmt"

	"github.com/lithium-go/astroseq/core"
)

// The functions in this file wire the illustrative built-in task types
// to a named device through DeviceRegistry, converting raw device
// errors into the Device error kind so Target-level retry policy can
// act on them uniformly.

func deviceError(op, name string, err error) error {
	return &core.SequencerError{Op: op, Kind: core.KindDevice, ID: name, Err: fmt.Errorf("%w: %v", core.ErrDevice, err)}
}

func cameraExposureAction(registry DeviceRegistry, deviceName string) ActionFunc {
	return func(ctx context.Context, params map[string]interface{}, report ProgressFunc) error {
		handle, ok := registry.Get(deviceName)
		if !ok {
			return deviceError("camera.take_exposure", deviceName, fmt.Errorf("device not registered"))
		}
		cam, ok := handle.(CameraHandle)
		if !ok {
			return deviceError("camera.take_exposure", deviceName, fmt.Errorf("device does not implement CameraHandle"))
		}
		duration, _ := params["duration_seconds"].(float64)
		frameType, _ := params["frame_type"].(string)
		if err := cam.Expose(duration, frameType); err != nil {
			return deviceError("camera.take_exposure", deviceName, err)
		}
		report(1)
		return nil
	}
}

func focuserAutoFocusAction(registry DeviceRegistry, deviceName string) ActionFunc {
	return func(ctx context.Context, params map[string]interface{}, report ProgressFunc) error {
		handle, ok := registry.Get(deviceName)
		if !ok {
			return deviceError("focuser.auto_focus", deviceName, fmt.Errorf("device not registered"))
		}
		focuser, ok := handle.(FocuserHandle)
		if !ok {
			return deviceError("focuser.auto_focus", deviceName, fmt.Errorf("device does not implement FocuserHandle"))
		}
		if err := focuser.MoveTo(focuser.Position()); err != nil {
			return deviceError("focuser.auto_focus", deviceName, err)
		}
		report(1)
		return nil
	}
}

func filterWheelSetPositionAction(registry DeviceRegistry, deviceName string, position int) ActionFunc {
	return func(ctx context.Context, params map[string]interface{}, report ProgressFunc) error {
		handle, ok := registry.Get(deviceName)
		if !ok {
			return deviceError("filterwheel.set_position", deviceName, fmt.Errorf("device not registered"))
		}
		wheel, ok := handle.(FilterWheelHandle)
		if !ok {
			return deviceError("filterwheel.set_position", deviceName, fmt.Errorf("device does not implement FilterWheelHandle"))
		}
		if err := wheel.SetPosition(position); err != nil {
			return deviceError("filterwheel.set_position", deviceName, err)
		}
		report(1)
		return nil
	}
}

func guiderAutoGuideAction(registry DeviceRegistry, deviceName string) ActionFunc {
	return func(ctx context.Context, params map[string]interface{}, report ProgressFunc) error {
		handle, ok := registry.Get(deviceName)
		if !ok {
			return deviceError("guider.auto_guide", deviceName, fmt.Errorf("device not registered"))
		}
		guider, ok := handle.(GuiderHandle)
		if !ok {
			return deviceError("guider.auto_guide", deviceName, fmt.Errorf("device does not implement GuiderHandle"))
		}
		if err := guider.StartGuiding(); err != nil {
			return deviceError("guider.auto_guide", deviceName, err)
		}
		report(1)
		return nil
	}
}

func safetyWeatherMonitorAction(registry DeviceRegistry, deviceName string) ActionFunc {
	return func(ctx context.Context, params map[string]interface{}, report ProgressFunc) error {
		handle, ok := registry.Get(deviceName)
		if !ok {
			return deviceError("safety.weather_monitor", deviceName, fmt.Errorf("device not registered"))
		}
		if handle.Health() == DeviceError {
			return deviceError("safety.weather_monitor", deviceName, fmt.Errorf("device reporting error state"))
		}
		report(1)
		return nil
	}
}
