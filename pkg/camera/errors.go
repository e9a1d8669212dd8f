package camera

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture failures.
var (
	// ErrPermissionDenied means the process may not access the device.
	ErrPermissionDenied = errors.New("camera: permission denied")

	// ErrDeviceNotFound means no device exists at the configured location.
	ErrDeviceNotFound = errors.New("camera: device not found")

	// ErrDeviceUnsupported means the device exists but cannot be used for capture.
	ErrDeviceUnsupported = errors.New("camera: device not supported")

	// ErrDeviceBusy means the source is already open.
	ErrDeviceBusy = errors.New("camera: device already in use")

	// ErrSourceClosed is returned by Read after Close.
	ErrSourceClosed = errors.New("camera: source closed")

	// ErrNotOpen is returned by Read before Open.
	ErrNotOpen = errors.New("camera: source not open")
)

// DeviceError wraps an acquisition failure with the device it concerns.
type DeviceError struct {
	Device string
	Err    error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera [%s]: %v", e.Device, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsPermissionError reports whether err is one of the acquisition failures
// (denied, missing, unsupported or busy device).
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrDeviceUnsupported) ||
		errors.Is(err, ErrDeviceBusy)
}

// Describe returns a user-facing message for an acquisition error.
func Describe(err error) string {
	switch {
	case err == nil:
		return "Camera access granted - Ready to start!"
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access denied. Please allow camera permissions."
	case errors.Is(err, ErrDeviceNotFound):
		return "No camera found. Please connect a camera device."
	case errors.Is(err, ErrDeviceUnsupported):
		return "Camera not supported. Please check the device or capture backend."
	case errors.Is(err, ErrDeviceBusy):
		return "Camera is already in use."
	default:
		return "Camera access error. Please check your camera settings."
	}
}
