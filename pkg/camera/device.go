//go:build !nogocv

package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

// DeviceSource captures frames from a local camera through OpenCV.
type DeviceSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	raw     gocv.Mat
	scaled  gocv.Mat
	open    bool
	closed  bool
}

func newDeviceSource(cfg Config, logger *slog.Logger) (Source, error) {
	return NewDeviceSource(cfg, logger), nil
}

// NewDeviceSource creates an unopened device source.
func NewDeviceSource(cfg Config, logger *slog.Logger) *DeviceSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceSource{cfg: cfg, logger: logger}
}

// Open acquires the camera.
func (d *DeviceSource) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return &DeviceError{Device: d.cfg.Device, Err: ErrDeviceBusy}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := probeDevice(d.cfg.Device); err != nil {
		return err
	}

	capture, err := gocv.OpenVideoCapture(d.cfg.Device)
	if err != nil {
		return &DeviceError{Device: d.cfg.Device, Err: fmt.Errorf("%w: %v", ErrDeviceNotFound, err)}
	}
	if !capture.IsOpened() {
		capture.Close()
		return &DeviceError{Device: d.cfg.Device, Err: ErrDeviceUnsupported}
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(d.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(d.cfg.Height))

	d.capture = capture
	d.raw = gocv.NewMat()
	d.scaled = gocv.NewMat()
	d.open = true
	d.closed = false

	d.logger.Info("camera opened",
		"device", d.cfg.Device,
		"native_width", capture.Get(gocv.VideoCaptureFrameWidth),
		"native_height", capture.Get(gocv.VideoCaptureFrameHeight),
	)
	return nil
}

// Read grabs the next frame, resized and mirrored per config.
func (d *DeviceSource) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrSourceClosed
	}
	if !d.open {
		return nil, ErrNotOpen
	}

	if ok := d.capture.Read(&d.raw); !ok || d.raw.Empty() {
		return nil, fmt.Errorf("camera [%s]: empty frame", d.cfg.Device)
	}

	gocv.Resize(d.raw, &d.scaled, image.Pt(d.cfg.Width, d.cfg.Height), 0, 0, gocv.InterpolationLinear)
	if d.cfg.Mirror {
		gocv.Flip(d.scaled, &d.scaled, 1)
	}

	img, err := d.scaled.ToImage()
	if err != nil {
		return nil, fmt.Errorf("camera [%s]: convert frame: %w", d.cfg.Device, err)
	}
	return NewFrame(img, d.cfg.Device), nil
}

// Close releases the camera.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.open {
		return nil
	}
	d.open = false
	d.closed = true

	d.raw.Close()
	d.scaled.Close()
	err := d.capture.Close()
	d.capture = nil

	d.logger.Info("camera closed", "device", d.cfg.Device)
	return err
}

// probeDevice maps missing or unreadable /dev/videoN nodes to typed errors
// before OpenCV reduces them to a bare failure.
func probeDevice(device string) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	idx, err := strconv.Atoi(device)
	if err != nil {
		// Stream URL or file path: nothing to probe.
		return nil
	}

	path := fmt.Sprintf("/dev/video%d", idx)
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, os.ErrNotExist):
		return &DeviceError{Device: device, Err: ErrDeviceNotFound}
	case errors.Is(err, os.ErrPermission):
		return &DeviceError{Device: device, Err: ErrPermissionDenied}
	default:
		return &DeviceError{Device: device, Err: fmt.Errorf("%w: %v", ErrDeviceUnsupported, err)}
	}
}
