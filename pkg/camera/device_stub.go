//go:build nogocv

package camera

import (
	"context"
	"log/slog"
)

// newDeviceSource returns a source that fails to open: device capture was
// compiled out.
func newDeviceSource(cfg Config, logger *slog.Logger) (Source, error) {
	logger.Warn("built without OpenCV, device capture unavailable")
	return unsupportedSource{device: cfg.Device}, nil
}

type unsupportedSource struct {
	device string
}

func (s unsupportedSource) Open(ctx context.Context) error {
	return &DeviceError{Device: s.device, Err: ErrDeviceUnsupported}
}

func (s unsupportedSource) Read(ctx context.Context) (*Frame, error) {
	return nil, ErrNotOpen
}

func (s unsupportedSource) Close() error { return nil }
