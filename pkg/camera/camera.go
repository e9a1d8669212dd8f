// Package camera provides capture sources that produce frames for classification.
//
// Three backends are available:
//   - device: a local camera read through OpenCV (gocv)
//   - folder: image files written into a watched directory (shared memory, drop folders)
//   - mock: synthetic frames for tests and demos
//
// A Source is owned by exactly one reader at a time. Opening a source that is
// already open fails with ErrDeviceBusy.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Frame is one still image sampled from a source.
type Frame struct {
	ID         uuid.UUID
	Image      image.Image
	CapturedAt time.Time
	Source     string
}

// NewFrame stamps an image with a fresh ID and capture time.
func NewFrame(img image.Image, source string) *Frame {
	return &Frame{
		ID:         uuid.New(),
		Image:      img,
		CapturedAt: time.Now(),
		Source:     source,
	}
}

// JPEG encodes the frame for transport.
func (f *Frame) JPEG(quality int) ([]byte, error) {
	if f == nil || f.Image == nil {
		return nil, fmt.Errorf("camera: empty frame")
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("camera: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Source produces frames.
type Source interface {
	// Open acquires the underlying device. It fails with a *DeviceError when
	// the device is missing, denied or unsupported.
	Open(ctx context.Context) error

	// Read blocks until the next frame is available or ctx is done.
	// After Close it returns ErrSourceClosed.
	Read(ctx context.Context) (*Frame, error)

	// Close releases the device. Closing a closed source is a no-op.
	Close() error
}

// New creates a source for the configured backend.
func New(cfg Config, logger *slog.Logger) (Source, error) {
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", problems)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "camera", "backend", cfg.Backend)

	logger.Info("creating capture source",
		"width", cfg.Width,
		"height", cfg.Height,
		"mirror", cfg.Mirror,
	)

	switch cfg.Backend {
	case BackendDevice:
		return newDeviceSource(cfg, logger)
	case BackendFolder:
		return NewFolderSource(cfg, logger), nil
	case BackendMock:
		return NewMockSource(cfg), nil
	default:
		return nil, fmt.Errorf("camera: unknown backend %q", cfg.Backend)
	}
}

// Check opens and immediately releases src, reporting whether the device is usable.
func Check(ctx context.Context, src Source) error {
	if err := src.Open(ctx); err != nil {
		return err
	}
	return src.Close()
}
