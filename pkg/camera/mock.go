package camera

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource generates synthetic frames without hardware.
type MockSource struct {
	cfg Config

	// OpenErr, when set, is returned by Open.
	OpenErr error

	// ReadFunc, when set, replaces frame generation.
	ReadFunc func(ctx context.Context, n int) (*Frame, error)

	// Delay is slept before each frame to emulate a camera's frame interval.
	Delay time.Duration

	mu     sync.Mutex
	images []image.Image
	open   bool
	closed bool

	opens  atomic.Int32
	closes atomic.Int32
	reads  atomic.Int64
}

// NewMockSource creates a mock source producing frames of the configured size.
func NewMockSource(cfg Config) *MockSource {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	return &MockSource{cfg: cfg}
}

// WithImages makes the mock cycle through the given images.
func (m *MockSource) WithImages(images ...image.Image) *MockSource {
	m.mu.Lock()
	m.images = images
	m.mu.Unlock()
	return m
}

// Open marks the source as acquired.
func (m *MockSource) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.open {
		return &DeviceError{Device: "mock", Err: ErrDeviceBusy}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.opens.Add(1)
	m.open = true
	m.closed = false
	return nil
}

// Read returns the next synthetic frame.
func (m *MockSource) Read(ctx context.Context) (*Frame, error) {
	m.mu.Lock()
	open, closed := m.open, m.closed
	m.mu.Unlock()

	if closed {
		return nil, ErrSourceClosed
	}
	if !open {
		return nil, ErrNotOpen
	}

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := int(m.reads.Add(1)) - 1
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, n)
	}

	m.mu.Lock()
	images := m.images
	m.mu.Unlock()

	if len(images) > 0 {
		return NewFrame(prepare(images[n%len(images)], m.cfg), "mock"), nil
	}
	return NewFrame(solid(m.cfg.Width, m.cfg.Height, uint8(n%256)), "mock"), nil
}

// Close releases the mock.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil
	}
	m.closes.Add(1)
	m.open = false
	m.closed = true
	return nil
}

// Opens returns how many times Open succeeded.
func (m *MockSource) Opens() int { return int(m.opens.Load()) }

// Closes returns how many times an open source was closed.
func (m *MockSource) Closes() int { return int(m.closes.Load()) }

// Reads returns how many frames were requested.
func (m *MockSource) Reads() int { return int(m.reads.Load()) }

// IsOpen reports whether the mock is currently acquired.
func (m *MockSource) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func solid(w, h int, shade uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: shade, G: 128, B: 255 - shade, A: 255}}, image.Point{}, draw.Src)
	return img
}

// Verify implementations at compile time.
var (
	_ Source = (*MockSource)(nil)
	_ Source = (*FolderSource)(nil)
)
