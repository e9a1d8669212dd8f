package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 300, cfg.Height)
	assert.True(t, cfg.Mirror)
	assert.Empty(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errs   int
	}{
		{"default is valid", func(c *Config) {}, 0},
		{"tiny width", func(c *Config) { c.Width = 8 }, 1},
		{"huge height", func(c *Config) { c.Height = 10000 }, 1},
		{"bad quality", func(c *Config) { c.Quality = 0 }, 1},
		{"unknown backend", func(c *Config) { c.Backend = "webrtc" }, 1},
		{"folder without path", func(c *Config) { c.Backend = BackendFolder }, 1},
		{"device without id", func(c *Config) { c.Device = "" }, 1},
		{"mock needs nothing", func(c *Config) { c.Backend = BackendMock; c.Device = "" }, 0},
		{"several problems", func(c *Config) { c.Width = 0; c.Height = 0; c.Quality = 101 }, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			assert.Len(t, cfg.Validate(), tc.errs)
		})
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		require.NotNil(t, cfg, name)
		assert.Empty(t, cfg.Validate(), name)
	}
	assert.Nil(t, GetPreset("8k"))
	assert.Equal(t, 224, GetPreset(PresetModel224).Width)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "Camera access granted - Ready to start!"},
		{&DeviceError{Device: "0", Err: ErrPermissionDenied}, "Camera access denied. Please allow camera permissions."},
		{&DeviceError{Device: "0", Err: ErrDeviceNotFound}, "No camera found. Please connect a camera device."},
		{fmt.Errorf("wrapped: %w", ErrDeviceUnsupported), "Camera not supported. Please check the device or capture backend."},
		{errors.New("boom"), "Camera access error. Please check your camera settings."},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Describe(tc.err))
	}
}

func TestIsPermissionError(t *testing.T) {
	assert.True(t, IsPermissionError(&DeviceError{Device: "0", Err: ErrDeviceNotFound}))
	assert.True(t, IsPermissionError(ErrDeviceBusy))
	assert.False(t, IsPermissionError(errors.New("other")))
	assert.False(t, IsPermissionError(ErrSourceClosed))
}

func TestMirror(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(2, 0, color.RGBA{B: 255, A: 255})

	out := Mirror(img)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(2, 0))
}

func TestFit(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	assert.Equal(t, image.Rect(0, 0, 32, 32), Fit(img, 32, 32).Bounds())
	assert.Same(t, img, Fit(img, 64, 48))
}

func TestFrameJPEG(t *testing.T) {
	f := NewFrame(solid(40, 40, 10), "test")
	data, err := f.JPEG(0)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())

	var empty *Frame
	_, err = empty.JPEG(80)
	assert.Error(t, err)
}

func TestMockSource_Lifecycle(t *testing.T) {
	ctx := context.Background()
	src := NewMockSource(Config{Width: 64, Height: 48})

	_, err := src.Read(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, src.Open(ctx))
	assert.ErrorIs(t, src.Open(ctx), ErrDeviceBusy)

	f, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 64, f.Image.Bounds().Dx())
	assert.NotEqual(t, f.ID.String(), "")

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, ErrSourceClosed)

	assert.Equal(t, 1, src.Opens())
	assert.Equal(t, 1, src.Closes())
}

func TestMockSource_OpenError(t *testing.T) {
	src := NewMockSource(DefaultConfig())
	src.OpenErr = &DeviceError{Device: "mock", Err: ErrPermissionDenied}

	err := Check(context.Background(), src)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, src.IsOpen())
}

func TestMockSource_DelayHonoursContext(t *testing.T) {
	src := NewMockSource(DefaultConfig())
	src.Delay = time.Hour
	require.NoError(t, src.Open(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Backends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	src, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MockSource{}, src)

	cfg.Backend = BackendFolder
	cfg.Path = t.TempDir()
	src, err = New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FolderSource{}, src)

	cfg.Width = 1
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func writePNG(path string, c color.Color) error {
	img := image.NewRGBA(image.Rect(0, 0, 50, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func TestFolderSource_ReadsNewImages(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Backend: BackendFolder, Path: dir, Width: 32, Height: 32, Quality: 80}
	src := NewFolderSource(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, src.Open(ctx))
	defer src.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = writePNG(filepath.Join(dir, "frame.png"), color.RGBA{R: 200, A: 255})
	}()

	f, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), f.Image.Bounds())
	assert.Equal(t, filepath.Join(dir, "frame.png"), f.Source)
}

func TestFolderSource_CloseUnblocksRead(t *testing.T) {
	src := NewFolderSource(Config{Backend: BackendFolder, Path: t.TempDir(), Width: 32, Height: 32, Quality: 80}, nil)
	require.NoError(t, src.Open(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := src.Read(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, src.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSourceClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestFolderSource_MissingPath(t *testing.T) {
	src := NewFolderSource(Config{Backend: BackendFolder, Path: filepath.Join(t.TempDir(), "nope")}, nil)
	err := src.Open(context.Background())

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestFolderSource_BusyWhenOpen(t *testing.T) {
	src := NewFolderSource(Config{Backend: BackendFolder, Path: t.TempDir()}, nil)
	require.NoError(t, src.Open(context.Background()))
	defer src.Close()
	assert.ErrorIs(t, src.Open(context.Background()), ErrDeviceBusy)
}
