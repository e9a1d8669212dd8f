package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FolderSource yields a frame for every image written into a watched directory.
// When Path names a file, only writes to that file are picked up, which suits
// producers that overwrite a single frame in shared memory.
type FolderSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dir     string
	target  string // set when watching a single file
	last    []byte
	closed  bool
}

// NewFolderSource creates an unopened folder source.
func NewFolderSource(cfg Config, logger *slog.Logger) *FolderSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FolderSource{cfg: cfg, logger: logger}
}

// Open starts watching the configured path.
func (s *FolderSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return &DeviceError{Device: s.cfg.Path, Err: ErrDeviceBusy}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(s.cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &DeviceError{Device: s.cfg.Path, Err: ErrDeviceNotFound}
	case errors.Is(err, os.ErrPermission):
		return &DeviceError{Device: s.cfg.Path, Err: ErrPermissionDenied}
	case err != nil:
		return &DeviceError{Device: s.cfg.Path, Err: fmt.Errorf("%w: %v", ErrDeviceUnsupported, err)}
	}

	dir, target := s.cfg.Path, ""
	if !info.IsDir() {
		dir, target = filepath.Dir(s.cfg.Path), filepath.Clean(s.cfg.Path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &DeviceError{Device: s.cfg.Path, Err: fmt.Errorf("%w: %v", ErrDeviceUnsupported, err)}
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		if errors.Is(err, os.ErrPermission) {
			return &DeviceError{Device: s.cfg.Path, Err: ErrPermissionDenied}
		}
		return &DeviceError{Device: s.cfg.Path, Err: fmt.Errorf("%w: %v", ErrDeviceUnsupported, err)}
	}

	s.watcher = watcher
	s.dir = dir
	s.target = target
	s.last = nil
	s.closed = false

	s.logger.Info("watching for frames", "dir", dir, "file", target)
	return nil
}

// Read waits for the next written image and decodes it.
// Rewrites with identical content are skipped.
func (s *FolderSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	watcher, closed := s.watcher, s.closed
	s.mu.Unlock()

	if closed {
		return nil, ErrSourceClosed
	}
	if watcher == nil {
		return nil, ErrNotOpen
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, ErrSourceClosed
			}
			return nil, fmt.Errorf("camera [%s]: watch: %w", s.cfg.Path, err)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil, ErrSourceClosed
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !s.wants(event.Name) {
				continue
			}

			data, err := os.ReadFile(event.Name)
			if err != nil {
				return nil, fmt.Errorf("camera [%s]: read %s: %w", s.cfg.Path, event.Name, err)
			}
			if len(data) == 0 || s.duplicate(data) {
				continue
			}

			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				// Partially written files fail here; the next write event retries.
				s.logger.Debug("skipping undecodable frame", "file", event.Name, "error", err)
				continue
			}
			return NewFrame(prepare(img, s.cfg), event.Name), nil
		}
	}
}

// Close stops watching.
func (s *FolderSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	s.closed = true
	s.logger.Info("stopped watching for frames", "dir", s.dir)
	return err
}

func (s *FolderSource) wants(name string) bool {
	if s.target != "" {
		return filepath.Clean(name) == s.target
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func (s *FolderSource) duplicate(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes.Equal(data, s.last) {
		return true
	}
	s.last = data
	return false
}
