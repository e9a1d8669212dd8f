package camera

import "fmt"

// Backend selects where frames come from.
type Backend string

const (
	// BackendDevice reads a local camera through OpenCV.
	BackendDevice Backend = "device"
	// BackendFolder reads images written into a watched directory.
	BackendFolder Backend = "folder"
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
)

// Defaults match a square classifier preview.
const (
	DefaultWidth   = 300
	DefaultHeight  = 300
	DefaultQuality = 85

	MinDimension = 32
	MaxDimension = 4096
)

// Config holds capture settings. It is fixed for the life of a source.
type Config struct {
	// Backend is "device", "folder" or "mock".
	Backend Backend `yaml:"backend" json:"backend"`

	// Device is a camera index ("0") or a stream URL/path understood by OpenCV.
	Device string `yaml:"device" json:"device"`

	// Path is the directory (or single file) watched by the folder backend.
	Path string `yaml:"path" json:"path"`

	// Frame size in pixels after capture.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// Mirror flips frames horizontally, like a selfie preview.
	Mirror bool `yaml:"mirror" json:"mirror"`

	// Quality is the JPEG quality used for the preview feed (1-100).
	Quality int `yaml:"quality" json:"quality"`
}

// DefaultConfig returns a mirrored 300x300 capture from camera 0.
func DefaultConfig() Config {
	return Config{
		Backend: BackendDevice,
		Device:  "0",
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		Mirror:  true,
		Quality: DefaultQuality,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	switch c.Backend {
	case BackendDevice:
		if c.Device == "" {
			errors = append(errors, "device must be set for the device backend")
		}
	case BackendFolder:
		if c.Path == "" {
			errors = append(errors, "path must be set for the folder backend")
		}
	case BackendMock:
	default:
		errors = append(errors, fmt.Sprintf("backend must be device, folder, or mock (got %q)", c.Backend))
	}

	if c.Width < MinDimension || c.Width > MaxDimension {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinDimension, MaxDimension))
	}
	if c.Height < MinDimension || c.Height > MaxDimension {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinDimension, MaxDimension))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	return errors
}
