// Package config loads go-recognize settings.
//
// Sources are layered, later ones winning:
//
//	defaults -> YAML file -> .env -> environment -> command-line flags
//
// Flags are applied by each command after Load returns. The resulting Config
// is treated as immutable once the service starts.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/inference"
)

// Defaults.
const (
	DefaultModelURL             = "mock://class_0,class_1"
	DefaultPort                 = "8080"
	DefaultStaticDir            = "web"
	DefaultPermissionCheckDelay = 2 * time.Second
	DefaultAnimationDuration    = 400 * time.Millisecond
	DefaultErrorBackoff         = 50 * time.Millisecond
	DefaultModelTimeout         = 10 * time.Second
)

// Config is the full service configuration.
type Config struct {
	Model  ModelConfig   `yaml:"model" json:"model"`
	Camera camera.Config `yaml:"camera" json:"camera"`
	Server ServerConfig  `yaml:"server" json:"server"`
	UI     UIConfig      `yaml:"ui" json:"ui"`
	Log    LogConfig     `yaml:"log" json:"log"`
}

// ModelConfig selects the classifier.
type ModelConfig struct {
	// URL is a model location understood by inference.Load.
	URL string `yaml:"url" json:"url"`

	// Fallbacks are tried in order when URL fails a prediction.
	Fallbacks []string `yaml:"fallbacks" json:"fallbacks,omitempty"`

	// ConfidenceThreshold is the minimum probability for a positive match.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`

	MetadataPath      string        `yaml:"metadata_path" json:"metadata_path,omitempty"`
	APIKey            string        `yaml:"api_key" json:"-"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	SharedLibraryPath string        `yaml:"shared_library_path" json:"shared_library_path,omitempty"`
	ErrorBackoff      time.Duration `yaml:"error_backoff" json:"error_backoff"`
}

// Locations returns URL followed by the fallbacks.
func (m ModelConfig) Locations() []string {
	return append([]string{m.URL}, m.Fallbacks...)
}

// EngineOptions translates the model settings into inference options.
func (m ModelConfig) EngineOptions(logger *slog.Logger) []inference.Option {
	opts := []inference.Option{
		inference.WithTimeout(m.Timeout),
		inference.WithLogger(logger),
	}
	if m.MetadataPath != "" {
		opts = append(opts, inference.WithMetadataPath(m.MetadataPath))
	}
	if m.APIKey != "" {
		opts = append(opts, inference.WithAPIKey(m.APIKey))
	}
	if m.SharedLibraryPath != "" {
		opts = append(opts, inference.WithSharedLibrary(m.SharedLibraryPath))
	}
	return opts
}

// ServerConfig configures the dashboard.
type ServerConfig struct {
	Port      string `yaml:"port" json:"port"`
	StaticDir string `yaml:"static_dir" json:"static_dir"`
	Autostart bool   `yaml:"autostart" json:"autostart"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	if strings.Contains(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}

// UIConfig holds presentation settings.
type UIConfig struct {
	PermissionCheckDelay    time.Duration `yaml:"permission_check_delay" json:"permission_check_delay"`
	AnimationDuration       time.Duration `yaml:"animation_duration" json:"animation_duration"`
	ShowDetailedPredictions bool          `yaml:"show_detailed_predictions" json:"show_detailed_predictions"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			URL:                 DefaultModelURL,
			ConfidenceThreshold: classify.DefaultThreshold,
			Timeout:             DefaultModelTimeout,
			ErrorBackoff:        DefaultErrorBackoff,
		},
		Camera: camera.DefaultConfig(),
		Server: ServerConfig{
			Port:      DefaultPort,
			StaticDir: DefaultStaticDir,
		},
		UI: UIConfig{
			PermissionCheckDelay:    DefaultPermissionCheckDelay,
			AnimationDuration:       DefaultAnimationDuration,
			ShowDetailedPredictions: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path,
// a .env file in the working directory and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// A missing .env is normal; anything else is worth reporting.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("MODEL_URL", &c.Model.URL)
	str("MODEL_API_KEY", &c.Model.APIKey)
	str("MODEL_METADATA", &c.Model.MetadataPath)
	str("ONNXRUNTIME_LIB", &c.Model.SharedLibraryPath)
	if v, ok := os.LookupEnv("CONFIDENCE_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CONFIDENCE_THRESHOLD: %w", err))
		} else {
			c.Model.ConfidenceThreshold = f
		}
	}

	if v := os.Getenv("CAMERA_BACKEND"); v != "" {
		c.Camera.Backend = camera.Backend(strings.ToLower(v))
	}
	str("CAMERA_DEVICE", &c.Camera.Device)
	str("CAMERA_PATH", &c.Camera.Path)
	num("CAMERA_WIDTH", &c.Camera.Width)
	num("CAMERA_HEIGHT", &c.Camera.Height)
	flag("CAMERA_MIRROR", &c.Camera.Mirror)

	str("PORT", &c.Server.Port)
	str("STATIC_DIR", &c.Server.StaticDir)
	flag("AUTOSTART", &c.Server.Autostart)
	flag("SHOW_DETAILED_PREDICTIONS", &c.UI.ShowDetailedPredictions)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate returns every problem found; an empty result means the config is usable.
func (c *Config) Validate() []string {
	var problems []string

	if c.Model.URL == "" {
		problems = append(problems, "model.url is required")
	}
	if t := c.Model.ConfidenceThreshold; t < 0 || t > 1 {
		problems = append(problems, fmt.Sprintf("model.confidence_threshold must be within [0,1], got %v", t))
	}
	if c.Model.Timeout < 0 {
		problems = append(problems, "model.timeout must not be negative")
	}
	if c.Model.ErrorBackoff < 0 {
		problems = append(problems, "model.error_backoff must not be negative")
	}
	for _, p := range c.Camera.Validate() {
		problems = append(problems, "camera: "+p)
	}
	if c.Server.Port == "" {
		problems = append(problems, "server.port is required")
	}
	if c.UI.PermissionCheckDelay < 0 {
		problems = append(problems, "ui.permission_check_delay must not be negative")
	}

	return problems
}
