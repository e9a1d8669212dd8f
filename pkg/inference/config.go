package inference

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds engine configuration.
type Config struct {
	// MetadataPath overrides where labels and preprocessing settings are read
	// from. Defaults: "<base>metadata.json" for remote engines and
	// "<model without extension>.json" for local models.
	MetadataPath string

	// APIKey is sent as a bearer token to remote engines.
	APIKey string

	// Timeout bounds each remote request. Zero disables the deadline.
	Timeout time.Duration

	// Retry configuration for remote engines.
	MaxRetries int
	RetryDelay time.Duration

	// SharedLibraryPath points at the ONNX Runtime shared library.
	SharedLibraryPath string

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client

	// Logger for engine diagnostics.
	Logger *slog.Logger
}

// Option is a functional option for configuring engines.
type Option func(*Config)

// WithMetadataPath sets the metadata file or URL.
func WithMetadataPath(path string) Option {
	return func(c *Config) { c.MetadataPath = path }
}

// WithAPIKey sets the bearer token for remote engines.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTimeout sets the remote request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retry behavior for remote engines.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithSharedLibrary sets the ONNX Runtime shared library path.
func WithSharedLibrary(path string) Option {
	return func(c *Config) { c.SharedLibraryPath = path }
}

// WithHTTPClient sets the HTTP client used by remote engines.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		RetryDelay: 100 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
