package session

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
)

// Status lines presented by the session.
const (
	StatusReady         = "Ready to start classification"
	StatusLoadingModel  = "Loading AI model..."
	StatusInitCamera    = "Initializing camera..."
	StatusActive        = "AI Vision Active - Analyzing in real-time"
	StatusStartFailed   = "Error loading model or accessing camera"
	StatusCameraGranted = "Camera access granted - Ready to start!"
)

// Log records about a single failed frame carry ScopeKey=ScopeFrame.
// They belong in the process log, not in anything the user sees.
const (
	ScopeKey   = "scope"
	ScopeFrame = "frame"
)

// FrameScope is the attribute attached to per-frame failure records.
var FrameScope = slog.String(ScopeKey, ScopeFrame)

// ActionRetry marks updates after which the user may try again.
const ActionRetry = "retry"

// Kind distinguishes status updates from per-frame results.
type Kind string

const (
	KindStatus Kind = "status"
	KindResult Kind = "result"
)

// Update is what the session hands to the presentation layer.
type Update struct {
	SessionID uuid.UUID `json:"session_id"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Error     bool      `json:"error"`
	Action    string    `json:"action,omitempty"`
	Time      time.Time `json:"time"`

	Result      *classify.Result `json:"result,omitempty"`
	Predictions classify.Vector  `json:"predictions,omitempty"`
	Latency     time.Duration    `json:"-"`

	// Frame is the image the result was computed from. It is not serialized.
	Frame *camera.Frame `json:"-"`
}

// MarshalJSON adds the latency in milliseconds.
func (u Update) MarshalJSON() ([]byte, error) {
	type alias Update
	return json.Marshal(struct {
		alias
		LatencyMS float64 `json:"latency_ms,omitempty"`
	}{alias(u), float64(u.Latency.Microseconds()) / 1000})
}

// Presenter displays session updates. Present is called synchronously from the
// loop; the next iteration starts after it returns.
type Presenter interface {
	Present(u Update)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(u Update)

// Present calls f(u).
func (f PresenterFunc) Present(u Update) { f(u) }

// Presenters fans an update out to several presenters in order.
type Presenters []Presenter

// Present calls every presenter.
func (ps Presenters) Present(u Update) {
	for _, p := range ps {
		if p != nil {
			p.Present(u)
		}
	}
}

// LogPresenter writes updates to logger.
func LogPresenter(logger *slog.Logger) Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "presenter")
	return PresenterFunc(func(u Update) {
		switch {
		case u.Error:
			logger.Warn(u.Status, "detail", u.Detail, "state", u.State)
		case u.Kind == KindResult && u.Result != nil:
			logger.Debug(u.Status,
				"class", u.Result.ClassName,
				"probability", u.Result.Probability,
				"confident", u.Result.Confident,
				"latency_ms", u.Latency.Milliseconds(),
			)
		default:
			logger.Info(u.Status, "state", u.State)
		}
	})
}

var nopPresenter = PresenterFunc(func(Update) {})
