package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrUnknownLocation is returned when a model location matches no engine.
	ErrUnknownLocation = errors.New("inference: unrecognized model location")

	// ErrNoClasses is returned when model metadata lists no classes.
	ErrNoClasses = errors.New("inference: model has no classes")

	// ErrShapeMismatch is returned when tensor shapes disagree with metadata.
	ErrShapeMismatch = errors.New("inference: tensor shape mismatch")

	// ErrEngineClosed is returned by Predict after Close.
	ErrEngineClosed = errors.New("inference: engine closed")

	// ErrEmptyFrame is returned when Predict receives no image.
	ErrEmptyFrame = errors.New("inference: empty frame")

	// ErrUnsupported is returned when an engine was compiled out.
	ErrUnsupported = errors.New("inference: engine not available in this build")

	// ErrEngineUnavailable is returned when a chain has no engines.
	ErrEngineUnavailable = errors.New("inference: engine unavailable")
)

// LoadError reports a failure to load a model. It aborts session startup.
type LoadError struct {
	Location string
	Err      error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("inference: load %s: %v", e.Location, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// InferenceError reports a failed prediction for a single frame.
type InferenceError struct {
	Engine string
	Err    error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// WrapError wraps a prediction error with engine context.
// Errors that already are *InferenceError are returned unchanged.
func WrapError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	return &InferenceError{Engine: engine, Err: err}
}

// IsLoadError reports whether err is a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsInferenceError reports whether err is a *InferenceError.
func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

// APIError represents an error response from a remote engine.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code (if provided).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// ChainError aggregates errors from all engines in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "inference chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("inference chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("inference chain: all %d engines failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
