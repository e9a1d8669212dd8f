package session

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start, Once and Check unless the session is stopped.
var ErrAlreadyRunning = errors.New("session: already running")

// Startup stages reported by StartError.
const (
	StageModel  = "model"
	StageCamera = "camera"
)

// StartError reports why Start could not reach Running.
type StartError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("session: start failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StartError) Unwrap() error {
	return e.Err
}
