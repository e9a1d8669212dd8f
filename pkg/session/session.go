// Package session runs the capture -> inference -> selection -> presentation loop.
//
// A Session owns one capture source and, while running, one inference engine.
// Exactly one iteration is in flight at a time and the next one starts only
// after the presenter returns; there is no fixed tick rate.
//
//	s := session.New(src, inference.Loader([]string{url}), dashboard,
//	    session.WithThreshold(0.85),
//	)
//	if err := s.Start(ctx); err != nil {
//	    // *session.StartError; the session is still stopped
//	}
//	defer s.Stop()
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/inference"
)

// State is the lifecycle state of a session.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Stopped, Starting, Running, Stopping} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("session: unknown state %q", text)
}

// DefaultErrorBackoff is the pause after a failed iteration.
const DefaultErrorBackoff = 50 * time.Millisecond

// Option configures a Session.
type Option func(*Session)

// WithThreshold sets the confidence threshold.
func WithThreshold(t float64) Option {
	return func(s *Session) { s.threshold = t }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDetailed includes the full prediction vector in result updates.
func WithDetailed(detailed bool) Option {
	return func(s *Session) { s.detailed = detailed }
}

// WithErrorBackoff sets the pause after a failed iteration. Zero disables it.
func WithErrorBackoff(d time.Duration) Option {
	return func(s *Session) { s.backoff = d }
}

// Stats are cumulative loop counters.
type Stats struct {
	Starts            uint64        `json:"starts"`
	Iterations        uint64        `json:"iterations"`
	Confident         uint64        `json:"confident"`
	InferenceFailures uint64        `json:"inference_failures"`
	InvalidVectors    uint64        `json:"invalid_vectors"`
	ReadFailures      uint64        `json:"read_failures"`
	LastLatency       time.Duration `json:"last_latency_ns"`
}

// Session is the explicit owner of the loop's state.
type Session struct {
	id        uuid.UUID
	src       camera.Source
	load      inference.LoaderFunc
	presenter Presenter
	logger    *slog.Logger
	threshold float64
	detailed  bool
	backoff   time.Duration

	mu         sync.Mutex
	state      State
	engine     inference.Engine
	cancelRead context.CancelFunc
	done       chan struct{}

	// stopping is the cooperative flag checked at the top of each iteration.
	stopping atomic.Bool

	lastMu     sync.RWMutex
	last       Update
	hasLast    bool
	lastStatus Update

	starts            atomic.Uint64
	iterations        atomic.Uint64
	confident         atomic.Uint64
	inferenceFailures atomic.Uint64
	invalidVectors    atomic.Uint64
	readFailures      atomic.Uint64
	lastLatency       atomic.Int64
}

// New creates a stopped session.
func New(src camera.Source, load inference.LoaderFunc, p Presenter, opts ...Option) *Session {
	if p == nil {
		p = nopPresenter
	}
	s := &Session{
		id:        uuid.New(),
		src:       src,
		load:      load,
		presenter: p,
		logger:    slog.Default(),
		threshold: classify.DefaultThreshold,
		detailed:  true,
		backoff:   DefaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session", "session_id", s.id)
	s.lastStatus = Update{SessionID: s.id, Kind: KindStatus, State: Stopped, Status: StatusReady}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Threshold returns the confidence threshold.
func (s *Session) Threshold() float64 { return s.threshold }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Engine returns the engine loaded by the running loop, if any.
func (s *Session) Engine() (inference.Engine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine, s.engine != nil
}

// Last returns the most recent result update.
func (s *Session) Last() (Update, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.hasLast
}

// Status returns the most recent status update.
func (s *Session) Status() Update {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastStatus
}

// Stats returns a snapshot of the loop counters.
func (s *Session) Stats() Stats {
	return Stats{
		Starts:            s.starts.Load(),
		Iterations:        s.iterations.Load(),
		Confident:         s.confident.Load(),
		InferenceFailures: s.inferenceFailures.Load(),
		InvalidVectors:    s.invalidVectors.Load(),
		ReadFailures:      s.readFailures.Load(),
		LastLatency:       time.Duration(s.lastLatency.Load()),
	}
}

// Start loads the engine, opens the capture source and launches the loop.
//
// It fails with ErrAlreadyRunning unless the session is stopped. Any other
// failure is a *StartError: whatever was acquired is released, an error
// status is presented and the session stays stopped.
func (s *Session) Start(ctx context.Context) error {
	if !s.transition(Stopped, Starting) {
		return ErrAlreadyRunning
	}

	engine, err := s.acquire(ctx)
	if err != nil {
		s.setState(Stopped)
		s.failStart(err)
		return err
	}

	// The loop outlives ctx: only Stop ends it. Reads are cancelled by Stop,
	// inference is not.
	base := context.WithoutCancel(ctx)
	readCtx, cancel := context.WithCancel(base)
	done := make(chan struct{})

	s.mu.Lock()
	s.engine = engine
	s.cancelRead = cancel
	s.done = done
	s.state = Running
	s.stopping.Store(false)
	s.mu.Unlock()

	s.starts.Add(1)
	s.logger.Info("session started", "threshold", s.threshold)
	s.presentStatus(Running, StatusActive, "", false)

	go s.run(readCtx, base, engine, done)
	return nil
}

// Stop ends the loop and releases the capture source and engine.
// A pending frame read is unblocked; an in-flight inference is allowed to
// finish. Stop on a session that is not running is a no-op.
func (s *Session) Stop() error {
	return s.stop(nil)
}

// stop ends the current run. When owner is set, only the run whose done
// channel is owner may be stopped; any other state is left alone.
func (s *Session) stop(owner chan struct{}) error {
	s.mu.Lock()
	if s.state != Running || (owner != nil && s.done != owner) {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	s.stopping.Store(true)
	cancel, done, engine := s.cancelRead, s.done, s.engine
	s.mu.Unlock()

	cancel()
	<-done

	err := s.release(engine)

	s.mu.Lock()
	s.engine = nil
	s.cancelRead = nil
	s.done = nil
	s.state = Stopped
	s.mu.Unlock()

	s.logger.Info("session stopped", "iterations", s.iterations.Load())
	s.presentStatus(Stopped, StatusReady, "", false)
	return err
}

// Toggle starts a stopped session and stops a running one.
func (s *Session) Toggle(ctx context.Context) error {
	switch s.State() {
	case Running:
		return s.Stop()
	default:
		return s.Start(ctx)
	}
}

// Once runs a single iteration on demand. The session must be stopped; the
// capture source and engine are acquired for the call and released after.
func (s *Session) Once(ctx context.Context) (Update, error) {
	if !s.transition(Stopped, Starting) {
		return Update{}, ErrAlreadyRunning
	}
	defer s.setState(Stopped)

	engine, err := s.acquire(ctx)
	if err != nil {
		s.failStart(err)
		return Update{}, err
	}

	upd, err := s.iterate(ctx, ctx, engine)
	if relErr := s.release(engine); err == nil && relErr != nil {
		s.logger.Warn("release after single run failed", "error", relErr)
	}
	if err != nil {
		s.recordFailure(err)
		return Update{}, err
	}
	return upd, nil
}

// Check opens and closes the capture source to surface permission problems
// before the user starts the loop.
func (s *Session) Check(ctx context.Context) error {
	if !s.transition(Stopped, Starting) {
		return ErrAlreadyRunning
	}
	defer s.setState(Stopped)

	if err := camera.Check(ctx, s.src); err != nil {
		s.logger.Warn("camera preflight failed", "error", err)
		s.presentStatus(Stopped, camera.Describe(err), err.Error(), true)
		return err
	}
	s.presentStatus(Stopped, StatusCameraGranted, "", false)
	return nil
}

// acquire loads the engine, then opens the capture source.
func (s *Session) acquire(ctx context.Context) (inference.Engine, error) {
	s.presentStatus(Starting, StatusLoadingModel, "", false)
	engine, err := s.load(ctx)
	if err != nil {
		return nil, &StartError{Stage: StageModel, Err: err}
	}

	s.presentStatus(Starting, StatusInitCamera, "", false)
	if err := s.src.Open(ctx); err != nil {
		if cerr := engine.Close(); cerr != nil {
			s.logger.Warn("close engine after failed start", "error", cerr)
		}
		return nil, &StartError{Stage: StageCamera, Err: err}
	}
	return engine, nil
}

// release closes the capture source and the engine.
func (s *Session) release(engine inference.Engine) error {
	var errs []error
	if err := s.src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	if engine != nil {
		if err := engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) failStart(err error) {
	detail := err.Error()
	var se *StartError
	if errors.As(err, &se) && se.Stage == StageCamera {
		detail = camera.Describe(se.Err)
	}
	s.logger.Error("session start failed", "error", err)
	s.presentStatus(Stopped, StatusStartFailed, detail, true)
}

// run is the loop task. It exits when the stop flag is set or the source
// reports ErrSourceClosed.
func (s *Session) run(readCtx, inferCtx context.Context, engine inference.Engine, done chan struct{}) {
	for !s.stopping.Load() {
		if _, err := s.iterate(readCtx, inferCtx, engine); err != nil {
			if s.stopping.Load() {
				break
			}
			if errors.Is(err, camera.ErrSourceClosed) {
				s.logger.Warn("capture source closed, ending loop")
				break
			}
			s.recordFailure(err)
			s.pause(readCtx)
		}
	}
	close(done)

	// The source went away on its own; finish the transition to Stopped.
	// A Stop that already ran, and any run started after it, are left alone.
	if err := s.stop(done); err != nil {
		s.logger.Warn("release after loop exit failed", "error", err)
	}
}

// iterate reads one frame, classifies it and presents the result.
func (s *Session) iterate(readCtx, inferCtx context.Context, engine inference.Engine) (Update, error) {
	frame, err := s.src.Read(readCtx)
	if err != nil {
		return Update{}, &readError{err: err}
	}

	start := time.Now()
	vec, err := engine.Predict(inferCtx, frame)
	if err != nil {
		return Update{}, inference.WrapError("engine", err)
	}

	res, err := classify.Select(vec, s.threshold)
	if err != nil {
		return Update{}, err
	}
	latency := time.Since(start)

	s.iterations.Add(1)
	s.lastLatency.Store(int64(latency))
	if res.Confident {
		s.confident.Add(1)
	}

	upd := Update{
		SessionID: s.id,
		Kind:      KindResult,
		State:     s.State(),
		Status:    classify.StatusLine(res),
		Time:      time.Now(),
		Result:    &res,
		Latency:   latency,
		Frame:     frame,
	}
	if s.detailed {
		upd.Predictions = vec
	}

	s.lastMu.Lock()
	s.last, s.hasLast = upd, true
	s.lastMu.Unlock()

	s.presenter.Present(upd)
	return upd, nil
}

// recordFailure logs a failed iteration. Per-frame failures are never
// presented; their records carry FrameScope so user-facing log feeds can
// drop them.
func (s *Session) recordFailure(err error) {
	var re *readError
	switch {
	case errors.As(err, &re):
		s.readFailures.Add(1)
		s.logger.Warn("frame read failed", FrameScope, "error", re.err)
	case errors.Is(err, classify.ErrInvalidInput):
		s.invalidVectors.Add(1)
		s.logger.Error("invalid prediction vector", FrameScope, "error", err)
	default:
		s.inferenceFailures.Add(1)
		s.logger.Warn("inference failed", FrameScope, "error", err)
	}
}

func (s *Session) pause(ctx context.Context) {
	if s.backoff <= 0 {
		return
	}
	t := time.NewTimer(s.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) presentStatus(st State, status, detail string, isErr bool) {
	upd := Update{
		SessionID: s.id,
		Kind:      KindStatus,
		State:     st,
		Status:    status,
		Detail:    detail,
		Error:     isErr,
		Time:      time.Now(),
	}
	if isErr {
		upd.Action = ActionRetry
	}

	s.lastMu.Lock()
	s.lastStatus = upd
	s.lastMu.Unlock()

	s.presenter.Present(upd)
}

// readError marks a failed frame read so it can be told apart from
// inference failures.
type readError struct {
	err error
}

func (e *readError) Error() string { return "read frame: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }
