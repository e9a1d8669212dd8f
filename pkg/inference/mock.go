package inference

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
)

// MockWinnerProbability is the probability the default mock assigns to its
// winning class on each call.
const MockWinnerProbability = 0.9

// Mock implements Engine for testing and demos.
type Mock struct {
	// ClassList is returned by Classes.
	ClassList []string

	// PredictFunc is called when Predict is invoked.
	PredictFunc func(ctx context.Context, frame *camera.Frame) (classify.Vector, error)

	// HealthFunc is called when Health is invoked.
	HealthFunc func(ctx context.Context) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls []MockCall
	round int
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock engine whose winner rotates through classes,
// one class per Predict call.
func NewMock(classes ...string) *Mock {
	if len(classes) == 0 {
		classes = []string{"class_0", "class_1"}
	}
	m := &Mock{ClassList: classes}
	m.PredictFunc = func(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
		m.mu.Lock()
		winner := m.round % len(m.ClassList)
		m.round++
		m.mu.Unlock()
		return rotatingVector(m.ClassList, winner), nil
	}
	m.HealthFunc = func(ctx context.Context) error {
		return nil
	}
	return m
}

// NewFixedMock creates a mock engine that always returns vec.
func NewFixedMock(vec classify.Vector) *Mock {
	return &Mock{
		ClassList: vec.Labels(),
		PredictFunc: func(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
			return append(classify.Vector(nil), vec...), nil
		},
	}
}

// Predict calls PredictFunc and records the call.
func (m *Mock) Predict(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
	m.record("Predict")
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, frame)
	}
	return nil, WrapError("mock", ErrEngineUnavailable)
}

// Classes returns ClassList.
func (m *Mock) Classes() []string {
	return append([]string(nil), m.ClassList...)
}

// Health calls HealthFunc and records the call.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health")
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.round = 0
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		ClassList: []string{"class_0"},
		PredictFunc: func(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
			return nil, WrapError("mock", err)
		},
		HealthFunc: func(ctx context.Context) error {
			return err
		},
	}
}

// rotatingVector gives winner MockWinnerProbability and splits the rest evenly.
func rotatingVector(classes []string, winner int) classify.Vector {
	vec := make(classify.Vector, len(classes))
	if len(classes) == 1 {
		vec[0] = classify.Prediction{ClassName: classes[0], Probability: 1}
		return vec
	}
	rest := (1 - MockWinnerProbability) / float64(len(classes)-1)
	for i, name := range classes {
		p := rest
		if i == winner {
			p = MockWinnerProbability
		}
		vec[i] = classify.Prediction{ClassName: name, Probability: p}
	}
	return vec
}

// Verify Mock implements Engine at compile time.
var _ Engine = (*Mock)(nil)
