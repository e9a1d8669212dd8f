package inference

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
)

const engineONNX = "onnx"

// The ONNX Runtime environment is process-wide; engines share it.
var (
	ortMu   sync.Mutex
	ortRefs int
)

func acquireEnvironment(libPath string) error {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortRefs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize ONNX environment: %w", err)
		}
	}
	ortRefs++
	return nil
}

func releaseEnvironment() {
	ortMu.Lock()
	defer ortMu.Unlock()
	if ortRefs == 0 {
		return
	}
	ortRefs--
	if ortRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// ONNX runs a classifier in-process with ONNX Runtime.
type ONNX struct {
	mu           sync.Mutex
	path         string
	metadata     *Metadata
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	logger       *slog.Logger
	closed       bool
}

// NewONNX loads modelPath. Labels, shapes and preprocessing come from the
// metadata file (default: the model path with a .json extension).
func NewONNX(modelPath string, opts ...Option) (*ONNX, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if _, err := os.Stat(modelPath); err != nil {
		return nil, &LoadError{Location: modelPath, Err: err}
	}

	metaPath := cfg.MetadataPath
	if metaPath == "" {
		metaPath = sidecarMetadata(modelPath)
	}
	md, err := LoadMetadata(context.Background(), cfg.HTTPClient, metaPath)
	if err != nil {
		return nil, &LoadError{Location: modelPath, Err: err}
	}

	if err := acquireEnvironment(cfg.SharedLibraryPath); err != nil {
		return nil, &LoadError{Location: modelPath, Err: err}
	}

	e := &ONNX{
		path:     modelPath,
		metadata: md,
		logger:   cfg.Logger.With("component", "inference.onnx"),
	}
	if err := e.init(); err != nil {
		e.destroy()
		releaseEnvironment()
		return nil, &LoadError{Location: modelPath, Err: err}
	}

	e.logger.Info("onnx model loaded",
		"path", modelPath,
		"classes", len(md.Labels),
		"input_shape", md.InputShape,
	)
	return e, nil
}

func (e *ONNX) init() error {
	var err error
	e.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(e.metadata.InputShape...))
	if err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}
	e.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(e.metadata.OutputShape...))
	if err != nil {
		return fmt.Errorf("create output tensor: %w", err)
	}
	e.session, err = ort.NewAdvancedSession(e.path,
		[]string{e.metadata.InputName}, []string{e.metadata.OutputName},
		[]ort.ArbitraryTensor{e.inputTensor}, []ort.ArbitraryTensor{e.outputTensor},
		nil)
	if err != nil {
		return fmt.Errorf("create ONNX session: %w", err)
	}
	return nil
}

// Predict preprocesses the frame into the input tensor and runs the session.
// Calls are serialized; the tensors are shared.
func (e *ONNX) Predict(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
	if frame == nil || frame.Image == nil {
		return nil, WrapError(engineONNX, ErrEmptyFrame)
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapError(engineONNX, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, WrapError(engineONNX, ErrEngineClosed)
	}

	start := time.Now()
	Preprocess(frame.Image, e.metadata, e.inputTensor.GetData())

	if err := e.session.Run(); err != nil {
		return nil, WrapError(engineONNX, fmt.Errorf("run session: %w", err))
	}

	scores := append([]float32(nil), e.outputTensor.GetData()...)
	if e.metadata.Softmax {
		classify.Softmax(scores)
	}

	e.logger.Debug("onnx prediction",
		"frame", frame.ID,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return classify.FromScores(e.metadata.Labels, scores), nil
}

// Classes returns the model labels.
func (e *ONNX) Classes() []string {
	return append([]string(nil), e.metadata.Labels...)
}

// Metadata returns the metadata the engine was loaded with.
func (e *ONNX) Metadata() Metadata {
	return *e.metadata
}

// Health reports whether the session is still usable.
func (e *ONNX) Health(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}

// Close destroys the session and tensors. It is safe to call twice.
func (e *ONNX) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.destroy()
	releaseEnvironment()
	return nil
}

func (e *ONNX) destroy() {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
}

// Verify ONNX implements Engine at compile time.
var _ Engine = (*ONNX)(nil)
