//go:build !nogocv

package inference

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
)

const engineDNN = "dnn"

// DNN runs a classifier through OpenCV's dnn module. It reads ONNX,
// TensorFlow (.pb), Caffe and Darknet models.
type DNN struct {
	mu       sync.Mutex
	net      gocv.Net
	metadata *Metadata
	size     image.Point
	logger   *slog.Logger
	closed   bool
}

// NewDNN loads modelPath with OpenCV.
func NewDNN(modelPath string, opts ...Option) (Engine, error) {
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

	var net gocv.Net
	if strings.EqualFold(filepath.Ext(modelPath), ".onnx") {
		net = gocv.ReadNetFromONNX(modelPath)
	} else {
		net = gocv.ReadNet(modelPath, "")
	}
	if net.Empty() {
		return nil, &LoadError{Location: modelPath, Err: fmt.Errorf("opencv could not read model")}
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	d := &DNN{
		net:      net,
		metadata: md,
		size:     image.Pt(md.ImageSize, md.ImageSize),
		logger:   cfg.Logger.With("component", "inference.dnn"),
	}
	d.logger.Info("dnn model loaded",
		"path", modelPath,
		"classes", len(md.Labels),
	)
	return d, nil
}

// Predict converts the frame to a blob and runs a forward pass.
func (d *DNN) Predict(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
	if frame == nil || frame.Image == nil {
		return nil, WrapError(engineDNN, ErrEmptyFrame)
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapError(engineDNN, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, WrapError(engineDNN, ErrEngineClosed)
	}

	start := time.Now()
	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, WrapError(engineDNN, fmt.Errorf("convert frame: %w", err))
	}
	defer img.Close()

	// ImageToMatRGB yields BGR channel order; swapRB restores RGB in the blob.
	scale, mean := 1.0/127.5, 127.5
	if d.metadata.Normalization == NormalizeUnit {
		scale, mean = 1.0/255.0, 0
	}
	blob := gocv.BlobFromImage(img, scale, d.size, gocv.NewScalar(mean, mean, mean, 0), true, true)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, WrapError(engineDNN, fmt.Errorf("read output: %w", err))
	}
	scores := append([]float32(nil), data...)
	if d.metadata.Softmax {
		classify.Softmax(scores)
	}

	d.logger.Debug("dnn prediction",
		"frame", frame.ID,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return classify.FromScores(d.metadata.Labels, scores), nil
}

// Classes returns the model labels.
func (d *DNN) Classes() []string {
	return append([]string(nil), d.metadata.Labels...)
}

// Health reports whether the network is still loaded.
func (d *DNN) Health(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrEngineClosed
	}
	return nil
}

// Close releases the network.
func (d *DNN) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

// Verify DNN implements Engine at compile time.
var _ Engine = (*DNN)(nil)
