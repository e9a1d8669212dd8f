package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/teslashibe/go-recognize/internal/httpc"
)

// Pixel normalization schemes.
const (
	// NormalizeSigned maps 0..255 to [-1,1] (Teachable Machine, MobileNet).
	NormalizeSigned = "signed"
	// NormalizeUnit maps 0..255 to [0,1].
	NormalizeUnit = "unit"
)

// Tensor layouts.
const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// DefaultImageSize is the square input edge used when metadata omits it.
const DefaultImageSize = 224

// Metadata describes a classifier's classes and expected input.
//
// Both the Teachable Machine export format ("labels", "imageSize") and a
// tensor-oriented format ("classes", "image_size", "input_shape", ...) are
// accepted; Normalize folds them together.
type Metadata struct {
	Labels    []string `json:"labels,omitempty"`
	ImageSize int      `json:"imageSize,omitempty"`
	ModelName string   `json:"modelName,omitempty"`

	Classes       []string `json:"classes,omitempty"`
	ImageSizeAlt  int      `json:"image_size,omitempty"`
	InputShape    []int64  `json:"input_shape,omitempty"`
	OutputShape   []int64  `json:"output_shape,omitempty"`
	InputName     string   `json:"input_name,omitempty"`
	OutputName    string   `json:"output_name,omitempty"`
	Normalization string   `json:"normalization,omitempty"`
	Layout        string   `json:"layout,omitempty"`
	Softmax       bool     `json:"softmax,omitempty"`
}

// ParseMetadata decodes and normalizes a metadata document.
func ParseMetadata(data []byte) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if err := md.Normalize(); err != nil {
		return nil, err
	}
	return &md, nil
}

// Normalize fills defaults and reconciles the two metadata dialects.
func (m *Metadata) Normalize() error {
	if len(m.Labels) == 0 {
		m.Labels = m.Classes
	}
	if len(m.Labels) == 0 {
		return ErrNoClasses
	}
	m.Classes = m.Labels

	if m.ImageSize == 0 {
		m.ImageSize = m.ImageSizeAlt
	}
	if m.ImageSize == 0 {
		m.ImageSize = DefaultImageSize
	}
	if m.ImageSize < 0 {
		return fmt.Errorf("%w: image size %d must be positive", ErrShapeMismatch, m.ImageSize)
	}

	m.Normalization = strings.ToLower(m.Normalization)
	switch m.Normalization {
	case "":
		m.Normalization = NormalizeSigned
	case NormalizeSigned, NormalizeUnit:
	default:
		return fmt.Errorf("metadata: unknown normalization %q", m.Normalization)
	}

	m.Layout = strings.ToLower(m.Layout)
	switch m.Layout {
	case "":
		m.Layout = LayoutNHWC
	case LayoutNHWC, LayoutNCHW:
	default:
		return fmt.Errorf("metadata: unknown layout %q", m.Layout)
	}

	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}

	size := int64(m.ImageSize)
	if len(m.InputShape) == 0 {
		if m.Layout == LayoutNCHW {
			m.InputShape = []int64{1, 3, size, size}
		} else {
			m.InputShape = []int64{1, size, size, 3}
		}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Labels))}
	}

	if got, want := elements(m.InputShape), int64(3*m.ImageSize*m.ImageSize); got != want {
		return fmt.Errorf("%w: input shape %v holds %d values, image needs %d",
			ErrShapeMismatch, m.InputShape, got, want)
	}
	if got := elements(m.OutputShape); got < int64(len(m.Labels)) {
		return fmt.Errorf("%w: output shape %v smaller than %d classes",
			ErrShapeMismatch, m.OutputShape, len(m.Labels))
	}
	return nil
}

// LoadMetadata reads metadata from a local path or an http(s) URL.
func LoadMetadata(ctx context.Context, client *http.Client, location string) (*Metadata, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		data, err = httpc.GetBytes(ctx, client, location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", location, err)
	}
	return ParseMetadata(data)
}

// sidecarMetadata returns "<model without extension>.json".
func sidecarMetadata(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
