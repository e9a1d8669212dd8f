// Package inference loads pre-trained image classifiers and runs them on frames.
//
// Engines hide the runtime behind a single interface so the polling loop does
// not care whether a model runs in-process (ONNX Runtime, OpenCV DNN) or behind
// an HTTP endpoint.
//
// Example usage:
//
//	engine, err := inference.Load(ctx, "models/classifier.onnx",
//	    inference.WithMetadataPath("models/metadata.json"),
//	)
//	if err != nil {
//	    return err // *inference.LoadError
//	}
//	defer engine.Close()
//
//	vec, err := engine.Predict(ctx, frame)
package inference

import (
	"context"
	"strings"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
)

// Engine evaluates a trained classifier against frames.
// Implementations must be safe for concurrent use; they may serialize calls.
type Engine interface {
	// Predict returns one probability per class, in model order.
	// Failures are reported as *InferenceError.
	Predict(ctx context.Context, frame *camera.Frame) (classify.Vector, error)

	// Classes returns the class names known to the model.
	Classes() []string

	// Health checks that the engine can still serve predictions.
	Health(ctx context.Context) error

	// Close releases any resources held by the engine.
	Close() error
}

// LoaderFunc loads an engine. Failures are reported as *LoadError.
type LoaderFunc func(ctx context.Context) (Engine, error)

// Kind identifies the engine implementation selected by a model location.
type Kind string

const (
	KindMock   Kind = "mock"
	KindRemote Kind = "remote"
	KindONNX   Kind = "onnx"
	KindDNN    Kind = "dnn"
)

// KindOf classifies a model location and returns the part after any scheme prefix.
//
//	mock://cat,dog          -> mock, "cat,dog"
//	https://host/models/x/  -> remote, location unchanged
//	dnn:models/net.pb       -> dnn, "models/net.pb"
//	models/net.onnx         -> onnx, location unchanged
func KindOf(location string) (Kind, string, bool) {
	switch {
	case strings.HasPrefix(location, "mock://"):
		return KindMock, strings.TrimPrefix(location, "mock://"), true
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return KindRemote, location, true
	case strings.HasPrefix(location, "dnn:"):
		return KindDNN, strings.TrimPrefix(location, "dnn:"), true
	case strings.HasSuffix(strings.ToLower(location), ".onnx"):
		return KindONNX, location, true
	default:
		return "", location, false
	}
}
