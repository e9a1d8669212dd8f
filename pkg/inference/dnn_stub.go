//go:build nogocv

package inference

// NewDNN is unavailable without OpenCV.
func NewDNN(modelPath string, opts ...Option) (Engine, error) {
	return nil, &LoadError{Location: modelPath, Err: ErrUnsupported}
}
