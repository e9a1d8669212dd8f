package inference

import (
	"context"
	"log/slog"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
)

// Chain tries multiple engines in order until one succeeds.
// A typical chain puts a remote model first and a local ONNX copy second.
type Chain struct {
	engines []Engine
	logger  *slog.Logger
}

// NewChain creates an engine chain.
// At least one engine is required.
func NewChain(engines ...Engine) (*Chain, error) {
	if len(engines) == 0 {
		return nil, ErrEngineUnavailable
	}
	return &Chain{
		engines: engines,
		logger:  slog.Default().With("component", "inference.chain"),
	}, nil
}

// NewChainWithLogger creates an engine chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, engines ...Engine) (*Chain, error) {
	chain, err := NewChain(engines...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "inference.chain")
	return chain, nil
}

// Predict tries each engine until one succeeds.
func (c *Chain) Predict(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
	var errs []error

	for i, e := range c.engines {
		vec, err := e.Predict(ctx, frame)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback engine succeeded",
					"engine_index", i,
				)
			}
			return vec, nil
		}

		errs = append(errs, err)
		c.logger.Warn("engine failed, trying next",
			"engine_index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, WrapError("chain", ctx.Err())
		}
	}

	return nil, WrapError("chain", &ChainError{Errors: errs})
}

// Classes returns the classes of the first engine.
func (c *Chain) Classes() []string {
	return c.engines[0].Classes()
}

// Health checks all engines and returns an error if all are unhealthy.
func (c *Chain) Health(ctx context.Context) error {
	var healthy int
	var lastErr error

	for _, e := range c.engines {
		if err := e.Health(ctx); err != nil {
			lastErr = err
		} else {
			healthy++
		}
	}

	if healthy == 0 {
		return WrapError("chain", lastErr)
	}

	c.logger.Debug("health check complete",
		"healthy", healthy,
		"total", len(c.engines),
	)

	return nil
}

// Close closes all engines.
func (c *Chain) Close() error {
	var lastErr error
	for _, e := range c.engines {
		if err := e.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Engines returns the list of engines in the chain.
func (c *Chain) Engines() []Engine {
	return c.engines
}

// Verify Chain implements Engine at compile time.
var _ Engine = (*Chain)(nil)
