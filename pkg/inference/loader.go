package inference

import (
	"context"
	"strings"
)

// Load opens the engine selected by location:
//
//	mock://cat,dog         Mock engine with the listed classes
//	http(s)://host/model/  Remote engine (metadata.json + predict)
//	models/net.onnx        ONNX Runtime
//	dnn:models/net.pb      OpenCV DNN
//
// Errors are always *LoadError.
func Load(ctx context.Context, location string, opts ...Option) (Engine, error) {
	kind, rest, ok := KindOf(location)
	if !ok {
		return nil, &LoadError{Location: location, Err: ErrUnknownLocation}
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Location: location, Err: err}
	}

	switch kind {
	case KindMock:
		var classes []string
		for _, c := range strings.Split(rest, ",") {
			if c = strings.TrimSpace(c); c != "" {
				classes = append(classes, c)
			}
		}
		return NewMock(classes...), nil
	case KindRemote:
		r, err := NewRemote(ctx, rest, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	case KindONNX:
		o, err := NewONNX(rest, opts...)
		if err != nil {
			return nil, err
		}
		return o, nil
	case KindDNN:
		return NewDNN(rest, opts...)
	}
	return nil, &LoadError{Location: location, Err: ErrUnknownLocation}
}

// Loader binds a location and options into a LoaderFunc.
// Several locations build a Chain tried in order.
func Loader(locations []string, opts ...Option) LoaderFunc {
	return func(ctx context.Context) (Engine, error) {
		if len(locations) == 0 {
			return nil, &LoadError{Location: "", Err: ErrUnknownLocation}
		}
		if len(locations) == 1 {
			return Load(ctx, locations[0], opts...)
		}

		cfg := DefaultConfig()
		cfg.Apply(opts...)

		engines := make([]Engine, 0, len(locations))
		for _, loc := range locations {
			e, err := Load(ctx, loc, opts...)
			if err != nil {
				for _, loaded := range engines {
					loaded.Close()
				}
				return nil, err
			}
			engines = append(engines, e)
		}
		chain, err := NewChainWithLogger(cfg.Logger, engines...)
		if err != nil {
			return nil, &LoadError{Location: strings.Join(locations, ","), Err: err}
		}
		return chain, nil
	}
}
