package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-recognize/internal/httpc"
	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
)

const engineRemote = "remote"

// Remote classifies frames through an HTTP model server.
//
// The server is addressed by a base URL and exposes:
//
//	GET  <base>metadata.json   labels and input size
//	POST <base>predict         JPEG body, answers [{"className","probability"}]
//	                           or {"predictions":[...]}
type Remote struct {
	baseURL  string
	metaURL  string
	config   *Config
	http     *http.Client
	logger   *slog.Logger
	metadata *Metadata
	closed   atomic.Bool
}

// NewRemote fetches the model metadata and returns a ready engine.
func NewRemote(ctx context.Context, baseURL string, opts ...Option) (*Remote, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}

	metaURL := cfg.MetadataPath
	if metaURL == "" {
		metaURL = baseURL + "metadata.json"
	}

	md, err := LoadMetadata(ctx, client, metaURL)
	if err != nil {
		return nil, &LoadError{Location: baseURL, Err: err}
	}

	r := &Remote{
		baseURL:  baseURL,
		metaURL:  metaURL,
		config:   cfg,
		http:     client,
		logger:   cfg.Logger.With("component", "inference.remote"),
		metadata: md,
	}
	r.logger.Info("remote model ready",
		"url", baseURL,
		"classes", len(md.Labels),
		"model", md.ModelName,
	)
	return r, nil
}

// Predict posts the frame as JPEG and decodes the returned probabilities.
func (r *Remote) Predict(ctx context.Context, frame *camera.Frame) (classify.Vector, error) {
	if r.closed.Load() {
		return nil, WrapError(engineRemote, ErrEngineClosed)
	}
	if frame == nil || frame.Image == nil {
		return nil, WrapError(engineRemote, ErrEmptyFrame)
	}

	start := time.Now()
	body, err := EncodeJPEG(frame.Image, 90)
	if err != nil {
		return nil, WrapError(engineRemote, fmt.Errorf("encode frame: %w", err))
	}

	resp, err := r.post(ctx, "predict", "image/jpeg", body)
	if err != nil {
		return nil, WrapError(engineRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, WrapError(engineRemote, r.parseError(resp))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httpc.MaxBodySize))
	if err != nil {
		return nil, WrapError(engineRemote, fmt.Errorf("read response: %w", err))
	}
	vec, err := decodePredictions(raw)
	if err != nil {
		return nil, WrapError(engineRemote, err)
	}
	for i := range vec {
		if vec[i].ClassName == "" && i < len(r.metadata.Labels) {
			vec[i].ClassName = r.metadata.Labels[i]
		}
	}

	r.logger.Debug("remote prediction",
		"frame", frame.ID,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return vec, nil
}

// Classes returns the labels from the server's metadata.
func (r *Remote) Classes() []string {
	return append([]string(nil), r.metadata.Labels...)
}

// Metadata returns the metadata the engine was loaded with.
func (r *Remote) Metadata() Metadata {
	return *r.metadata
}

// Health re-reads the metadata document from where it was loaded.
func (r *Remote) Health(ctx context.Context) error {
	if r.closed.Load() {
		return ErrEngineClosed
	}
	_, err := LoadMetadata(ctx, r.http, r.metaURL)
	return err
}

// Close marks the engine closed.
func (r *Remote) Close() error {
	r.closed.Store(true)
	r.http.CloseIdleConnections()
	return nil
}

// post makes a POST request with retries.
func (r *Remote) post(ctx context.Context, path, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}
	return r.doWithRetry(ctx, req, body)
}

// doWithRetry performs the request with retry logic.
func (r *Remote) doWithRetry(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			}
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		resp, err := r.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = r.parseError(resp)
			resp.Body.Close()
			r.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (r *Remote) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errResp struct {
		Error   json.RawMessage `json:"error"`
		Code    string          `json:"code"`
		Message string          `json:"message"`
	}

	message := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil {
		var s string
		var nested struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		switch {
		case json.Unmarshal(errResp.Error, &s) == nil && s != "":
			message = s
		case json.Unmarshal(errResp.Error, &nested) == nil && nested.Message != "":
			message, code = nested.Message, nested.Code
		case errResp.Message != "":
			message = errResp.Message
		}
		if code == "" {
			code = errResp.Code
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
	}
}

// decodePredictions accepts a bare prediction array or an object wrapping one.
func decodePredictions(raw []byte) (classify.Vector, error) {
	var vec classify.Vector
	if err := json.Unmarshal(raw, &vec); err == nil {
		return vec, nil
	}

	var wrapped struct {
		Predictions classify.Vector `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return wrapped.Predictions, nil
}

// Verify Remote implements Engine at compile time.
var _ Engine = (*Remote)(nil)
