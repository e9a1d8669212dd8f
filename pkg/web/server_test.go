package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-recognize/internal/config"
	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/inference"
	"github.com/teslashibe/go-recognize/pkg/session"
)

type fixture struct {
	srv    *Server
	sess   *session.Session
	src    *camera.MockSource
	engine *inference.Mock
}

func newFixture(t *testing.T, loadErr error) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Server.StaticDir = ""

	engine := inference.NewMock("cat", "dog")
	load := func(ctx context.Context) (inference.Engine, error) {
		if loadErr != nil {
			return nil, loadErr
		}
		return engine, nil
	}

	src := camera.NewMockSource(camera.Config{Backend: camera.BackendMock})
	src.Delay = time.Millisecond

	srv := NewServer(Options{Config: cfg, Loader: load})
	sess := session.New(src, load, srv, session.WithThreshold(cfg.Model.ConfidenceThreshold))
	srv.Attach(sess)
	t.Cleanup(func() { sess.Stop() })

	return &fixture{srv: srv, sess: sess, src: src, engine: engine}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, contentType string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := f.srv.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealthAndConfig(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "stopped", body["state"])

	resp, body = f.do(t, http.MethodGet, "/api/config", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	model := body["model"].(map[string]any)
	assert.Equal(t, 0.85, model["confidence_threshold"])
	assert.NotContains(t, model, "api_key")
	cam := body["camera"].(map[string]any)
	assert.Equal(t, float64(300), cam["width"])
	assert.Equal(t, true, cam["mirror"])
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/session/start", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", body["state"])

	resp, body = f.do(t, http.MethodPost, "/api/session/start", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 1, f.src.Opens())

	require.Eventually(t, func() bool { _, ok := f.sess.Last(); return ok }, time.Second, time.Millisecond)

	resp, body = f.do(t, http.MethodGet, "/api/status", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", body["state"])
	assert.NotNil(t, body["last"])

	resp, body = f.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, "ok", body["engine"])

	resp, body = f.do(t, http.MethodPost, "/api/session/toggle", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", body["state"])
	status := body["status"].(map[string]any)
	assert.Equal(t, session.StatusReady, status["status"])
}

func TestStartFailureCarriesRetry(t *testing.T) {
	f := newFixture(t, &inference.LoadError{Location: "x", Err: inference.ErrNoClasses})

	resp, body := f.do(t, http.MethodPost, "/api/session/start", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, session.ActionRetry, body["action"])
	assert.Equal(t, session.StageModel, body["stage"])
	assert.Equal(t, session.StatusStartFailed, body["error"])
	assert.Equal(t, "stopped", body["state"])

	logs := f.srv.Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "error", logs[len(logs)-1].Type)
}

func TestOnce(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/session/once", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, "cat", result["class_name"])
	assert.Equal(t, true, result["confident"])
	assert.Equal(t, "Recognized: cat!", body["status"])
	assert.False(t, f.src.IsOpen())
}

func TestPredictUpload(t *testing.T) {
	f := newFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "cat.png")
	require.NoError(t, err)
	part.Write(pngBytes(t))
	require.NoError(t, mw.Close())

	resp, body := f.do(t, http.MethodPost, "/api/predict", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["predictions"], 2)
	assert.Equal(t, "Recognized: cat!", body["status"])

	// Raw bodies work too; the lazily loaded engine is reused.
	resp, body = f.do(t, http.MethodPost, "/api/predict", bytes.NewReader(pngBytes(t)), "image/png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Recognized: dog!", body["status"])

	resp, _ = f.do(t, http.MethodPost, "/api/predict", bytes.NewReader([]byte("not an image")), "image/png")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerActsAsRemoteEngine(t *testing.T) {
	f := newFixture(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.Serve(ctx, ln)

	base := "http://" + ln.Addr().String() + "/api/"
	remote, err := inference.Load(context.Background(), base)
	require.NoError(t, err)
	defer remote.Close()

	assert.Equal(t, []string{"cat", "dog"}, remote.Classes())

	img, _, err := image.Decode(bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	vec, err := remote.Predict(context.Background(), camera.NewFrame(img, "test"))
	require.NoError(t, err)

	res, err := classify.Select(vec, 0.85)
	require.NoError(t, err)
	assert.Equal(t, "cat", res.ClassName)
}

func TestStatusWebsocket(t *testing.T) {
	f := newFixture(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.Serve(ctx, ln)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/status", nil)
	require.NoError(t, err)
	defer conn.Close()

	// The current status arrives first.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first session.Update
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, session.StatusReady, first.Status)

	require.Eventually(t, func() bool { return f.srv.StatusHub().ClientCount() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.sess.Start(context.Background()))

	sawResult := false
	for i := 0; i < 20 && !sawResult; i++ {
		var m map[string]any
		require.NoError(t, conn.ReadJSON(&m))
		sawResult = m["kind"] == string(session.KindResult)
	}
	assert.True(t, sawResult)
}

func TestCameraWebsocketReceivesJPEG(t *testing.T) {
	f := newFixture(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.srv.Serve(ctx, ln)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/camera", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.srv.CameraHub().ClientCount() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.sess.Start(context.Background()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, []byte{0xff, 0xd8}, data[:2], "JPEG SOI marker")
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.srv.App().Test(httptest.NewRequest(http.MethodGet, "/ws/status", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestLogHandler(t *testing.T) {
	f := newFixture(t, nil)

	var out bytes.Buffer
	logger := slog.New(f.srv.LogHandler(slog.NewTextHandler(&out, nil), slog.LevelWarn))
	logger.With("component", "test").Warn("camera busy", "device", "0")
	logger.Info("not forwarded")

	logs := f.srv.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, "warn", logs[0].Type)
	assert.Equal(t, "camera busy component=test device=0", logs[0].Message)
	assert.Contains(t, out.String(), "not forwarded")
}

func TestLogHandler_SkipsFrameFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Server.StaticDir = ""

	engine := inference.WithError(errors.New("model crashed"))
	load := func(ctx context.Context) (inference.Engine, error) { return engine, nil }
	src := camera.NewMockSource(camera.Config{Backend: camera.BackendMock})
	src.Delay = time.Millisecond

	srv := NewServer(Options{Config: cfg, Loader: load})

	var out syncBuffer
	logger := slog.New(srv.LogHandler(slog.NewTextHandler(&out, nil), slog.LevelInfo))
	sess := session.New(src, load, srv,
		session.WithLogger(logger),
		session.WithErrorBackoff(time.Millisecond),
	)
	srv.Attach(sess)

	require.NoError(t, sess.Start(context.Background()))
	require.Eventually(t, func() bool {
		return sess.Stats().InferenceFailures >= 3
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, sess.Stop())

	assert.Contains(t, out.String(), "inference failed", "failures still reach the process log")
	for _, entry := range srv.Logs() {
		assert.NotContains(t, entry.Message, "inference failed")
		assert.NotContains(t, entry.Message, "model crashed")
	}

	// Lifecycle records are still forwarded.
	logger.Warn("camera busy")
	logs := srv.Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "camera busy", logs[len(logs)-1].Message)
}

// syncBuffer is a bytes.Buffer safe for the loop goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
