package web

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/hub"
	"github.com/teslashibe/go-recognize/pkg/inference"
	"github.com/teslashibe/go-recognize/pkg/session"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State   session.State   `json:"state"`
	Status  session.Update  `json:"status"`
	Last    *session.Update `json:"last,omitempty"`
	Stats   session.Stats   `json:"stats"`
	Clients map[string]int  `json:"clients"`
}

// PredictResponse is returned by POST /api/predict. The predictions field
// makes it readable by the remote inference engine.
type PredictResponse struct {
	Predictions classify.Vector `json:"predictions"`
	Result      classify.Result `json:"result"`
	Status      string          `json:"status"`
}

// handleHealth reports liveness and, when a model is loaded, its health.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := fiber.Map{"status": "ok"}
	ctrl := s.controller()
	if ctrl == nil {
		return c.JSON(resp)
	}
	resp["state"] = ctrl.State()
	if engine, ok := ctrl.Engine(); ok {
		if err := engine.Health(c.UserContext()); err != nil {
			resp["status"] = "degraded"
			resp["engine"] = err.Error()
			return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
		}
		resp["engine"] = "ok"
	}
	return c.JSON(resp)
}

// handleStatus returns the session state, last status and last result.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "session not attached")
	}

	resp := StatusResponse{
		State:  ctrl.State(),
		Status: ctrl.Status(),
		Stats:  ctrl.Stats(),
		Clients: map[string]int{
			"status": s.statusHub.ClientCount(),
			"camera": s.cameraHub.ClientCount(),
			"logs":   s.logHub.ClientCount(),
		},
	}
	if last, ok := ctrl.Last(); ok {
		if !s.cfg.UI.ShowDetailedPredictions {
			last.Predictions = nil
		}
		resp.Last = &last
	}
	return c.JSON(resp)
}

// handleConfig returns the effective configuration.
func (s *Server) handleConfig(c *fiber.Ctx) error {
	return c.JSON(s.cfg)
}

// handleGetLogs returns recent log entries.
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	return c.JSON(s.Logs())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error { return ctrl.Start(context.Background()) })
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error { return ctrl.Stop() })
}

func (s *Server) handleToggle(c *fiber.Ctx) error {
	return s.control(c, func(ctrl Controller) error { return ctrl.Toggle(context.Background()) })
}

// control runs a session transition and reports the resulting status.
func (s *Server) control(c *fiber.Ctx, fn func(Controller) error) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "session not attached")
	}
	if err := fn(ctrl); err != nil {
		return s.sessionError(c, ctrl, err)
	}
	return c.JSON(fiber.Map{
		"state":  ctrl.State(),
		"status": ctrl.Status(),
	})
}

func (s *Server) handleOnce(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "session not attached")
	}
	upd, err := ctrl.Once(c.UserContext())
	if err != nil {
		return s.sessionError(c, ctrl, err)
	}
	if !s.cfg.UI.ShowDetailedPredictions {
		upd.Predictions = nil
	}
	return c.JSON(upd)
}

// sessionError maps session failures to HTTP responses. Startup failures
// carry the retry affordance.
func (s *Server) sessionError(c *fiber.Ctx, ctrl Controller, err error) error {
	var se *session.StartError
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
			"state": ctrl.State(),
		})
	case errors.As(err, &se):
		st := ctrl.Status()
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":  st.Status,
			"detail": st.Detail,
			"stage":  se.Stage,
			"action": session.ActionRetry,
			"state":  ctrl.State(),
		})
	case inference.IsInferenceError(err):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// handlePredict classifies an uploaded image. It accepts a multipart form
// with an "image" field or a raw image body.
func (s *Server) handlePredict(c *fiber.Ctx) error {
	data, err := uploadedImage(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "decode image: " + err.Error()})
	}

	engine, err := s.predictEngine(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	vec, err := engine.Predict(c.UserContext(), camera.NewFrame(img, "upload"))
	if err != nil {
		s.logger.Warn("upload prediction failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := classify.Select(vec, s.threshold())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(PredictResponse{
		Predictions: vec,
		Result:      res,
		Status:      classify.StatusLine(res),
	})
}

// handleMetadata serves the loaded model's labels in the Teachable Machine
// metadata format, so this server can act as a remote engine.
func (s *Server) handleMetadata(c *fiber.Ctx) error {
	engine, err := s.predictEngine(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}

	md := inference.Metadata{
		Labels:    engine.Classes(),
		ImageSize: inference.DefaultImageSize,
		ModelName: s.cfg.Model.URL,
	}
	if m, ok := engine.(interface{ Metadata() inference.Metadata }); ok {
		md.ImageSize = m.Metadata().ImageSize
	}
	return c.JSON(md)
}

// predictEngine prefers the running session's engine and otherwise loads
// (once) an engine of its own.
func (s *Server) predictEngine(ctx context.Context) (inference.Engine, error) {
	if ctrl := s.controller(); ctrl != nil {
		if engine, ok := ctrl.Engine(); ok {
			return engine, nil
		}
	}

	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	if s.engine != nil {
		return s.engine, nil
	}
	if s.loader == nil {
		return nil, inference.ErrEngineUnavailable
	}
	engine, err := s.loader(ctx)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return engine, nil
}

func (s *Server) threshold() float64 {
	if ctrl := s.controller(); ctrl != nil {
		return ctrl.Threshold()
	}
	return s.cfg.Model.ConfidenceThreshold
}

func uploadedImage(c *fiber.Ctx) ([]byte, error) {
	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	body := c.Body()
	if len(body) == 0 {
		return nil, errors.New(`missing "image" form field or image body`)
	}
	return append([]byte(nil), body...), nil
}

// handleStatusWS streams session updates, starting with the current status.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if ctrl := s.controller(); ctrl != nil {
		if msg, err := hub.JSON(ctrl.Status()); err == nil {
			initial = append(initial, msg)
		}
		if last, ok := ctrl.Last(); ok {
			if !s.cfg.UI.ShowDetailedPredictions {
				last.Predictions = nil
			}
			if msg, err := hub.JSON(last); err == nil {
				initial = append(initial, msg)
			}
		}
	}
	s.runClient(s.statusHub, c, initial...)
}

// handleCameraWS streams JPEG previews of analysed frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.runClient(s.cameraHub, c)
}

// handleLogsWS streams log entries, starting with the backlog.
func (s *Server) handleLogsWS(c *websocket.Conn) {
	var initial []hub.Message
	for _, entry := range s.Logs() {
		if msg, err := hub.JSON(entry); err == nil {
			initial = append(initial, msg)
		}
	}
	s.runClient(s.logHub, c, initial...)
}

func (s *Server) runClient(h *hub.Hub, c *websocket.Conn, initial ...hub.Message) {
	client := hub.NewClient(h, c, initial...)
	if client == nil {
		c.Close()
		return
	}
	client.Run()
}
