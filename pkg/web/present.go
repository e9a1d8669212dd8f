package web

import (
	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/session"
)

// Present implements session.Presenter: updates go to /ws/status, frames to
// /ws/camera and status changes to the log feed.
func (s *Server) Present(u session.Update) {
	if !s.cfg.UI.ShowDetailedPredictions {
		u.Predictions = nil
	}
	if err := s.statusHub.BroadcastJSON(u); err != nil {
		s.logger.Warn("encode update failed", "error", err)
	}

	switch {
	case u.Kind == session.KindStatus && u.Error:
		msg := u.Status
		if u.Detail != "" {
			msg += ": " + u.Detail
		}
		s.AddLog("error", msg)
	case u.Kind == session.KindStatus:
		s.AddLog("info", u.Status)
	case u.Result != nil && u.Result.Confident:
		s.AddLog("result", classify.Describe(*u.Result))
	}

	if u.Frame != nil && s.cameraHub.ClientCount() > 0 {
		data, err := u.Frame.JPEG(s.cfg.Camera.Quality)
		if err != nil {
			s.logger.Debug("encode preview failed", "error", err)
			return
		}
		s.cameraHub.BroadcastBinary(data)
	}
}

var _ session.Presenter = (*Server)(nil)
