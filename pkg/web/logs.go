package web

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-recognize/pkg/session"
)

// LogEntry represents a log line for the dashboard.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warn, error, result
	Message string `json:"message"`
}

// AddLog appends an entry to the backlog and broadcasts it.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[len(s.logs)-maxLogEntries:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// Logs returns a copy of the backlog.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return append([]LogEntry(nil), s.logs...)
}

// LogHandler returns a slog handler that forwards records at level or above
// to the dashboard log feed and then to next. Per-frame failure records
// (session.FrameScope) only go to next.
func (s *Server) LogHandler(next slog.Handler, level slog.Level) slog.Handler {
	return &teeHandler{next: next, srv: s, level: level}
}

type teeHandler struct {
	next  slog.Handler
	srv   *Server
	level slog.Level
	attrs []slog.Attr
}

func (h *teeHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level || h.next.Enabled(ctx, l)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level && !frameScoped(h.attrs, r) {
		var b strings.Builder
		b.WriteString(r.Message)
		write := func(a slog.Attr) bool {
			fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
			return true
		}
		for _, a := range h.attrs {
			write(a)
		}
		r.Attrs(write)
		h.srv.AddLog(strings.ToLower(r.Level.String()), b.String())
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{
		next:  h.next.WithAttrs(attrs),
		srv:   h.srv,
		level: h.level,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{next: h.next.WithGroup(name), srv: h.srv, level: h.level, attrs: h.attrs}
}

// frameScoped reports whether a record is a per-frame failure, which stays
// out of the dashboard feed.
func frameScoped(attrs []slog.Attr, r slog.Record) bool {
	isFrame := func(a slog.Attr) bool {
		return a.Key == session.ScopeKey && a.Value.String() == session.ScopeFrame
	}
	for _, a := range attrs {
		if isFrame(a) {
			return true
		}
	}
	found := false
	r.Attrs(func(a slog.Attr) bool {
		found = isFrame(a)
		return !found
	})
	return found
}
