package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/session"
)

func TestRender(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	dog := &classify.Result{ClassName: "dog", Probability: 0.9, Confident: true}
	unsure := &classify.Result{ClassName: "cat", Probability: 0.4}

	tests := []struct {
		name    string
		u       session.Update
		verbose bool
		last    string
		want    string
	}{
		{
			name: "status",
			u:    session.Update{Kind: session.KindStatus, State: session.Running, Status: session.StatusActive, Time: at},
			want: "09:30:00 📋 AI Vision Active - Analyzing in real-time [running]",
		},
		{
			name: "start failure",
			u:    session.Update{Kind: session.KindStatus, Status: session.StatusStartFailed, Detail: "No camera found.", Error: true, Time: at},
			want: "09:30:00 ❌ Error loading model or accessing camera (No camera found.)",
		},
		{
			name: "new recognition",
			u:    session.Update{Kind: session.KindResult, Status: "Recognized: dog!", Result: dog, Time: at},
			want: "09:30:00 ✨ dog (90.0%)",
		},
		{
			name: "repeat recognition suppressed",
			u:    session.Update{Kind: session.KindResult, Status: "Recognized: dog!", Result: dog, Time: at},
			last: "Recognized: dog!",
		},
		{
			name: "unsure hidden",
			u:    session.Update{Kind: session.KindResult, Status: classify.StatusSearching, Result: unsure, Time: at},
		},
		{
			name:    "unsure verbose",
			u:       session.Update{Kind: session.KindResult, Status: classify.StatusSearching, Result: unsure, Time: at},
			verbose: true,
			want:    "09:30:00 🔍 cat (40.0%)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, render(tc.u, tc.verbose, tc.last))
		})
	}
}
