// watch - tail a running recognize service from the terminal
//
//	watch --addr localhost:8080
//
// Prints each status change and every confident recognition. Reconnects
// when the service restarts.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	applog "github.com/teslashibe/go-recognize/internal/log"
	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/session"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "Service address")
	verbose := flag.Bool("v", false, "Print every result, not only confident ones")
	retry := flag.Duration("retry", 2*time.Second, "Delay between reconnect attempts")
	flag.Parse()

	logger := applog.New(applog.Options{Level: "info", Output: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/status"}
	for {
		err := tail(ctx, u.String(), *verbose)
		if ctx.Err() != nil {
			fmt.Println("\n👋 Goodbye!")
			return
		}
		logger.Warn("connection lost, retrying", "url", u.String(), "error", err, "in", *retry)

		select {
		case <-ctx.Done():
			return
		case <-time.After(*retry):
		}
	}
}

// tail reads updates until the connection fails or ctx is cancelled.
func tail(ctx context.Context, wsURL string, verbose bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock ReadJSON on shutdown.
	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	fmt.Printf("🔌 Connected to %s\n", wsURL)
	lastStatus := ""
	for {
		var u session.Update
		if err := conn.ReadJSON(&u); err != nil {
			return err
		}
		if line := render(u, verbose, lastStatus); line != "" {
			fmt.Println(line)
		}
		lastStatus = u.Status
	}
}

// render formats an update, suppressing repeats of the previous status line.
func render(u session.Update, verbose bool, lastStatus string) string {
	ts := u.Time.Format("15:04:05")
	switch {
	case u.Kind == session.KindStatus && u.Error:
		if u.Detail != "" {
			return fmt.Sprintf("%s ❌ %s (%s)", ts, u.Status, u.Detail)
		}
		return fmt.Sprintf("%s ❌ %s", ts, u.Status)
	case u.Kind == session.KindStatus:
		return fmt.Sprintf("%s 📋 %s [%s]", ts, u.Status, u.State)
	case u.Result == nil:
		return ""
	case u.Result.Confident && (verbose || u.Status != lastStatus):
		return fmt.Sprintf("%s ✨ %s", ts, classify.Describe(*u.Result))
	case verbose:
		return fmt.Sprintf("%s 🔍 %s", ts, classify.Describe(*u.Result))
	}
	return ""
}
