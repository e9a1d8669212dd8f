// recognize - live camera classifier with a web dashboard
//
// Captures frames, classifies each one with a pre-trained model and reports
// the top class once it clears the confidence threshold.
//
//	recognize --model https://teachablemachine.withgoogle.com/models/XXXX/ --autostart
//	recognize --model models/pets.onnx --camera folder --path /dev/shm/frames
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/teslashibe/go-recognize/internal/config"
	applog "github.com/teslashibe/go-recognize/internal/log"
	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/inference"
	"github.com/teslashibe/go-recognize/pkg/session"
	"github.com/teslashibe/go-recognize/pkg/web"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("recognize failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig layers command-line flags over config.Load.
func loadConfig() (*config.Config, error) {
	defaults := config.Default()

	configPath := flag.String("config", "", "YAML config file")
	model := flag.String("model", defaults.Model.URL, "Model location: URL, .onnx file, dnn:<path> or mock://a,b (comma-separate fallbacks with |)")
	threshold := flag.Float64("threshold", defaults.Model.ConfidenceThreshold, "Confidence threshold (0-1)")
	preset := flag.String("preset", "", "Camera preset: "+strings.Join(camera.PresetNames(), ", "))
	backend := flag.String("camera", string(defaults.Camera.Backend), "Capture backend: device, folder, mock")
	device := flag.String("device", defaults.Camera.Device, "Camera index or stream URL")
	path := flag.String("path", "", "Watched directory for the folder backend")
	width := flag.Int("width", defaults.Camera.Width, "Frame width")
	height := flag.Int("height", defaults.Camera.Height, "Frame height")
	mirror := flag.Bool("mirror", defaults.Camera.Mirror, "Mirror frames horizontally")
	port := flag.String("port", defaults.Server.Port, "Dashboard port")
	static := flag.String("static", defaults.Server.StaticDir, "Static asset directory")
	autostart := flag.Bool("autostart", false, "Start classifying immediately")
	logLevel := flag.String("log-level", defaults.Log.Level, "Log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	// Only flags given explicitly override file and environment values.
	var presetErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model":
			locs := strings.Split(*model, "|")
			cfg.Model.URL, cfg.Model.Fallbacks = locs[0], locs[1:]
		case "threshold":
			cfg.Model.ConfidenceThreshold = *threshold
		case "preset":
			p := camera.GetPreset(*preset)
			if p == nil {
				presetErr = fmt.Errorf("unknown preset %q", *preset)
				return
			}
			p.Backend, p.Device, p.Path = cfg.Camera.Backend, cfg.Camera.Device, cfg.Camera.Path
			cfg.Camera = *p
		}
	})
	if presetErr != nil {
		return nil, presetErr
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "camera":
			cfg.Camera.Backend = camera.Backend(*backend)
		case "device":
			cfg.Camera.Device = *device
		case "path":
			cfg.Camera.Path = *path
		case "width":
			cfg.Camera.Width = *width
		case "height":
			cfg.Camera.Height = *height
		case "mirror":
			cfg.Camera.Mirror = *mirror
		case "port":
			cfg.Server.Port = *port
		case "static":
			cfg.Server.StaticDir = *static
		case "autostart":
			cfg.Server.Autostart = *autostart
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	base := applog.New(applog.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	loader := inference.Loader(cfg.Model.Locations(), cfg.Model.EngineOptions(base)...)

	srv := web.NewServer(web.Options{
		Config: cfg,
		Loader: loader,
		Logger: base,
	})

	// Everything logged at info or above also reaches the dashboard log feed,
	// except per-frame failures.
	applog.Set(slog.New(srv.LogHandler(base.Handler(), slog.LevelInfo)))
	logger := applog.Component("recognize")

	src, err := camera.New(cfg.Camera, applog.L())
	if err != nil {
		return err
	}

	// The dashboard gets status lines from the server itself; the log
	// presenter only writes to the process log.
	sess := session.New(src, loader,
		session.Presenters{srv, session.LogPresenter(base)},
		session.WithThreshold(cfg.Model.ConfidenceThreshold),
		session.WithDetailed(cfg.UI.ShowDetailedPredictions),
		session.WithErrorBackoff(cfg.Model.ErrorBackoff),
		session.WithLogger(applog.L()),
	)
	srv.Attach(sess)

	logger.Info("recognize starting",
		"model", cfg.Model.URL,
		"threshold", cfg.Model.ConfidenceThreshold,
		"camera", cfg.Camera.Backend,
		"size", fmt.Sprintf("%dx%d", cfg.Camera.Width, cfg.Camera.Height),
		"dashboard", "http://localhost"+cfg.Server.Addr(),
	)

	go preflight(ctx, sess, cfg, logger)

	err = srv.Run(ctx, cfg.Server.Addr())

	if stopErr := sess.Stop(); stopErr != nil {
		logger.Warn("session stop failed", "error", stopErr)
	}
	logger.Info("goodbye")
	return err
}

// preflight waits for the permission check delay, checks the camera and
// optionally starts the loop.
func preflight(ctx context.Context, sess *session.Session, cfg *config.Config, logger *slog.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(cfg.UI.PermissionCheckDelay):
	}

	if err := sess.Check(ctx); err != nil {
		logger.Warn("camera not ready", "reason", camera.Describe(err))
		return
	}
	if !cfg.Server.Autostart {
		return
	}
	if err := sess.Start(ctx); err != nil {
		logger.Error("autostart failed", "error", err)
	}
}
