// predict - classify image files with a trained model
//
//	predict --model models/pets.onnx cat.jpg dog.png
//	predict --model https://teachablemachine.withgoogle.com/models/XXXX/ --all photo.jpg
//
// Exits with status 1 when any image could not be classified.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-recognize/internal/config"
	applog "github.com/teslashibe/go-recognize/internal/log"
	"github.com/teslashibe/go-recognize/pkg/camera"
	"github.com/teslashibe/go-recognize/pkg/classify"
	"github.com/teslashibe/go-recognize/pkg/inference"
)

func main() {
	defaults := config.Default()

	model := flag.String("model", "", "Model location (defaults to MODEL_URL or the config file)")
	configPath := flag.String("config", "", "YAML config file")
	threshold := flag.Float64("threshold", defaults.Model.ConfidenceThreshold, "Confidence threshold (0-1)")
	all := flag.Bool("all", false, "Print every class, highest first")
	top := flag.Int("top", 0, "Print the N most likely classes (implies --all)")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: predict [flags] image...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(2)
	}
	if *model != "" {
		cfg.Model.URL = *model
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			cfg.Model.ConfidenceThreshold = *threshold
		}
	})

	logger := applog.New(applog.Options{Level: *logLevel, Output: os.Stderr})
	applog.Set(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, err := inference.Load(ctx, cfg.Model.URL, cfg.Model.EngineOptions(logger)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	n := 0
	if *all {
		n = -1
	}
	if *top > 0 {
		n = *top
	}

	failed := false
	for _, path := range flag.Args() {
		if err := classifyFile(ctx, engine, path, cfg.Model.ConfidenceThreshold, n); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %s: %v\n", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

// classifyFile prints the top-1 result, then up to n entries (n < 0 means all).
func classifyFile(ctx context.Context, engine inference.Engine, path string, threshold float64, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	vec, err := engine.Predict(ctx, camera.NewFrame(img, path))
	if err != nil {
		return err
	}
	res, err := classify.Select(vec, threshold)
	if err != nil {
		return err
	}

	mark := "🔍"
	if res.Confident {
		mark = "✨"
	}
	fmt.Printf("%s %s: %s - %s\n", mark, path, classify.Describe(res), classify.StatusLine(res))

	if n == 0 {
		return nil
	}
	if n < 0 {
		n = 0
	}
	for _, p := range vec.Top(n) {
		fmt.Printf("    %-24s %6.2f%%\n", p.ClassName, p.Probability*100)
	}
	return nil
}
