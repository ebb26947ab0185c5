package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kstat-sampler/internal/app"
	"kstat-sampler/internal/config"
)

const version = "1.0.0"

func main() {
	var (
		configPath  string
		showVersion bool
		once        bool
		gap         time.Duration
		debug       bool
	)

	flag.StringVar(&configPath, "config", "/etc/kstat-sampler/config.yaml", "path to config.yaml")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.BoolVar(&once, "once", false, "take one measurement, print it as JSON and exit")
	flag.DurationVar(&gap, "gap", time.Second, "delay between the two cycles of -once")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("kstat-sampler v%s\n", version)
		os.Exit(0)
	}

	logger := newLogger(os.Stderr, debug)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		if err := measureOnce(ctx, cfg, gap, logger, os.Stdout); err != nil {
			log.Fatalf("Measurement failed: %v", err)
		}
		return
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	logger.Info("sampling", "host", cfg.HostName(), "mode", cfg.Mode, "interval", cfg.SampleInterval().String())
	if err := a.Run(ctx); err != nil {
		logger.Error("run", "err", err)
	}
}

// newLogger keeps operational logs off stdout, which -once reserves for the
// snapshot.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// measureOnce writes a single meaningful snapshot to out.
func measureOnce(ctx context.Context, cfg *config.Config, gap time.Duration, logger *slog.Logger, out io.Writer) error {
	src, err := app.OpenSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	snap, err := app.NewSampler(cfg, src, logger.With("module", "sampler")).Measure(ctx, gap)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
