// Command novagen-server exposes a resolved generation pipeline over HTTP,
// with operational endpoints (health, metrics, status) on a separate
// listener.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novagen-ai/novagen/internal/config"
	"github.com/novagen-ai/novagen/internal/logger"
	"github.com/novagen-ai/novagen/internal/monitoring"
	"github.com/novagen-ai/novagen/internal/registry"
	"github.com/novagen-ai/novagen/internal/remote"
	"github.com/novagen-ai/novagen/internal/server"
	"github.com/novagen-ai/novagen/pipeline"
)

var (
	model          = flag.String("model", "", "Model name or directory (required)")
	listenAddr     = flag.String("listen", ":8087", "Address serving the generation API")
	metricsAddr    = flag.String("metrics", ":9097", "Address serving health and metrics endpoints")
	outputDir      = flag.String("output", "out", "Directory receiving generated PNGs")
	requestTimeout = flag.Int("request-timeout", 600, "Per-request timeout in seconds; 0 disables")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat      = flag.String("log-format", "json", "Log format: json, console")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)
	log := logger.Log.Component("main")

	cfg := config.Default()
	cfg.Model = *model
	cfg.ListenAddr = *listenAddr
	cfg.MetricsAddr = *metricsAddr
	cfg.OutputDir = *outputDir
	cfg.RequestTimeoutSeconds = *requestTimeout
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	modelDir, err := registry.ResolveModelDir(cfg.Model)
	if err != nil {
		log.Error("model lookup failed", "error", err.Error())
		os.Exit(1)
	}
	res, err := registry.Resolve(modelDir, remote.Factories())
	if err != nil {
		log.Error("model resolution failed", "error", err.Error())
		os.Exit(1)
	}
	pipe, err := pipeline.New(res.Config)
	if err != nil {
		log.Error("pipeline construction failed", "error", err.Error())
		os.Exit(1)
	}

	monitor := monitoring.NewHealthMonitor(server.Version)
	monitor.SetModel(monitoring.ModelInfo{
		Loaded:     true,
		Dir:        modelDir,
		Pipeline:   res.Pipeline,
		Components: res.Resolved,
	})

	srv := server.New(cfg, pipe, monitor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("generation server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := monitor.Start(cfg.MetricsAddr); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("monitoring server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Warn("generation server shutdown", "error", err.Error())
		}
		if err := monitor.Stop(shutdownCtx); err != nil {
			log.Warn("monitoring server shutdown", "error", err.Error())
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
	log.Info("stopped")
}
