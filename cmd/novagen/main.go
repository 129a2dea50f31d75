// Command novagen generates images or videos from text prompts using a
// pretrained model directory, writing the results as PNG files.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novagen-ai/novagen/internal/config"
	"github.com/novagen-ai/novagen/internal/logger"
	"github.com/novagen-ai/novagen/internal/pixels"
	"github.com/novagen-ai/novagen/internal/registry"
	"github.com/novagen-ai/novagen/internal/remote"
	"github.com/novagen-ai/novagen/pipeline"
)

var (
	model          = flag.String("model", "", "Model name or directory (required)")
	prompt         = flag.String("prompt", "", "Positive prompt; separate multiple prompts with '|' (required)")
	negativePrompt = flag.String("negative-prompt", "", "Negative prompt; separate multiple with '|'")
	steps          = flag.Int("steps", 64, "Number of autoregressive unmasking steps")
	diffusionSteps = flag.Int("diffusion-steps", 25, "Number of denoising steps")
	frames         = flag.Int("frames", 1, "Maximum latent frames; >1 selects video mode")
	guidance       = flag.Float64("guidance", 5, "Classifier-free guidance scale; <=1 disables guidance")
	motionFlow     = flag.Float64("motion-flow", 5, "Motion conditioning value for video mode")
	imagePath      = flag.String("image", "", "Optional input image seeding the first latent frame")
	numImages      = flag.Int("num-images", 1, "Images generated per prompt")
	seed           = flag.Int64("seed", -1, "Random seed; -1 leaves seeding to the model server")
	outputDir      = flag.String("output", "out", "Directory receiving generated PNGs")
	metricsAddr    = flag.String("metrics", ":9097", "Address serving Prometheus metrics")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat      = flag.String("log-format", "console", "Log format: json, console")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)
	log := logger.Log.Component("cli")

	cfg := config.Default()
	cfg.Model = *model
	cfg.NumInferenceSteps = *steps
	cfg.NumDiffusionSteps = *diffusionSteps
	cfg.MaxLatentLength = *frames
	cfg.GuidanceScale = *guidance
	cfg.MotionFlow = *motionFlow
	cfg.OutputDir = *outputDir
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "Error: --prompt flag is required")
		flag.Usage()
		os.Exit(1)
	}

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Info("metrics serving", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Warn("metrics server stopped", "error", err.Error())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	req := pipeline.GenerateRequest{
		Prompt:             splitPrompts(*prompt),
		NegativePrompt:     splitPrompts(*negativePrompt),
		NumInferenceSteps:  cfg.NumInferenceSteps,
		NumDiffusionSteps:  cfg.NumDiffusionSteps,
		MaxLatentLength:    cfg.MaxLatentLength,
		GuidanceScale:      cfg.GuidanceScale,
		MotionFlow:         cfg.MotionFlow,
		NumImagesPerPrompt: *numImages,
	}
	if *seed >= 0 {
		req.Generator = rand.New(rand.NewSource(*seed))
	}
	if *imagePath != "" {
		img, err := pixels.Load(*imagePath, 0, 0)
		if err != nil {
			log.Error("loading input image failed", "error", err.Error())
			os.Exit(1)
		}
		req.Image = img
	}

	out, err := pipe.Generate(ctx, req)
	if err != nil {
		log.Error("generation failed", "error", err.Error())
		os.Exit(1)
	}

	files, err := saveOutput(cfg.OutputDir, req.Mode(), out)
	if err != nil {
		log.Error("saving output failed", "error", err.Error())
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Println(f)
	}
}

func splitPrompts(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func saveOutput(dir string, mode pipeline.Mode, out *pipeline.Output) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var files []string
	if mode == pipeline.ModeVideo {
		sequences, err := pixels.TensorToFrameImages(out.Frames)
		if err != nil {
			return nil, err
		}
		for i, seq := range sequences {
			for f, img := range seq {
				path := filepath.Join(dir, fmt.Sprintf("video-%d-frame%03d.png", i, f))
				if err := pixels.Save(img, path); err != nil {
					return nil, err
				}
				files = append(files, path)
			}
		}
		return files, nil
	}

	for i, img := range out.Images {
		path := filepath.Join(dir, fmt.Sprintf("image-%d.png", i))
		if err := pixels.Save(img, path); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}
