// Package config holds runtime configuration for the generation service and
// CLI. Values come from flags and environment; Validate runs before any
// model is resolved.
package config

import (
	"fmt"
	"strings"
)

type Config struct {
	// Model is a model name under the models root, or a model directory path.
	Model string

	// Service endpoints.
	ListenAddr  string
	MetricsAddr string

	// Logging.
	LogLevel  string
	LogFormat string

	// Generation defaults, overridable per request.
	NumInferenceSteps int
	NumDiffusionSteps int
	MaxLatentLength   int
	GuidanceScale     float64
	MotionFlow        float64

	// OutputDir receives generated images and frames.
	OutputDir string

	// RequestTimeoutSeconds bounds a single generation call; 0 disables.
	RequestTimeoutSeconds int
}

func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("missing model (name or directory)")
	}
	if c.NumInferenceSteps <= 0 {
		return fmt.Errorf("invalid num_inference_steps: %d (must be positive)", c.NumInferenceSteps)
	}
	if c.NumDiffusionSteps <= 0 {
		return fmt.Errorf("invalid num_diffusion_steps: %d (must be positive)", c.NumDiffusionSteps)
	}
	if c.MaxLatentLength <= 0 {
		return fmt.Errorf("invalid max_latent_length: %d (must be positive)", c.MaxLatentLength)
	}
	if c.GuidanceScale < 0 {
		return fmt.Errorf("invalid guidance_scale: %f (must be non-negative)", c.GuidanceScale)
	}
	if c.MotionFlow < 0 {
		return fmt.Errorf("invalid motion_flow: %f (must be non-negative)", c.MotionFlow)
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("invalid request_timeout: %d (must be non-negative)", c.RequestTimeoutSeconds)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q (debug, info, warn, error)", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log_format: %q (json, console)", c.LogFormat)
	}
	return nil
}

// IsVideo reports whether the configured defaults select video generation.
func (c *Config) IsVideo() bool {
	return c.MaxLatentLength > 1
}

func Default() Config {
	return Config{
		ListenAddr:  ":8087",
		MetricsAddr: ":9097",
		LogLevel:    "info",
		LogFormat:   "console",

		NumInferenceSteps: 64,
		NumDiffusionSteps: 25,
		MaxLatentLength:   1,
		GuidanceScale:     5,
		MotionFlow:        5,

		OutputDir: "out",

		RequestTimeoutSeconds: 600,
	}
}
