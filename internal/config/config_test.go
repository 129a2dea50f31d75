package config

import (
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.NumInferenceSteps != 64 {
		t.Errorf("expected NumInferenceSteps 64, got %d", cfg.NumInferenceSteps)
	}
	if cfg.NumDiffusionSteps != 25 {
		t.Errorf("expected NumDiffusionSteps 25, got %d", cfg.NumDiffusionSteps)
	}
	if cfg.MaxLatentLength != 1 {
		t.Errorf("expected MaxLatentLength 1, got %d", cfg.MaxLatentLength)
	}
	if cfg.GuidanceScale != 5 {
		t.Errorf("expected GuidanceScale 5, got %v", cfg.GuidanceScale)
	}
	if cfg.MotionFlow != 5 {
		t.Errorf("expected MotionFlow 5, got %v", cfg.MotionFlow)
	}
	if cfg.IsVideo() {
		t.Error("expected image mode by default")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Model = "nova-d48w1024"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"video defaults", func(c *Config) { c.MaxLatentLength = 9 }, false},
		{"missing model", func(c *Config) { c.Model = "" }, true},
		{"zero inference steps", func(c *Config) { c.NumInferenceSteps = 0 }, true},
		{"negative diffusion steps", func(c *Config) { c.NumDiffusionSteps = -1 }, true},
		{"zero latent length", func(c *Config) { c.MaxLatentLength = 0 }, true},
		{"negative guidance", func(c *Config) { c.GuidanceScale = -1 }, true},
		{"guidance disabled", func(c *Config) { c.GuidanceScale = 0 }, false},
		{"negative motion flow", func(c *Config) { c.MotionFlow = -2 }, true},
		{"negative timeout", func(c *Config) { c.RequestTimeoutSeconds = -1 }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeoutSeconds = 0 }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"uppercase log level", func(c *Config) { c.LogLevel = "DEBUG" }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestIsVideo(t *testing.T) {
	cfg := Default()
	cfg.MaxLatentLength = 9
	if !cfg.IsVideo() {
		t.Error("expected video mode for MaxLatentLength > 1")
	}
}
