package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/novagen-ai/novagen/internal/pixels"
	"github.com/novagen-ai/novagen/pipeline"
)

// GenerateRequest is the JSON body of POST /api/generate.
type GenerateRequest struct {
	Prompt             []string `json:"prompt"`
	NegativePrompt     []string `json:"negative_prompt,omitempty"`
	NumInferenceSteps  int      `json:"num_inference_steps,omitempty"`
	NumDiffusionSteps  int      `json:"num_diffusion_steps,omitempty"`
	MaxLatentLength    int      `json:"max_latent_length,omitempty"`
	GuidanceScale      float64  `json:"guidance_scale,omitempty"`
	MotionFlow         float64  `json:"motion_flow,omitempty"`
	NumImagesPerPrompt int      `json:"num_images_per_prompt,omitempty"`
	Seed               *int64   `json:"seed,omitempty"`
}

// GenerateResponse reports where the outputs landed.
type GenerateResponse struct {
	ID        string   `json:"id"`
	Mode      string   `json:"mode"`
	Files     []string `json:"files"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Prompt) == 0 {
		http.Error(w, "Missing prompt", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.RequestTimeoutSeconds)*time.Second)
		defer cancel()
	}

	preq := pipeline.GenerateRequest{
		Prompt:             req.Prompt,
		NegativePrompt:     req.NegativePrompt,
		NumInferenceSteps:  firstPositive(req.NumInferenceSteps, s.cfg.NumInferenceSteps),
		NumDiffusionSteps:  firstPositive(req.NumDiffusionSteps, s.cfg.NumDiffusionSteps),
		MaxLatentLength:    firstPositive(req.MaxLatentLength, s.cfg.MaxLatentLength),
		GuidanceScale:      firstPositiveFloat(req.GuidanceScale, s.cfg.GuidanceScale),
		MotionFlow:         firstPositiveFloat(req.MotionFlow, s.cfg.MotionFlow),
		NumImagesPerPrompt: req.NumImagesPerPrompt,
	}
	if req.Seed != nil {
		preq.Generator = rand.New(rand.NewSource(*req.Seed))
	}

	id := RequestID(ctx)
	s.log.Info("generate request",
		"id", id,
		"prompts", len(req.Prompt),
		"mode", preq.Mode().String())

	start := time.Now()
	out, err := s.pipe.Generate(ctx, preq)
	if err != nil {
		s.log.Error("generation failed", "id", id, "error", err.Error())
		s.monitor.AddAlert("error", "pipeline", err.Error())
		http.Error(w, "Generation failed", http.StatusInternalServerError)
		return
	}
	elapsed := time.Since(start)
	s.monitor.RecordGeneration(preq.NumInferenceSteps, elapsed)

	files, err := s.saveOutput(id, preq.Mode(), out)
	if err != nil {
		s.log.Error("saving output failed", "id", id, "error", err.Error())
		http.Error(w, "Saving output failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GenerateResponse{
		ID:        id,
		Mode:      preq.Mode().String(),
		Files:     files,
		ElapsedMs: elapsed.Milliseconds(),
	})
}

// saveOutput writes images (or per-frame images for video) under the output
// directory, named by request id.
func (s *Server) saveOutput(id string, mode pipeline.Mode, out *pipeline.Output) ([]string, error) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return nil, err
	}

	var files []string
	if mode == pipeline.ModeVideo {
		sequences, err := pixels.TensorToFrameImages(out.Frames)
		if err != nil {
			return nil, err
		}
		for i, frames := range sequences {
			for f, img := range frames {
				path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("%s-%d-frame%03d.png", id, i, f))
				if err := pixels.Save(img, path); err != nil {
					return nil, err
				}
				files = append(files, path)
			}
		}
		return files, nil
	}

	for i, img := range out.Images {
		path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("%s-%d.png", id, i))
		if err := pixels.Save(img, path); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   Version,
		"uptime":    time.Since(s.startTime).String(),
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version":    Version,
		"go_version": runtime.Version(),
	})
}

func firstPositive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func firstPositiveFloat(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}
