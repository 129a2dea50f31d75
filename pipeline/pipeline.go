// Package pipeline orchestrates inference for an autoregressive diffusion
// model: it wires a text encoder, a VAE, a transformer denoiser and a noise
// scheduler, and turns a text prompt (and optional seed image) into pixels
// or video frames.
//
// All heavy model math lives behind the collaborator interfaces; the
// pipeline assembles per-call instructions, shapes tensors between the
// collaborators, and tags the result.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/novagen-ai/novagen/internal/logger"
	"github.com/novagen-ai/novagen/internal/metrics"
)

// Config lists the collaborators a pipeline runs on. All of them must be
// already constructed and ready to use; resolution from pretrained sources
// happens in the registry, before any Pipeline exists.
type Config struct {
	TextEncoder TextEncoder
	VAE         VAE
	Transformer Transformer
	Scheduler   Scheduler
}

func (c Config) validate() error {
	if c.TextEncoder == nil {
		return fmt.Errorf("missing collaborator: text encoder")
	}
	if c.VAE == nil {
		return fmt.Errorf("missing collaborator: vae")
	}
	if c.Transformer == nil {
		return fmt.Errorf("missing collaborator: transformer")
	}
	if c.Scheduler == nil {
		return fmt.Errorf("missing collaborator: scheduler")
	}
	return nil
}

// Pipeline is the generation orchestrator. A Pipeline holds no per-call
// state; all call-scoped configuration travels through genCall values, so a
// single instance is safe for concurrent Generate calls as long as its
// collaborators are.
type Pipeline struct {
	textEncoder TextEncoder
	vae         VAE
	transformer Transformer
	scheduler   Scheduler

	components map[string]string
	log        *logger.Logger
}

// New builds a pipeline from ready collaborators. The scheduler is installed
// onto the transformer, which drives it during the inner diffusion loop.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Transformer.SetScheduler(cfg.Scheduler)

	p := &Pipeline{
		textEncoder: cfg.TextEncoder,
		vae:         cfg.VAE,
		transformer: cfg.Transformer,
		scheduler:   cfg.Scheduler,
		components: map[string]string{
			"text_encoder": fmt.Sprintf("%T", cfg.TextEncoder),
			"vae":          fmt.Sprintf("%T", cfg.VAE),
			"transformer":  fmt.Sprintf("%T", cfg.Transformer),
			"scheduler":    fmt.Sprintf("%T", cfg.Scheduler),
		},
		log: logger.Log.Component("pipeline"),
	}
	return p, nil
}

// Components reports the resolved collaborator type names, keyed by
// component kind. Useful for logging and reproducibility records.
func (p *Pipeline) Components() map[string]string {
	out := make(map[string]string, len(p.components))
	for k, v := range p.components {
		out[k] = v
	}
	return out
}

// genCall is the call-scoped parameter bundle threaded through every helper,
// replacing any mutation of pipeline fields between calls.
type genCall struct {
	req  GenerateRequest
	mode Mode
}

func (c genCall) guided() bool { return c.req.GuidanceScale > 1 }

// Generate runs one generation call: prompt encoding, optional seed-image
// latent preparation, the transformer's autoregressive/diffusion loop, VAE
// decoding via the transformer's postprocess, and output tagging.
//
// Failures from collaborators are wrapped and propagated unchanged in
// meaning: no retries, no partial results.
func (p *Pipeline) Generate(ctx context.Context, req GenerateRequest) (*Output, error) {
	req = req.withDefaults()
	if len(req.Prompt) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	call := genCall{req: req, mode: req.Mode()}
	start := time.Now()

	revealCounts, err := RevealSchedule(req.NumInferenceSteps, p.transformer.PatchCount())
	if err != nil {
		return nil, err
	}

	embedding, err := p.encodePrompt(ctx, call)
	if err != nil {
		metrics.RecordGenerationError("text_encoder")
		return nil, fmt.Errorf("encode prompt: %w", err)
	}

	latents, err := p.prepareLatents(ctx, call)
	if err != nil {
		metrics.RecordGenerationError("vae")
		return nil, fmt.Errorf("prepare latents: %w", err)
	}

	rows := embedding.Shape().Dimensions[0]
	batchSize := rows
	if call.guided() {
		batchSize = rows / 2
	}
	motionFlow := make([]float64, batchSize)
	for i := range motionFlow {
		motionFlow[i] = req.MotionFlow
	}

	metrics.RecordSchedule(req.NumInferenceSteps, req.NumDiffusionSteps, req.MaxLatentLength)
	metrics.RecordPromptBatch(rows)
	p.log.Debug("generation inputs assembled",
		"mode", call.mode.String(),
		"batch_size", batchSize,
		"inference_steps", req.NumInferenceSteps,
		"diffusion_steps", req.NumDiffusionSteps,
		"latent_frames", req.MaxLatentLength)

	inputs := &GenerationInputs{
		Latents:           latents,
		PromptEmbedding:   embedding,
		RevealCounts:      revealCounts,
		NumDiffusionSteps: req.NumDiffusionSteps,
		MaxLatentLength:   req.MaxLatentLength,
		MotionFlow:        motionFlow,
		BatchSize:         batchSize,
		GuidanceScale:     req.GuidanceScale,
		Generator:         req.Generator,
		ShowChunkProgress: req.MaxLatentLength > 1,
		ShowStepProgress:  req.MaxLatentLength == 1,
	}

	outputs, err := p.transformer.Generate(ctx, inputs)
	if err != nil {
		metrics.RecordGenerationError("transformer")
		return nil, fmt.Errorf("transformer generate: %w", err)
	}
	if outputs == nil || outputs.X == nil {
		return nil, fmt.Errorf("transformer generate: missing output tensor")
	}

	pctx := &PostprocessContext{
		VAE:           p.vae,
		GuidanceScale: req.GuidanceScale,
		OutputType:    req.OutputType,
		BatchSize:     batchSize,
		Generator:     req.Generator,
	}
	if err := p.transformer.Postprocess(ctx, outputs, pctx); err != nil {
		metrics.RecordGenerationError("transformer")
		return nil, fmt.Errorf("postprocess: %w", err)
	}

	out, err := p.shapeOutput(call, outputs)
	if err != nil {
		return nil, err
	}
	metrics.RecordGeneration(call.mode.String(), time.Since(start))
	return out, nil
}
