package pipeline

import (
	"context"
	"math/rand"

	"github.com/gomlx/gomlx/types/tensors"
)

// TextEncoder turns prompt strings into a conditioning embedding tensor.
// The returned tensor is row-per-prompt: shape [len(prompts), ...].
// Tokenization is owned by the encoder; NumTokens reports the maximum
// token length it encodes to.
type TextEncoder interface {
	EncodePrompts(ctx context.Context, prompts []string) (*tensors.Tensor, error)
	NumTokens() int
}

// VAE compresses pixel tensors into latents and decompresses them back.
// Encode takes a [batch, channels, height, width] float32 tensor in [-1, 1]
// and returns one sampled latent from the posterior distribution. Scale
// applies the VAE's declared latent scale factor.
type VAE interface {
	Encode(ctx context.Context, pixels *tensors.Tensor, generator *rand.Rand) (*tensors.Tensor, error)
	Decode(ctx context.Context, latent *tensors.Tensor) (*tensors.Tensor, error)
	Scale(latent *tensors.Tensor) *tensors.Tensor
	ScaleFactor() float64
}

// Scheduler owns the denoising update rule. Its stepping math is opaque to
// the pipeline: it is handed to the transformer, which drives it during the
// inner diffusion loop.
type Scheduler interface {
	// SetTimesteps derives the timestep sequence for the given number of
	// denoising steps, largest timestep first.
	SetTimesteps(numSteps int) []int
	// Step produces the previous (less noisy) sample from the model output
	// at the given timestep.
	Step(modelOutput *tensors.Tensor, timestep int, sample *tensors.Tensor) *tensors.Tensor
}

// Transformer runs the combined autoregressive/diffusion generation. The
// iterative denoising math is wholly owned by the transformer and its
// scheduler; the pipeline only assembles per-call instructions.
type Transformer interface {
	// PatchCount reports the number of latent patches per frame, the product
	// of the model's declared base size.
	PatchCount() int
	// SetScheduler installs the sampling scheduler used by the inner
	// diffusion loop. Called once at pipeline construction.
	SetScheduler(s Scheduler)
	// Generate runs the generation loop and returns raw output tensors.
	Generate(ctx context.Context, inputs *GenerationInputs) (*GenerationOutputs, error)
	// Postprocess decodes and finalizes raw outputs in place, using the VAE
	// and per-call parameters carried by the context value.
	Postprocess(ctx context.Context, outputs *GenerationOutputs, pctx *PostprocessContext) error
}

// GenerationInputs is the per-call instruction set handed to the transformer.
type GenerationInputs struct {
	// Latents seeds generation; empty unless an input image was encoded.
	Latents []*tensors.Tensor
	// PromptEmbedding holds positive rows first, then negative rows when
	// classifier-free guidance is enabled.
	PromptEmbedding *tensors.Tensor
	// RevealCounts gives, per autoregressive step, how many latent patches
	// to unmask. Sums to PatchCount().
	RevealCounts []int
	// NumDiffusionSteps is the denoising step count per autoregressive step.
	NumDiffusionSteps int
	// MaxLatentLength bounds the number of generated latent frames.
	MaxLatentLength int
	// MotionFlow carries the motion conditioning value, one per batch element.
	MotionFlow []float64
	// BatchSize is the effective batch size, after guidance splitting.
	BatchSize int
	// GuidanceScale combines conditioned and unconditioned outputs when > 1.
	GuidanceScale float64
	// Generator drives sampling noise; nil means implementation-seeded.
	Generator *rand.Rand
	// ShowChunkProgress displays per-frame progress (video mode).
	ShowChunkProgress bool
	// ShowStepProgress displays per-step progress (image mode).
	ShowStepProgress bool
}

// GenerationOutputs is the transformer's result. X is the primary output
// tensor; after Postprocess it holds decoded pixels unless the call asked
// for latents.
type GenerationOutputs struct {
	X     *tensors.Tensor
	Extra map[string]*tensors.Tensor
}

// PostprocessContext carries the collaborators and per-call parameters the
// transformer needs while finalizing outputs.
type PostprocessContext struct {
	VAE           VAE
	GuidanceScale float64
	OutputType    OutputType
	BatchSize     int
	Generator     *rand.Rand
}
