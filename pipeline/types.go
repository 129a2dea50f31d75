package pipeline

import (
	"image"
	"math/rand"

	"github.com/gomlx/gomlx/types/tensors"
)

// Mode selects image or video generation. It is derived from
// MaxLatentLength: one latent frame means image mode, more means video.
type Mode int

const (
	ModeImage Mode = iota
	ModeVideo
)

func (m Mode) String() string {
	if m == ModeVideo {
		return "video"
	}
	return "image"
}

// OutputType selects the shape of the generation result.
type OutputType string

const (
	// OutputTypeImage materializes decoded pixels as image.Image objects
	// (image mode only).
	OutputTypeImage OutputType = "image"
	// OutputTypeArray returns decoded pixels as a host uint8 tensor,
	// [batch, height, width, channels] or [batch, frames, height, width, channels].
	OutputTypeArray OutputType = "array"
	// OutputTypeLatent returns the raw latent tensor, undecoded.
	OutputTypeLatent OutputType = "latent"
	// OutputTypeTensor returns the decoded tensor without host conversion
	// or image materialization.
	OutputTypeTensor OutputType = "tensor"
)

// GenerateRequest is the per-call parameter set for Pipeline.Generate.
// Zero values are replaced by defaults matching the original model release:
// 64 inference steps, 25 diffusion steps, single latent frame, guidance 5,
// motion flow 5, one image per prompt.
type GenerateRequest struct {
	// Prompt holds one or more positive prompts.
	Prompt []string
	// NegativePrompt guides what to exclude. Empty means unconditioned
	// negatives; a single entry is broadcast over all prompts.
	NegativePrompt []string

	// NumInferenceSteps is the number of autoregressive unmasking steps.
	NumInferenceSteps int
	// NumDiffusionSteps is the number of denoising steps.
	NumDiffusionSteps int
	// MaxLatentLength is the maximum number of latent frames to generate;
	// 1 selects image mode.
	MaxLatentLength int
	// GuidanceScale enables classifier-free guidance when > 1.
	GuidanceScale float64
	// MotionFlow is the motion conditioning value for video generation.
	MotionFlow float64
	// Image optionally seeds the first latent. Expected layout is
	// [height, width, channels] with values in [0, 255].
	Image *tensors.Tensor
	// NumImagesPerPrompt replicates each prompt's embedding contiguously.
	NumImagesPerPrompt int
	// Generator drives sampling noise. Nil leaves seeding to collaborators.
	Generator *rand.Rand
	// OutputType defaults to OutputTypeImage.
	OutputType OutputType
}

func (r GenerateRequest) withDefaults() GenerateRequest {
	if r.NumInferenceSteps == 0 {
		r.NumInferenceSteps = 64
	}
	if r.NumDiffusionSteps == 0 {
		r.NumDiffusionSteps = 25
	}
	if r.MaxLatentLength == 0 {
		r.MaxLatentLength = 1
	}
	if r.GuidanceScale == 0 {
		r.GuidanceScale = 5
	}
	if r.MotionFlow == 0 {
		r.MotionFlow = 5
	}
	if r.NumImagesPerPrompt == 0 {
		r.NumImagesPerPrompt = 1
	}
	if r.OutputType == "" {
		r.OutputType = OutputTypeImage
	}
	return r
}

// Mode reports the generation mode the request selects.
func (r GenerateRequest) Mode() Mode {
	if r.MaxLatentLength > 1 {
		return ModeVideo
	}
	return ModeImage
}

// Output is the tagged result of a generation call. Exactly one of the
// fields is populated, selected by the request's mode and output type.
type Output struct {
	// Images holds materialized images, one per batch element (image mode,
	// OutputTypeImage).
	Images []image.Image
	// ImageArray holds decoded pixels as a rank-4 host tensor
	// [batch, height, width, channels] (image mode, OutputTypeArray).
	ImageArray *tensors.Tensor
	// Frames holds decoded video frames as a rank-5 host tensor
	// [batch, frames, height, width, channels] (video mode).
	Frames *tensors.Tensor
	// Raw holds the untagged tensor for OutputTypeLatent and
	// OutputTypeTensor requests.
	Raw *tensors.Tensor
}
