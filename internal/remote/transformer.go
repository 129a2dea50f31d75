package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/schollz/progressbar/v3"

	"github.com/novagen-ai/novagen/internal/metrics"
	"github.com/novagen-ai/novagen/internal/pixels"
	"github.com/novagen-ai/novagen/pipeline"
)

// describer is implemented by schedulers that can be reconstructed
// server-side from a configuration map.
type describer interface {
	Describe() map[string]any
}

// Transformer runs the autoregressive/diffusion generation loop on the model
// server. It satisfies pipeline.Transformer. The denoising math lives
// server-side; this type assembles the per-call instruction set and streams
// tensors both ways.
type Transformer struct {
	client     *Client
	patchCount int
	scheduler  pipeline.Scheduler
}

// NewTransformer wraps a client connection. patchCount is the model's
// declared per-frame patch count (base size product).
func NewTransformer(client *Client, patchCount int) *Transformer {
	return &Transformer{client: client, patchCount: patchCount}
}

func (t *Transformer) PatchCount() int { return t.patchCount }

// SetScheduler installs the sampling scheduler. Schedulers that implement
// Describe are reconstructed server-side; others fall back to the server's
// default.
func (t *Transformer) SetScheduler(s pipeline.Scheduler) { t.scheduler = s }

// Generate streams the conditioning embedding (and seed latents, if any) to
// the server and collects generated latent chunks. The final record carries
// the full output tensor; chunk-tagged records drive progress display.
func (t *Transformer) Generate(ctx context.Context, inputs *pipeline.GenerationInputs) (*pipeline.GenerationOutputs, error) {
	params := map[string]any{
		"reveal_counts":       inputs.RevealCounts,
		"num_diffusion_steps": inputs.NumDiffusionSteps,
		"max_latent_length":   inputs.MaxLatentLength,
		"motion_flow":         inputs.MotionFlow,
		"batch_size":          inputs.BatchSize,
		"guidance_scale":      inputs.GuidanceScale,
		"seed":                drawSeed(inputs.Generator),
		"num_seed_latents":    len(inputs.Latents),
	}
	if d, ok := t.scheduler.(describer); ok {
		params["scheduler"] = d.Describe()
	}

	in := make([]*tensors.Tensor, 0, 1+len(inputs.Latents))
	in = append(in, inputs.PromptEmbedding)
	in = append(in, inputs.Latents...)

	var bar *progressbar.ProgressBar
	if inputs.ShowChunkProgress {
		bar = progressbar.Default(int64(inputs.MaxLatentLength), "generating frames")
	} else if inputs.ShowStepProgress {
		bar = progressbar.Default(int64(len(inputs.RevealCounts)), "generating")
	}
	onRecord := func(meta *RecordMeta) {
		if bar != nil && meta != nil && meta.Tag == TagChunk {
			bar.Add(1)
		}
	}

	start := time.Now()
	out, err := t.client.Exchange(ctx, Command{Op: "generate", Params: params}, in, onRecord)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordCollaboratorCall("transformer", "generate", time.Since(start))

	return &pipeline.GenerationOutputs{X: out[len(out)-1]}, nil
}

// Postprocess decodes the latent output to uint8 pixels in place. Latent and
// tensor output types skip decoding entirely.
func (t *Transformer) Postprocess(ctx context.Context, outputs *pipeline.GenerationOutputs, pctx *pipeline.PostprocessContext) error {
	switch pctx.OutputType {
	case pipeline.OutputTypeLatent, pipeline.OutputTypeTensor:
		return nil
	}
	if outputs.X == nil {
		return fmt.Errorf("postprocess: missing output tensor")
	}

	switch outputs.X.Rank() {
	case 4:
		decoded, err := t.decodeLatent(ctx, outputs.X, pctx)
		if err != nil {
			return err
		}
		outputs.X = decoded
		return nil
	case 5:
		decoded, err := t.decodeFrameLatents(ctx, outputs.X, pctx)
		if err != nil {
			return err
		}
		outputs.X = decoded
		return nil
	default:
		return fmt.Errorf("postprocess: unexpected output rank %d", outputs.X.Rank())
	}
}

// decodeLatent unscales and decodes a [batch, channels, height, width]
// latent into [batch, height, width, channels] uint8 pixels.
func (t *Transformer) decodeLatent(ctx context.Context, latent *tensors.Tensor, pctx *pipeline.PostprocessContext) (*tensors.Tensor, error) {
	px, err := pctx.VAE.Decode(ctx, unscale(latent, pctx.VAE.ScaleFactor()))
	if err != nil {
		return nil, fmt.Errorf("decode latent: %w", err)
	}
	return pixels.DenormalizeToHWC(px)
}

// decodeFrameLatents decodes a [batch, frames, channels, height, width]
// latent frame by frame and restacks the results as
// [batch, frames, height, width, channels] uint8 pixels.
func (t *Transformer) decodeFrameLatents(ctx context.Context, latent *tensors.Tensor, pctx *pipeline.PostprocessContext) (*tensors.Tensor, error) {
	dims := latent.Shape().Dimensions
	b, frames, c, h, w := dims[0], dims[1], dims[2], dims[3], dims[4]
	flat := tensors.CopyFlatData[float32](latent)
	frameSize := c * h * w

	var out []uint8
	var ph, pw, pc int
	for f := 0; f < frames; f++ {
		// Gather frame f across the batch into a [b, c, h, w] latent.
		frame := make([]float32, b*frameSize)
		for n := 0; n < b; n++ {
			src := (n*frames + f) * frameSize
			copy(frame[n*frameSize:(n+1)*frameSize], flat[src:src+frameSize])
		}
		decoded, err := t.decodeLatent(ctx, tensors.FromFlatDataAndDimensions(frame, b, c, h, w), pctx)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", f, err)
		}
		pdims := decoded.Shape().Dimensions
		ph, pw, pc = pdims[1], pdims[2], pdims[3]
		if out == nil {
			out = make([]uint8, b*frames*ph*pw*pc)
		}
		pxFlat := tensors.CopyFlatData[uint8](decoded)
		pixelFrame := ph * pw * pc
		for n := 0; n < b; n++ {
			dst := (n*frames + f) * pixelFrame
			copy(out[dst:dst+pixelFrame], pxFlat[n*pixelFrame:(n+1)*pixelFrame])
		}
	}
	return tensors.FromFlatDataAndDimensions(out, b, frames, ph, pw, pc), nil
}

// unscale divides a latent by the VAE scale factor before decoding.
func unscale(latent *tensors.Tensor, scaleFactor float64) *tensors.Tensor {
	flat := tensors.CopyFlatData[float32](latent)
	inv := float32(1.0 / scaleFactor)
	for i := range flat {
		flat[i] *= inv
	}
	return tensors.FromFlatDataAndDimensions(flat, latent.Shape().Dimensions...)
}
