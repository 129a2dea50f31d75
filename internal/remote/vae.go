package remote

import (
	"context"
	"math/rand"
	"time"

	"github.com/gomlx/gomlx/types/tensors"

	"github.com/novagen-ai/novagen/internal/metrics"
)

// VAE encodes and decodes latents on the model server. It satisfies
// pipeline.VAE. The latent scale factor is applied client-side; it is a
// declared model constant, not a learned operation.
type VAE struct {
	client      *Client
	scaleFactor float64
}

// NewVAE wraps a client connection with the model's declared latent scale
// factor.
func NewVAE(client *Client, scaleFactor float64) *VAE {
	return &VAE{client: client, scaleFactor: scaleFactor}
}

func (v *VAE) ScaleFactor() float64 { return v.scaleFactor }

// Encode samples one latent from the posterior of a [batch, channels,
// height, width] pixel tensor in [-1, 1].
func (v *VAE) Encode(ctx context.Context, pixels *tensors.Tensor, generator *rand.Rand) (*tensors.Tensor, error) {
	start := time.Now()
	out, err := v.client.Exchange(ctx, Command{
		Op:     "vae_encode",
		Params: map[string]any{"seed": drawSeed(generator)},
	}, []*tensors.Tensor{pixels}, nil)
	if err != nil {
		return nil, err
	}
	metrics.RecordCollaboratorCall("vae", "encode", time.Since(start))
	return out[len(out)-1], nil
}

// Decode maps latents back to pixel space, [batch, channels, height, width]
// float32 in [-1, 1].
func (v *VAE) Decode(ctx context.Context, latent *tensors.Tensor) (*tensors.Tensor, error) {
	start := time.Now()
	out, err := v.client.Exchange(ctx, Command{Op: "vae_decode"}, []*tensors.Tensor{latent}, nil)
	if err != nil {
		return nil, err
	}
	metrics.RecordCollaboratorCall("vae", "decode", time.Since(start))
	return out[len(out)-1], nil
}

// Scale applies the declared latent scale factor.
func (v *VAE) Scale(latent *tensors.Tensor) *tensors.Tensor {
	flat := tensors.CopyFlatData[float32](latent)
	f := float32(v.scaleFactor)
	for i := range flat {
		flat[i] *= f
	}
	return tensors.FromFlatDataAndDimensions(flat, latent.Shape().Dimensions...)
}

// drawSeed derives a wire-safe seed from the caller's generator; -1 lets the
// server seed itself.
func drawSeed(generator *rand.Rand) int64 {
	if generator == nil {
		return -1
	}
	return generator.Int63()
}
