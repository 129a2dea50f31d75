package pipeline

import (
	"context"
	"fmt"

	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

var (
	dtypeF32 = dtypes.Float32
	dtypeU8  = dtypes.Uint8
)

// prepareLatents returns the initial latent list: empty unless the request
// carries a seed image, in which case the image is encoded once and expanded
// to the requested batch width.
func (p *Pipeline) prepareLatents(ctx context.Context, call genCall) ([]*tensors.Tensor, error) {
	if call.req.Image == nil {
		return nil, nil
	}
	latent, err := p.encodeImage(ctx, call)
	if err != nil {
		return nil, err
	}
	return []*tensors.Tensor{latent}, nil
}

// encodeImage turns a [height, width, channels] pixel tensor in [0, 255]
// into a scaled VAE latent, broadcast over num_images_per_prompt.
func (p *Pipeline) encodeImage(ctx context.Context, call genCall) (*tensors.Tensor, error) {
	pixels, err := normalizePixels(call.req.Image)
	if err != nil {
		return nil, err
	}
	latent, err := p.vae.Encode(ctx, pixels, call.req.Generator)
	if err != nil {
		return nil, err
	}
	latent = p.vae.Scale(latent)
	return expandBatch(latent, call.req.NumImagesPerPrompt)
}

// normalizePixels maps a [h, w, c] tensor with values in [0, 255] to a
// [1, c, h, w] float32 tensor in [-1, 1].
func normalizePixels(img *tensors.Tensor) (*tensors.Tensor, error) {
	if img.Rank() != 3 {
		return nil, fmt.Errorf("seed image must have rank 3 [height, width, channels], got rank %d", img.Rank())
	}
	dims := img.Shape().Dimensions
	h, w, c := dims[0], dims[1], dims[2]

	var flat []float32
	switch img.DType() {
	case dtypeU8:
		raw := tensors.CopyFlatData[uint8](img)
		flat = make([]float32, len(raw))
		for i, v := range raw {
			flat[i] = float32(v)
		}
	case dtypeF32:
		flat = tensors.CopyFlatData[float32](img)
	default:
		return nil, fmt.Errorf("unsupported seed image dtype %s", img.DType())
	}

	// HWC -> CHW, with the [0,255] -> [-1,1] affine applied in the same pass.
	out := make([]float32, len(flat))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				v := flat[(y*w+x)*c+ch]
				out[ch*h*w+y*w+x] = (v - 127.5) / 127.5
			}
		}
	}
	return tensors.FromFlatDataAndDimensions(out, 1, c, h, w), nil
}

// expandBatch replicates a single-element-batch latent to width n along the
// leading axis.
func expandBatch(latent *tensors.Tensor, n int) (*tensors.Tensor, error) {
	if latent.Rank() < 1 {
		return nil, fmt.Errorf("latent must be batched, got a scalar")
	}
	dims := latent.Shape().Dimensions
	if dims[0] != 1 {
		return nil, fmt.Errorf("expected a single-element latent batch, got %d", dims[0])
	}
	if n == 1 {
		return latent, nil
	}
	if latent.DType() != dtypeF32 {
		return nil, fmt.Errorf("unsupported latent dtype %s", latent.DType())
	}

	flat := tensors.CopyFlatData[float32](latent)
	out := make([]float32, 0, len(flat)*n)
	for i := 0; i < n; i++ {
		out = append(out, flat...)
	}
	outDims := append([]int{n}, dims[1:]...)
	return tensors.FromFlatDataAndDimensions(out, outDims...), nil
}
