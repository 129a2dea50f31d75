package pipeline

import (
	"context"
	"fmt"

	"github.com/gomlx/gomlx/types/tensors"
)

// encodePrompt builds the conditioning batch: positive prompts first, then
// negative prompts when guidance is enabled, encoded in one collaborator
// call and replicated per requested image.
func (p *Pipeline) encodePrompt(ctx context.Context, call genCall) (*tensors.Tensor, error) {
	prompts := call.req.Prompt
	negatives, err := broadcastNegatives(call.req.NegativePrompt, len(prompts))
	if err != nil {
		return nil, err
	}

	batch := make([]string, 0, 2*len(prompts))
	batch = append(batch, prompts...)
	if call.guided() {
		batch = append(batch, negatives...)
	}

	embedding, err := p.textEncoder.EncodePrompts(ctx, batch)
	if err != nil {
		return nil, err
	}
	return repeatRows(embedding, call.req.NumImagesPerPrompt)
}

// broadcastNegatives pads the negative prompt list to n entries: absent
// negatives become empty strings, a single negative is broadcast, and a
// full list must match the positive count.
func broadcastNegatives(negatives []string, n int) ([]string, error) {
	switch len(negatives) {
	case 0:
		return make([]string, n), nil
	case 1:
		out := make([]string, n)
		for i := range out {
			out[i] = negatives[0]
		}
		return out, nil
	case n:
		return negatives, nil
	default:
		return nil, fmt.Errorf("negative prompt count %d does not match prompt count %d", len(negatives), n)
	}
}

// repeatRows replicates each leading-axis row of t k times contiguously,
// preserving prompt-major order: row i of the input becomes rows i*k..i*k+k-1
// of the output.
func repeatRows(t *tensors.Tensor, k int) (*tensors.Tensor, error) {
	if k < 1 {
		return nil, fmt.Errorf("invalid replication count: %d", k)
	}
	if t.Rank() < 1 {
		return nil, fmt.Errorf("cannot replicate rows of a scalar tensor")
	}
	if k == 1 {
		return t, nil
	}
	if t.DType() != dtypeF32 {
		return nil, fmt.Errorf("unsupported embedding dtype %s", t.DType())
	}

	dims := t.Shape().Dimensions
	rows := dims[0]
	rowSize := t.Size() / rows

	flat := tensors.CopyFlatData[float32](t)
	out := make([]float32, 0, len(flat)*k)
	for r := 0; r < rows; r++ {
		row := flat[r*rowSize : (r+1)*rowSize]
		for i := 0; i < k; i++ {
			out = append(out, row...)
		}
	}

	outDims := append([]int{rows * k}, dims[1:]...)
	return tensors.FromFlatDataAndDimensions(out, outDims...), nil
}
