package pipeline

import (
	"fmt"

	"github.com/novagen-ai/novagen/internal/pixels"
)

// shapeOutput tags the postprocessed tensor according to the request's mode
// and output type. Latent and tensor requests short-circuit before any host
// conversion or image materialization.
func (p *Pipeline) shapeOutput(call genCall, outputs *GenerationOutputs) (*Output, error) {
	switch call.req.OutputType {
	case OutputTypeLatent, OutputTypeTensor:
		return &Output{Raw: outputs.X}, nil
	}

	x := outputs.X
	switch call.mode {
	case ModeVideo:
		if x.Rank() != 5 {
			return nil, fmt.Errorf("video mode expects a rank-5 [batch, frames, height, width, channels] tensor, got rank %d", x.Rank())
		}
		return &Output{Frames: x}, nil
	default:
		if x.Rank() != 4 {
			return nil, fmt.Errorf("image mode expects a rank-4 [batch, height, width, channels] tensor, got rank %d", x.Rank())
		}
		if call.req.OutputType == OutputTypeArray {
			return &Output{ImageArray: x}, nil
		}
		images, err := pixels.TensorToImages(x)
		if err != nil {
			return nil, fmt.Errorf("materialize images: %w", err)
		}
		return &Output{Images: images}, nil
	}
}
