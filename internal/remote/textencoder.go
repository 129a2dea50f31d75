package remote

import (
	"context"
	"time"

	"github.com/gomlx/gomlx/types/tensors"

	"github.com/novagen-ai/novagen/internal/metrics"
)

// TextEncoder encodes prompts on the model server. It satisfies
// pipeline.TextEncoder.
type TextEncoder struct {
	client    *Client
	numTokens int
}

// NewTextEncoder wraps a client connection. numTokens is the tokenizer's
// maximum token length, declared by the model index.
func NewTextEncoder(client *Client, numTokens int) *TextEncoder {
	return &TextEncoder{client: client, numTokens: numTokens}
}

func (e *TextEncoder) NumTokens() int { return e.numTokens }

// EncodePrompts returns one embedding row per prompt, in input order.
func (e *TextEncoder) EncodePrompts(ctx context.Context, prompts []string) (*tensors.Tensor, error) {
	start := time.Now()
	out, err := e.client.Get(ctx, Command{
		Op: "encode_prompts",
		Params: map[string]any{
			"prompts":    prompts,
			"num_tokens": e.numTokens,
		},
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordCollaboratorCall("text_encoder", "encode_prompts", time.Since(start))
	return out, nil
}
