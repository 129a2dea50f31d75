// Package remote implements the pipeline collaborators as clients of a
// model server speaking Arrow Flight. The heavy model math (text encoding,
// VAE convolutions, the transformer's denoising loop) runs server-side;
// this package only moves tensors and per-call instructions across the wire.
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/gomlx/gomlx/types/tensors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/novagen-ai/novagen/internal/logger"
	"github.com/novagen-ai/novagen/internal/metrics"
)

// Command is the JSON instruction sent with every call, as a Flight ticket
// (pull-only ops) or command descriptor (tensor exchanges).
type Command struct {
	Op     string         `json:"op"`
	Params map[string]any `json:"params,omitempty"`
}

// Client is a connection to a model server. One client is shared by all
// remote collaborators resolved from the same component spec.
type Client struct {
	addr string
	fc   flight.Client
	mem  memory.Allocator
	log  *logger.Logger
}

// Dial connects to a model server. Without explicit options the connection
// is plaintext, matching single-host deployments.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	fc, err := flight.NewClientWithMiddleware(addr, nil, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial model server %s: %w", addr, err)
	}
	return &Client{
		addr: addr,
		fc:   fc,
		mem:  memory.DefaultAllocator,
		log:  logger.Log.Component("remote"),
	}, nil
}

func (c *Client) Close() error {
	if c.fc != nil {
		return c.fc.Close()
	}
	return nil
}

// Get runs a pull-only operation: the command travels as the ticket and the
// response stream must contain exactly one tensor.
func (c *Client) Get(ctx context.Context, cmd Command) (*tensors.Tensor, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	stream, err := c.fc.DoGet(ctx, &flight.Ticket{Ticket: payload})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Op, err)
	}
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("%s: open response stream: %w", cmd.Op, err)
	}
	defer rdr.Release()

	var out *tensors.Tensor
	for rdr.Next() {
		rec := rdr.Record()
		t, _, err := RecordToTensor(rec, rdr.LatestAppMetadata())
		if err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", cmd.Op, err)
		}
		metrics.RemoteBytesReceived.Add(float64(t.Memory()))
		out = t
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Op, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s: empty response stream", cmd.Op)
	}
	return out, nil
}

// Exchange runs a bidirectional operation: the command rides the descriptor,
// the input tensors are streamed, and the response tensors are collected.
// onRecord, when set, observes every response record's metadata envelope as
// it arrives (progress display for long generations).
func (c *Client) Exchange(ctx context.Context, cmd Command, in []*tensors.Tensor, onRecord func(meta *RecordMeta)) ([]*tensors.Tensor, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%s: exchange requires at least one input tensor", cmd.Op)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	stream, err := c.fc.DoExchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Op, err)
	}

	schema, err := SchemaForDType(in[0].DType())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Op, err)
	}
	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	w.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  payload,
	})
	for _, t := range in {
		rec, meta, err := TensorToRecord(t, c.mem)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("%s: encode request: %w", cmd.Op, err)
		}
		err = w.WriteWithAppMetadata(rec, meta)
		rec.Release()
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("%s: send request: %w", cmd.Op, err)
		}
		metrics.RemoteBytesSent.Add(float64(t.Memory()))
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: close request stream: %w", cmd.Op, err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Op, err)
	}

	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, fmt.Errorf("%s: open response stream: %w", cmd.Op, err)
	}
	defer rdr.Release()

	var out []*tensors.Tensor
	for rdr.Next() {
		rec := rdr.Record()
		t, meta, err := RecordToTensor(rec, rdr.LatestAppMetadata())
		if err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", cmd.Op, err)
		}
		metrics.RemoteBytesReceived.Add(float64(t.Memory()))
		if onRecord != nil {
			onRecord(meta)
		}
		out = append(out, t)
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Op, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty response stream", cmd.Op)
	}
	return out, nil
}
