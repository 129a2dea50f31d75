package remote

import (
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// Tensors cross the Flight boundary as single-column records holding the
// flattened values. The IPC schema fixes the element type for a stream; the
// original dimensions (and wire dtype) ride in per-record application
// metadata, so one stream can carry tensors of different shapes. Half
// precision travels as uint16 bits and is widened to float32 on receipt.

// Tags carried by generation streams.
const (
	TagChunk = "chunk"
	TagFinal = "final"
)

// RecordMeta is the per-record application metadata envelope.
type RecordMeta struct {
	Dims  []int  `json:"dims"`
	DType string `json:"dtype,omitempty"`
	// Tag distinguishes streamed partial results ("chunk") from the final
	// tensor ("final") in generation streams.
	Tag string `json:"tag,omitempty"`
}

// SchemaForDType returns the single-column stream schema for an element type.
func SchemaForDType(dt dtypes.DType) (*arrow.Schema, error) {
	var at arrow.DataType
	switch dt {
	case dtypes.Float32:
		at = arrow.PrimitiveTypes.Float32
	case dtypes.Uint8:
		at = arrow.PrimitiveTypes.Uint8
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %s", dt)
	}
	return arrow.NewSchema([]arrow.Field{{Name: "data", Type: at}}, nil), nil
}

// TensorToRecord flattens a tensor into a single-column record plus its
// metadata envelope. The caller owns the returned record and must Release it.
func TensorToRecord(t *tensors.Tensor, mem memory.Allocator) (arrow.Record, []byte, error) {
	schema, err := SchemaForDType(t.DType())
	if err != nil {
		return nil, nil, err
	}
	meta, err := json.Marshal(RecordMeta{Dims: t.Shape().Dimensions, DType: t.DType().String()})
	if err != nil {
		return nil, nil, err
	}

	var arr arrow.Array
	switch t.DType() {
	case dtypes.Float32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.AppendValues(tensors.CopyFlatData[float32](t), nil)
		arr = b.NewArray()
	case dtypes.Uint8:
		b := array.NewUint8Builder(mem)
		defer b.Release()
		b.AppendValues(tensors.CopyFlatData[uint8](t), nil)
		arr = b.NewArray()
	}
	defer arr.Release()
	return array.NewRecord(schema, []arrow.Array{arr}, int64(t.Size())), meta, nil
}

// RecordToTensor rebuilds a tensor from a single-column record and its
// metadata envelope.
func RecordToTensor(rec arrow.Record, appMeta []byte) (*tensors.Tensor, *RecordMeta, error) {
	var meta RecordMeta
	if len(appMeta) == 0 {
		return nil, nil, fmt.Errorf("tensor record missing metadata envelope")
	}
	if err := json.Unmarshal(appMeta, &meta); err != nil {
		return nil, nil, fmt.Errorf("parse tensor record metadata: %w", err)
	}
	if len(meta.Dims) == 0 {
		return nil, nil, fmt.Errorf("tensor record metadata missing dims")
	}
	size := 1
	for _, d := range meta.Dims {
		if d < 1 {
			return nil, nil, fmt.Errorf("invalid tensor dims %v", meta.Dims)
		}
		size *= d
	}
	if rec.NumCols() != 1 {
		return nil, nil, fmt.Errorf("expected single-column tensor record, got %d columns", rec.NumCols())
	}
	if int(rec.NumRows()) != size {
		return nil, nil, fmt.Errorf("tensor payload has %d values, dims %v require %d", rec.NumRows(), meta.Dims, size)
	}

	switch col := rec.Column(0).(type) {
	case *array.Float32:
		flat := make([]float32, col.Len())
		copy(flat, col.Float32Values())
		return tensors.FromFlatDataAndDimensions(flat, meta.Dims...), &meta, nil

	case *array.Uint8:
		flat := make([]uint8, col.Len())
		copy(flat, col.Uint8Values())
		return tensors.FromFlatDataAndDimensions(flat, meta.Dims...), &meta, nil

	case *array.Uint16:
		if meta.DType != "float16" {
			return nil, nil, fmt.Errorf("uint16 tensor payload with unexpected dtype %q", meta.DType)
		}
		bits := col.Uint16Values()
		flat := make([]float32, len(bits))
		for i, b := range bits {
			flat[i] = float16.Frombits(b).Float32()
		}
		return tensors.FromFlatDataAndDimensions(flat, meta.Dims...), &meta, nil

	default:
		return nil, nil, fmt.Errorf("unsupported tensor payload column %T", col)
	}
}
