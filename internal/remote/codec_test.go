package remote

import (
	"encoding/json"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

func TestTensorRecordRoundTripFloat32(t *testing.T) {
	in := tensors.FromFlatDataAndDimensions([]float32{1, -2.5, 3.25, 0, 7, -8}, 2, 3)

	rec, meta, err := TensorToRecord(in, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("TensorToRecord: %v", err)
	}
	defer rec.Release()

	out, m, err := RecordToTensor(rec, meta)
	if err != nil {
		t.Fatalf("RecordToTensor: %v", err)
	}
	if out.DType() != dtypes.Float32 {
		t.Errorf("expected float32, got %s", out.DType())
	}
	dims := out.Shape().Dimensions
	if len(dims) != 2 || dims[0] != 2 || dims[1] != 3 {
		t.Fatalf("expected dims [2 3], got %v", dims)
	}
	got := tensors.CopyFlatData[float32](out)
	want := []float32{1, -2.5, 3.25, 0, 7, -8}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if m.DType != "float32" {
		t.Errorf("expected metadata dtype float32, got %q", m.DType)
	}
}

func TestTensorRecordRoundTripUint8(t *testing.T) {
	in := tensors.FromFlatDataAndDimensions([]uint8{0, 127, 255, 1}, 1, 2, 2)

	rec, meta, err := TensorToRecord(in, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("TensorToRecord: %v", err)
	}
	defer rec.Release()

	out, _, err := RecordToTensor(rec, meta)
	if err != nil {
		t.Fatalf("RecordToTensor: %v", err)
	}
	if out.DType() != dtypes.Uint8 {
		t.Errorf("expected uint8, got %s", out.DType())
	}
	got := tensors.CopyFlatData[uint8](out)
	want := []uint8{0, 127, 255, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestRecordToTensorWidensFloat16(t *testing.T) {
	values := []float32{0.5, -1.5, 2}
	bits := make([]uint16, len(values))
	for i, v := range values {
		bits[i] = float16.Fromfloat32(v).Bits()
	}

	schema := arrow.NewSchema([]arrow.Field{{Name: "data", Type: arrow.PrimitiveTypes.Uint16}}, nil)
	b := array.NewUint16Builder(memory.DefaultAllocator)
	defer b.Release()
	b.AppendValues(bits, nil)
	arr := b.NewArray()
	defer arr.Release()
	rec := array.NewRecord(schema, []arrow.Array{arr}, int64(len(bits)))
	defer rec.Release()

	meta, _ := json.Marshal(RecordMeta{Dims: []int{3}, DType: "float16"})
	out, _, err := RecordToTensor(rec, meta)
	if err != nil {
		t.Fatalf("RecordToTensor: %v", err)
	}
	if out.DType() != dtypes.Float32 {
		t.Fatalf("expected widened float32, got %s", out.DType())
	}
	got := tensors.CopyFlatData[float32](out)
	for i, v := range values {
		if got[i] != v {
			t.Errorf("value %d: expected %v, got %v", i, v, got[i])
		}
	}
}

func TestRecordToTensorRejectsBadEnvelopes(t *testing.T) {
	in := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	rec, _, err := TensorToRecord(in, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("TensorToRecord: %v", err)
	}
	defer rec.Release()

	tests := []struct {
		name string
		meta []byte
	}{
		{"missing metadata", nil},
		{"malformed json", []byte("{")},
		{"missing dims", []byte(`{"dtype":"float32"}`)},
		{"negative dim", []byte(`{"dims":[2,-2]}`)},
		{"size mismatch", []byte(`{"dims":[3,3]}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := RecordToTensor(rec, tt.meta); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSchemaForDType(t *testing.T) {
	if _, err := SchemaForDType(dtypes.Float32); err != nil {
		t.Errorf("float32: %v", err)
	}
	if _, err := SchemaForDType(dtypes.Uint8); err != nil {
		t.Errorf("uint8: %v", err)
	}
	if _, err := SchemaForDType(dtypes.Int64); err == nil {
		t.Error("expected error for unsupported dtype")
	}
}
