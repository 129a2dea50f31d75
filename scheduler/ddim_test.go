package scheduler

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/types/tensors"
)

func newTestDDIM() *DDIM {
	return NewDDIM(1000, 0.00085, 0.012)
}

func TestSetTimestepsDescending(t *testing.T) {
	tests := []struct {
		name     string
		numSteps int
	}{
		{"25 steps", 25},
		{"50 steps", 50},
		{"single step", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestDDIM()
			ts := s.SetTimesteps(tt.numSteps)
			if len(ts) != tt.numSteps {
				t.Fatalf("expected %d timesteps, got %d", tt.numSteps, len(ts))
			}
			for i := 1; i < len(ts); i++ {
				if ts[i] >= ts[i-1] {
					t.Errorf("timesteps not strictly decreasing at %d: %d >= %d", i, ts[i], ts[i-1])
				}
			}
			if last := ts[len(ts)-1]; last != 1 {
				t.Errorf("expected final timestep 1, got %d", last)
			}
			if first := ts[0]; first >= 1000 {
				t.Errorf("first timestep %d out of training range", first)
			}
		})
	}
}

func TestAlphasCumprodDecreasing(t *testing.T) {
	s := newTestDDIM()
	prev := 1.0
	for i, a := range s.alphasCumprod {
		if a <= 0 || a >= 1 {
			t.Fatalf("alphasCumprod[%d] = %v, out of (0, 1)", i, a)
		}
		if a >= prev {
			t.Fatalf("alphasCumprod not decreasing at %d: %v >= %v", i, a, prev)
		}
		prev = a
	}
}

func TestStepPreservesShape(t *testing.T) {
	s := newTestDDIM()
	ts := s.SetTimesteps(25)

	sample := tensors.FromFlatDataAndDimensions([]float32{0.5, -0.3, 0.8, 0.1}, 1, 4)
	noise := tensors.FromFlatDataAndDimensions([]float32{0.1, 0.2, -0.1, 0}, 1, 4)

	out := s.Step(noise, ts[0], sample)
	dims := out.Shape().Dimensions
	if len(dims) != 2 || dims[0] != 1 || dims[1] != 4 {
		t.Fatalf("expected shape [1 4], got %v", dims)
	}
}

func TestStepZeroNoisePredictsScaledSample(t *testing.T) {
	s := newTestDDIM()
	ts := s.SetTimesteps(25)
	timestep := ts[0]

	sample := tensors.FromFlatDataAndDimensions([]float32{1, -1}, 2)
	noise := tensors.FromFlatDataAndDimensions([]float32{0, 0}, 2)

	// With zero predicted noise, pred_x0 = sample / sqrt(alpha_t) and the
	// update reduces to scaling by sqrt(alpha_prev / alpha_t).
	stepRatio := 1000 / 25
	alphaT := s.alphasCumprod[timestep]
	alphaPrev := s.alphasCumprod[timestep-stepRatio]
	want := float32(math.Sqrt(alphaPrev / alphaT))

	out := tensors.CopyFlatData[float32](s.Step(noise, timestep, sample))
	if diff := math.Abs(float64(out[0] - want)); diff > 1e-5 {
		t.Errorf("expected %v, got %v", want, out[0])
	}
	if diff := math.Abs(float64(out[1] + want)); diff > 1e-5 {
		t.Errorf("expected %v, got %v", -want, out[1])
	}
}

func TestStepFinalTimestepUsesFirstAlpha(t *testing.T) {
	s := newTestDDIM()
	ts := s.SetTimesteps(25)
	final := ts[len(ts)-1]

	sample := tensors.FromFlatDataAndDimensions([]float32{0.2}, 1)
	noise := tensors.FromFlatDataAndDimensions([]float32{0.05}, 1)

	// The final step's previous timestep is negative; stepping must not panic
	// and must return a finite value.
	out := tensors.CopyFlatData[float32](s.Step(noise, final, sample))
	if math.IsNaN(float64(out[0])) || math.IsInf(float64(out[0]), 0) {
		t.Fatalf("expected finite output, got %v", out[0])
	}
}

func TestDescribe(t *testing.T) {
	s := NewDDIM(1000, 0.00085, 0.012)
	d := s.Describe()
	if d["type"] != "ddim" {
		t.Errorf("expected type ddim, got %v", d["type"])
	}
	if d["num_train_timesteps"] != 1000 {
		t.Errorf("expected 1000 train timesteps, got %v", d["num_train_timesteps"])
	}
}
