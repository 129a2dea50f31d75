// Package scheduler provides sampling schedulers for the generation
// pipeline. The pipeline treats schedulers as opaque: they are installed on
// the transformer, which drives them through the inner denoising loop.
package scheduler

import (
	"math"

	"github.com/gomlx/gomlx/types/tensors"
)

// DDIM is a deterministic DDIM sampler (eta=0) over a scaled-linear beta
// schedule. It is the default scheduler for single-host setups; remote
// deployments may substitute their own via Describe.
type DDIM struct {
	alphasCumprod     []float64
	numTrainTimesteps int
	numInferenceSteps int
	betaStart         float64
	betaEnd           float64
}

// NewDDIM builds the scheduler. Typical configuration: 1000 training
// timesteps, beta in [0.00085, 0.012].
func NewDDIM(numTrainTimesteps int, betaStart, betaEnd float64) *DDIM {
	betas := make([]float64, numTrainTimesteps)
	sqrtStart := math.Sqrt(betaStart)
	sqrtEnd := math.Sqrt(betaEnd)
	for i := range betas {
		// scaled_linear: betas = linspace(sqrt(start), sqrt(end), steps)^2
		b := sqrtStart + float64(i)/float64(numTrainTimesteps-1)*(sqrtEnd-sqrtStart)
		betas[i] = b * b
	}

	alphasCumprod := make([]float64, numTrainTimesteps)
	prod := 1.0
	for i := range betas {
		prod *= 1.0 - betas[i]
		alphasCumprod[i] = prod
	}

	return &DDIM{
		alphasCumprod:     alphasCumprod,
		numTrainTimesteps: numTrainTimesteps,
		betaStart:         betaStart,
		betaEnd:           betaEnd,
	}
}

// SetTimesteps derives the inference timestep sequence, largest first, with
// a one-step offset so the final step lands on timestep 1.
func (s *DDIM) SetTimesteps(numSteps int) []int {
	s.numInferenceSteps = numSteps
	stepRatio := s.numTrainTimesteps / numSteps
	timesteps := make([]int, numSteps)
	for i := 0; i < numSteps; i++ {
		timesteps[i] = (numSteps-1-i)*stepRatio + 1
	}
	return timesteps
}

// Step performs one deterministic denoising update:
//
//	pred_x0     = (sample - sqrt(1-alpha_t) * model_output) / sqrt(alpha_t)
//	prev_sample = sqrt(alpha_prev) * pred_x0 + sqrt(1-alpha_prev) * model_output
func (s *DDIM) Step(modelOutput *tensors.Tensor, timestep int, sample *tensors.Tensor) *tensors.Tensor {
	stepRatio := s.numTrainTimesteps / s.numInferenceSteps
	prevTimestep := timestep - stepRatio

	alphaT := s.alphasCumprod[timestep]
	alphaPrev := s.alphasCumprod[0]
	if prevTimestep >= 0 {
		alphaPrev = s.alphasCumprod[prevTimestep]
	}

	sqrtAlphaT := float32(math.Sqrt(alphaT))
	sqrtOneMinusAlphaT := float32(math.Sqrt(1.0 - alphaT))
	sqrtAlphaPrev := float32(math.Sqrt(alphaPrev))
	sqrtOneMinusAlphaPrev := float32(math.Sqrt(1.0 - alphaPrev))

	noise := tensors.CopyFlatData[float32](modelOutput)
	cur := tensors.CopyFlatData[float32](sample)
	out := make([]float32, len(cur))
	for i := range cur {
		predX0 := (cur[i] - sqrtOneMinusAlphaT*noise[i]) / sqrtAlphaT
		out[i] = sqrtAlphaPrev*predX0 + sqrtOneMinusAlphaPrev*noise[i]
	}
	return tensors.FromFlatDataAndDimensions(out, sample.Shape().Dimensions...)
}

// Describe reports the scheduler configuration, used when a remote
// transformer reconstructs the scheduler server-side.
func (s *DDIM) Describe() map[string]any {
	return map[string]any{
		"type":                "ddim",
		"num_train_timesteps": s.numTrainTimesteps,
		"beta_start":          s.betaStart,
		"beta_end":            s.betaEnd,
	}
}
