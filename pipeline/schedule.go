package pipeline

import (
	"fmt"
	"math"
)

// RevealSchedule derives the per-step patch reveal counts for masked
// autoregressive generation. It evaluates a cosine mask ratio at
// numInferenceSteps+1 points, scales to the patch count, and returns the
// consecutive differences: few patches revealed in early steps, more as the
// schedule approaches the final step.
//
// The counts are non-negative and sum exactly to numPatches (the cosine
// endpoints pin the mask ratio at 1 and 0).
func RevealSchedule(numInferenceSteps, numPatches int) ([]int, error) {
	if numInferenceSteps < 1 {
		return nil, fmt.Errorf("invalid num_inference_steps: %d (must be >= 1)", numInferenceSteps)
	}
	if numPatches < 1 {
		return nil, fmt.Errorf("invalid patch count: %d (must be >= 1)", numPatches)
	}

	maskLength := make([]int, numInferenceSteps+1)
	for i := 0; i <= numInferenceSteps; i++ {
		ratio := math.Cos(0.5 * math.Pi * float64(i) / float64(numInferenceSteps))
		maskLength[i] = int(math.Round(ratio * float64(numPatches)))
	}

	counts := make([]int, numInferenceSteps)
	for i := 0; i < numInferenceSteps; i++ {
		counts[i] = maskLength[i] - maskLength[i+1]
	}
	return counts, nil
}
