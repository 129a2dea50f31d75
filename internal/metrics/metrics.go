package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novagen_generations_total",
		Help: "The total number of generation calls, by mode (image or video)",
	}, []string{"mode"})

	GenerationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novagen_generation_errors_total",
		Help: "Total number of failed generation calls, by collaborator",
	}, []string{"collaborator"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "novagen_generation_duration_seconds",
		Help:    "End-to-end duration of a generation call",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	AutoregressiveSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "novagen_autoregressive_steps",
		Help:    "Number of autoregressive unmasking steps per call",
		Buckets: []float64{4, 8, 16, 32, 64, 128, 256},
	})

	DiffusionSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "novagen_diffusion_steps",
		Help:    "Number of denoising steps per autoregressive step",
		Buckets: []float64{5, 10, 25, 50, 100},
	})

	PromptBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "novagen_prompt_batch_size",
		Help:    "Encoded prompt batch size, after guidance duplication",
		Buckets: []float64{1, 2, 4, 8, 16, 32},
	})

	LatentFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "novagen_latent_frames",
		Help:    "Number of latent frames requested per call",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	CollaboratorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "novagen_collaborator_duration_seconds",
		Help:    "Duration of individual collaborator calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"collaborator", "op"})

	RemoteBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novagen_remote_bytes_sent_total",
		Help: "Bytes of tensor payload sent to remote collaborators",
	})

	RemoteBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novagen_remote_bytes_received_total",
		Help: "Bytes of tensor payload received from remote collaborators",
	})
)

// RecordGeneration records a completed generation call.
func RecordGeneration(mode string, duration time.Duration) {
	GenerationsTotal.WithLabelValues(mode).Inc()
	GenerationDuration.Observe(duration.Seconds())
}

// RecordGenerationError records a failed generation call attributed to a collaborator.
func RecordGenerationError(collaborator string) {
	GenerationErrors.WithLabelValues(collaborator).Inc()
}

// RecordSchedule records the per-call sampling schedule parameters.
func RecordSchedule(inferenceSteps, diffusionSteps, latentFrames int) {
	AutoregressiveSteps.Observe(float64(inferenceSteps))
	DiffusionSteps.Observe(float64(diffusionSteps))
	LatentFrames.Observe(float64(latentFrames))
}

// RecordPromptBatch records the encoded prompt batch size.
func RecordPromptBatch(size int) {
	PromptBatchSize.Observe(float64(size))
}

// RecordCollaboratorCall records the latency of a single collaborator operation.
func RecordCollaboratorCall(collaborator, op string, duration time.Duration) {
	CollaboratorDuration.WithLabelValues(collaborator, op).Observe(duration.Seconds())
}
