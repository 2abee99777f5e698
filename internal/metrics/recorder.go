package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// ImageResultLabel classifies per-image pipeline outcomes.
type ImageResultLabel string

const (
	ImageProcessed ImageResultLabel = "processed"
	ImageSkipped   ImageResultLabel = "skipped"
	ImageFailed    ImageResultLabel = "failed"
)

// Recorder defines observability hooks for stage and image pipeline metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	AddImages(result ImageResultLabel, n int)
	AddVariants(n int)
	ObserveCodecWait(d time.Duration)
	SetWorkers(n int)
	SetOutputBytes(n int64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) AddImages(ImageResultLabel, int)            {}
func (NoopRecorder) AddVariants(int)                            {}
func (NoopRecorder) ObserveCodecWait(time.Duration)             {}
func (NoopRecorder) SetWorkers(int)                             {}
func (NoopRecorder) SetOutputBytes(int64)                       {}
