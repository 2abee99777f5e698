package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "photobuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	images        *prom.CounterVec
	variants      prom.Counter
	codecWait     prom.Histogram
	workers       prom.Gauge
	outputBytes   prom.Gauge
}

// NewPrometheusRecorder constructs metrics and registers them with reg (a
// fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		images: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Images handled by the variant pipeline by outcome",
		}, []string{"result"}),
		variants: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "variants_written_total",
			Help:      "Image variants written to the output tree",
		}),
		codecWait: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "codec_wait_seconds",
			Help:      "Time workers spent waiting for the exclusive codec section",
			Buckets:   prom.DefBuckets,
		}),
		workers: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_workers",
			Help:      "Worker count of the last image pipeline run",
		}),
		outputBytes: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "output_image_bytes",
			Help:      "Total size of generated image variants on disk",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.images, pr.variants, pr.codecWait, pr.workers, pr.outputBytes)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) AddImages(result ImageResultLabel, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.images.WithLabelValues(string(result)).Add(float64(n))
}

func (p *PrometheusRecorder) AddVariants(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.variants.Add(float64(n))
}

func (p *PrometheusRecorder) ObserveCodecWait(d time.Duration) {
	if p == nil {
		return
	}
	p.codecWait.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil {
		return
	}
	p.workers.Set(float64(n))
}

func (p *PrometheusRecorder) SetOutputBytes(n int64) {
	if p == nil {
		return
	}
	p.outputBytes.Set(float64(n))
}
