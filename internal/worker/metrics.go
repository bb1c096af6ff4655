package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	stepsTotal           *prometheus.CounterVec
	compressionRatio     prometheus.Histogram
	outputBytes          *prometheus.HistogramVec
	pipelineOutputsTotal prometheus.Counter
	pixelsProcessedTotal prometheus.Counter
	bytesSavedTotal      prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelforge_worker_jobs_total",
			Help: "Total worker jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelforge_worker_job_duration_seconds",
			Help:    "Total processing duration for each worker job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelforge_worker_active_jobs",
			Help: "Current number of active processing jobs in the worker.",
		}),
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelforge_worker_steps_total",
			Help: "Pipeline steps by action and outcome.",
		}, []string{"action", "status"}),
		compressionRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelforge_worker_compression_ratio_percent",
			Help:    "Size reduction of compress outputs relative to the source, in percent.",
			Buckets: []float64{-50, 0, 10, 25, 40, 50, 60, 70, 80, 90},
		}),
		outputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelforge_worker_output_bytes",
			Help:    "Encoded size of step outputs by format.",
			Buckets: prometheus.ExponentialBuckets(4<<10, 4, 8),
		}, []string{"format"}),
		pipelineOutputsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelforge_worker_pipeline_outputs_total",
			Help: "Total transformed outputs emitted by the worker.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelforge_usage_pixels_processed_total",
			Help: "Total pixels processed across all successful jobs.",
		}),
		bytesSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelforge_usage_bytes_saved_total",
			Help: "Total bytes saved by compress steps across successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelforge_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful jobs.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.stepsTotal,
		m.compressionRatio,
		m.outputBytes,
		m.pipelineOutputsTotal,
		m.pixelsProcessedTotal,
		m.bytesSavedTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
