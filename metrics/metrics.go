package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds counters for the capture and inference pipeline.
type Metrics struct {
	// Frame sampling
	FramesSampled atomic.Uint64
	FrameErrors   atomic.Uint64

	// GPS sampling
	GPSFixes  atomic.Uint64
	GPSErrors atomic.Uint64

	// Inference
	InferenceRequests  atomic.Uint64
	InferenceFailures  atomic.Uint64
	InferenceLatencyMs atomic.Uint64 // last observed latency

	// Store
	DetectionsStored atomic.Uint64

	// Sessions
	SessionsStarted atomic.Uint64
	ActiveSessions  atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"inspection_frames_sampled_total", "Total frames sampled from the video source",
			func() float64 { return float64(m.FramesSampled.Load()) }},
		{"inspection_frame_errors_total", "Total frame capture or submission errors",
			func() float64 { return float64(m.FrameErrors.Load()) }},
		{"inspection_gps_fixes_total", "Total successful GPS fixes",
			func() float64 { return float64(m.GPSFixes.Load()) }},
		{"inspection_gps_errors_total", "Total failed GPS acquisitions",
			func() float64 { return float64(m.GPSErrors.Load()) }},
		{"inspection_inference_requests_total", "Total requests sent to the detection service",
			func() float64 { return float64(m.InferenceRequests.Load()) }},
		{"inspection_inference_failures_total", "Total detection service failures",
			func() float64 { return float64(m.InferenceFailures.Load()) }},
		{"inspection_inference_latency_ms", "Last observed detection service latency in ms",
			func() float64 { return float64(m.InferenceLatencyMs.Load()) }},
		{"inspection_detections_stored_total", "Total detections appended to the store",
			func() float64 { return float64(m.DetectionsStored.Load()) }},
		{"inspection_sessions_started_total", "Total capture sessions started",
			func() float64 { return float64(m.SessionsStarted.Load()) }},
		{"inspection_sessions_active", "Capture sessions currently recording or paused",
			func() float64 { return float64(m.ActiveSessions.Load()) }},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.fn,
		))
	}
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
