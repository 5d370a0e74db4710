package transcode

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors. A nil *Metrics is valid and records
// nothing, so callers never have to check.
type Metrics struct {
	ChunksDemuxed  prometheus.Counter
	ConfigChanges  *prometheus.CounterVec
	FramesDecoded  prometheus.Counter
	FramesEncoded  prometheus.Counter
	ChunksEncoded  prometheus.Counter
	FramesScaled   prometheus.Counter
	PreviewFrames  prometheus.Counter
	RenderFailures prometheus.Counter
	MuxBytes       prometheus.Counter
	SegmentsTotal  prometheus.Counter
	UploadBytes    prometheus.Counter
	UploadDuration prometheus.Histogram
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	FramesInFlight prometheus.Gauge
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChunksDemuxed: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_chunks_demuxed_total",
			Help: "Encoded chunks read from the input container",
		}),
		ConfigChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcode_config_changes_total",
			Help: "Codec configurations applied, by stage",
		}, []string{"stage"}),
		FramesDecoded: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_frames_decoded_total",
			Help: "Frames produced by the input decoder",
		}),
		FramesEncoded: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_frames_encoded_total",
			Help: "Frames handed to the encoder",
		}),
		ChunksEncoded: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_chunks_encoded_total",
			Help: "Data chunks produced by the encoder",
		}),
		FramesScaled: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_frames_scaled_total",
			Help: "Frames resampled to the target size before encoding",
		}),
		PreviewFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_preview_frames_total",
			Help: "Frames handed to the preview renderer",
		}),
		RenderFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_render_failures_total",
			Help: "Preview render callbacks that failed or panicked",
		}),
		MuxBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_mux_bytes_total",
			Help: "Container bytes produced by the muxer",
		}),
		SegmentsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_segments_uploaded_total",
			Help: "Segments delivered to the uploader",
		}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "transcode_upload_bytes_total",
			Help: "Bytes delivered to the uploader",
		}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcode_upload_duration_seconds",
			Help:    "Time spent uploading one segment",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "transcode_runs_total",
			Help: "Pipeline runs by outcome and failing stage",
		}, []string{"outcome", "stage"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcode_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		FramesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "transcode_frames_in_flight",
			Help: "Decoded frames currently held by the pipeline",
		}),
	}
}

func (m *Metrics) chunkDemuxed() {
	if m != nil {
		m.ChunksDemuxed.Inc()
	}
}

func (m *Metrics) configChanged(stage Stage) {
	if m != nil {
		m.ConfigChanges.WithLabelValues(stage.String()).Inc()
	}
}

func (m *Metrics) frameDecoded() {
	if m != nil {
		m.FramesDecoded.Inc()
	}
}

func (m *Metrics) frameEncoded(scaled bool) {
	if m == nil {
		return
	}
	m.FramesEncoded.Inc()
	if scaled {
		m.FramesScaled.Inc()
	}
}

func (m *Metrics) chunkEncoded() {
	if m != nil {
		m.ChunksEncoded.Inc()
	}
}

func (m *Metrics) previewRendered(failed bool) {
	if m == nil {
		return
	}
	m.PreviewFrames.Inc()
	if failed {
		m.RenderFailures.Inc()
	}
}

func (m *Metrics) muxed(n int) {
	if m != nil {
		m.MuxBytes.Add(float64(n))
	}
}

func (m *Metrics) segmentUploaded(size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SegmentsTotal.Inc()
	m.UploadBytes.Add(float64(size))
	m.UploadDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) framesInFlight(n int) {
	if m != nil {
		m.FramesInFlight.Set(float64(n))
	}
}

func (m *Metrics) runFinished(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.RunsTotal.WithLabelValues("success", "").Inc()
		return
	}
	stage := "unknown"
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage.String()
	}
	m.RunsTotal.WithLabelValues(errorKind(err), stage).Inc()
}
