// Package metrics counts pipeline outcomes for one run and can dump them in
// the Prometheus textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	registry *prometheus.Registry

	StudiesTotal  *prometheus.CounterVec
	FramesStored  prometheus.Counter
	FramesFailed  *prometheus.CounterVec
	FramesEncoded prometheus.Counter
	FramesDropped prometheus.Counter
	StageDuration *prometheus.HistogramVec
	ActiveStudies prometheus.Gauge
}

// New registers a fresh set of collectors on a private registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		StudiesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dicom2video_studies_total",
			Help: "Studies processed, by final state",
		}, []string{"state"}),
		FramesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "dicom2video_frames_stored_total",
			Help: "Annotated frames written to the frame store",
		}),
		FramesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dicom2video_frames_failed_total",
			Help: "Frames that failed, by stage",
		}, []string{"stage"}),
		FramesEncoded: f.NewCounter(prometheus.CounterOpts{
			Name: "dicom2video_frames_encoded_total",
			Help: "Frames handed to the video encoder",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "dicom2video_frames_dropped_total",
			Help: "Stored frames left out of the video",
		}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dicom2video_stage_duration_seconds",
			Help:    "Duration of pipeline stages per study",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		ActiveStudies: f.NewGauge(prometheus.GaugeOpts{
			Name: "dicom2video_active_studies",
			Help: "Studies currently in flight",
		}),
	}
}

// WriteTextfile writes every collector to path, node_exporter style.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// The helpers below accept a nil Recorder so callers can leave metrics off.

func (r *Recorder) StudyStarted() {
	if r != nil {
		r.ActiveStudies.Inc()
	}
}

func (r *Recorder) StudyFinished(state string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.ActiveStudies.Dec()
	r.StudiesTotal.WithLabelValues(state).Inc()
	r.StageDuration.WithLabelValues("study").Observe(elapsed.Seconds())
}

func (r *Recorder) FrameStored() {
	if r != nil {
		r.FramesStored.Inc()
	}
}

func (r *Recorder) FrameFailed(stage string) {
	if r != nil {
		r.FramesFailed.WithLabelValues(stage).Inc()
	}
}

func (r *Recorder) VideoAssembled(encoded, dropped int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.FramesEncoded.Add(float64(encoded))
	r.FramesDropped.Add(float64(dropped))
	r.StageDuration.WithLabelValues("video").Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	if r != nil {
		r.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}
