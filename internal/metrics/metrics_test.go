package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.FramesStored.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.FramesStored))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FramesStored))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.StudiesTotal.WithLabelValues("video_assembled").Inc()
	r.FramesFailed.WithLabelValues("decode").Add(2)

	path := filepath.Join(t.TempDir(), "dicom2video.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dicom2video_studies_total{state="video_assembled"} 1`)
	assert.Contains(t, string(data), `dicom2video_frames_failed_total{stage="decode"} 2`)
}

func TestHelpers(t *testing.T) {
	r := New()
	r.StudyStarted()
	r.FrameStored()
	r.FrameFailed("store")
	r.VideoAssembled(4, 1, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ActiveStudies))

	r.StudyFinished("video_assembled", 2*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ActiveStudies))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StudiesTotal.WithLabelValues("video_assembled")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.FramesEncoded))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FramesDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FramesFailed.WithLabelValues("store")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.StudyStarted()
		r.FrameStored()
		r.FrameFailed("decode")
		r.VideoAssembled(1, 0, time.Millisecond)
		r.ObserveStage("frames", time.Millisecond)
		r.StudyFinished("error", time.Millisecond)
	})
}
