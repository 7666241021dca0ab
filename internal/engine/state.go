package engine

import (
	"time"

	"github.com/ivlev/dicom2video/internal/metadata"
	"github.com/ivlev/dicom2video/internal/scan"
	"github.com/ivlev/dicom2video/internal/store"
	"github.com/ivlev/dicom2video/internal/video"
)

// State is where a study stopped.
type State int

const (
	Scanned State = iota
	MetadataRead
	FramesWritten
	VideoAssembled
	SkippedNoFrames
	Failed
)

func (s State) String() string {
	switch s {
	case Scanned:
		return "scanned"
	case MetadataRead:
		return "metadata_read"
	case FramesWritten:
		return "frames_written"
	case VideoAssembled:
		return "video_assembled"
	case SkippedNoFrames:
		return "skipped_no_frames"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome summarizes one study.
type Outcome struct {
	Study scan.Study
	State State
	// Frames is the count the decoder reported.
	Frames int
	Stored int
	// FailedFrames are 0-based decoder indices skipped under the skip policy.
	FailedFrames []int
	Video        string
	Encoded      int
	Dropped      int
	Err          error
	Duration     time.Duration

	attrs     metadata.AttributeSet
	inventory []store.Entry
	assembly  video.Result
}
