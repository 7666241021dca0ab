package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/ivlev/dicom2video/internal/apperr"
	"github.com/ivlev/dicom2video/internal/system"
)

// Encoder opens one video stream per output file.
type Encoder interface {
	CreateStream(ctx context.Context, path string, width, height int) (Stream, error)
}

// Stream accepts frames with strictly increasing presentation timestamps.
type Stream interface {
	Encode(img image.Image, ts time.Duration) error
	Close() error
}

// WithStream creates a stream, hands it to fn and closes it on every path out.
// A close failure is joined onto fn's error.
func WithStream(ctx context.Context, enc Encoder, path string, width, height int, fn func(Stream) error) (err error) {
	s, err := enc.CreateStream(ctx, path, width, height)
	if err != nil {
		return apperr.New(apperr.Encoder, "", fmt.Errorf("create stream: %w", err))
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, apperr.New(apperr.Encoder, "", fmt.Errorf("finalize stream: %w", cerr)))
		}
	}()
	return fn(s)
}

// FrameInterval is the integer-millisecond spacing between timestamps.
func FrameInterval(fps int) time.Duration {
	return time.Duration(1000/fps) * time.Millisecond
}

// Timestamp of inventory position k. The interval is truncated once and then
// accumulated, so rates that do not divide 1000 drift slightly.
func Timestamp(k, fps int) time.Duration {
	return time.Duration(k) * FrameInterval(fps)
}

type FFmpegEncoder struct {
	Binary    string
	Codec     string
	Quality   int
	FrameRate int
}

func (e *FFmpegEncoder) CreateStream(ctx context.Context, path string, width, height int) (Stream, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid stream size %dx%d", width, height)
	}
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, e.buildFFmpegArgs(width, height, path)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	return &ffmpegStream{
		rawStream: newRawStream(stdin, width, height, FrameInterval(e.FrameRate)),
		cmd:       cmd,
		stdin:     stdin,
		out:       &out,
	}, nil
}

func (e *FFmpegEncoder) buildFFmpegArgs(width, height int, videoPath string) []string {
	args := []string{
		"-y",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", e.FrameRate),
		"-i", "-",
		// yuv420p needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-pix_fmt", "yuv420p",
		"-c:v", e.Codec,
	}
	args = append(args, QualityArgs(e.Codec, e.Quality)...)
	args = append(args, videoPath)
	return args
}

// DefaultQuality is the per-encoder quality used when none is configured.
func DefaultQuality(codec string) int {
	switch codec {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

func QualityArgs(codec string, quality int) []string {
	if quality <= 0 {
		quality = DefaultQuality(codec)
	}
	switch codec {
	case "h264_videotoolbox":
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

type ffmpegStream struct {
	*rawStream
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bytes.Buffer
	closed bool
}

func (s *ffmpegStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w, output: %s", err, strings.TrimSpace(s.out.String()))
	}
	return nil
}

// rawStream writes constant-rate RGBA frames. A timestamp that skips slots is
// padded by repeating the last written picture so later frames keep their
// position on the timeline.
type rawStream struct {
	w             io.Writer
	width, height int
	interval      time.Duration
	next          int64
	last          []byte
}

func newRawStream(w io.Writer, width, height int, interval time.Duration) *rawStream {
	return &rawStream{w: w, width: width, height: height, interval: interval}
}

func (s *rawStream) Encode(img image.Image, ts time.Duration) error {
	b := img.Bounds()
	if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("frame %dx%d does not match stream %dx%d", b.Dx(), b.Dy(), s.width, s.height)
	}
	if ts < 0 || ts%s.interval != 0 {
		return fmt.Errorf("timestamp %v is not a multiple of %v", ts, s.interval)
	}
	slot := int64(ts / s.interval)
	if slot < s.next {
		return fmt.Errorf("timestamp %v is not after the previous frame", ts)
	}

	if slot > s.next {
		if s.last == nil {
			s.last = make([]byte, s.width*s.height*4)
		}
		for ; s.next < slot; s.next++ {
			if _, err := s.w.Write(s.last); err != nil {
				return err
			}
		}
	}

	rgba := system.GetImage(image.Rect(0, 0, s.width, s.height))
	defer system.PutImage(rgba)
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	if _, err := s.w.Write(rgba.Pix); err != nil {
		return err
	}
	s.last = append(s.last[:0], rgba.Pix...)
	s.next = slot + 1
	return nil
}
