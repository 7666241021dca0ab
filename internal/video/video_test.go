package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/dicom2video/internal/apperr"
	"github.com/ivlev/dicom2video/internal/config"
	"github.com/ivlev/dicom2video/internal/source"
)

type fakeStream struct {
	enc    *fakeEncoder
	closed int
}

func (s *fakeStream) Encode(img image.Image, ts time.Duration) error {
	if s.enc.failEncodeAt >= 0 && len(s.enc.timestamps) == s.enc.failEncodeAt {
		return errors.New("encoder broke")
	}
	s.enc.sizes = append(s.enc.sizes, img.Bounds().Size())
	s.enc.timestamps = append(s.enc.timestamps, ts)
	return nil
}

func (s *fakeStream) Close() error {
	s.closed++
	return s.enc.closeErr
}

type fakeEncoder struct {
	created      int
	width        int
	height       int
	stream       *fakeStream
	timestamps   []time.Duration
	sizes        []image.Point
	createErr    error
	closeErr     error
	failEncodeAt int
}

func newFakeEncoder() *fakeEncoder { return &fakeEncoder{failEncodeAt: -1} }

func (e *fakeEncoder) CreateStream(_ context.Context, path string, w, h int) (Stream, error) {
	if e.createErr != nil {
		return nil, e.createErr
	}
	e.created++
	e.width, e.height = w, h
	e.stream = &fakeStream{enc: e}
	return e.stream, os.WriteFile(path, []byte("partial"), 0o644)
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// frames writes one PNG per size; a zero size writes a corrupt file.
func frames(t *testing.T, sizes ...image.Point) *source.ImageSource {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i, sz := range sizes {
		p := filepath.Join(dir, "frame_"+string(rune('1'+i))+".png")
		if sz == (image.Point{}) {
			require.NoError(t, os.WriteFile(p, []byte("garbage"), 0o644))
		} else {
			writePNG(t, p, sz.X, sz.Y)
		}
		paths = append(paths, p)
	}
	return source.NewImageSource(paths)
}

func assembler(enc Encoder, policy config.FailurePolicy) *Assembler {
	return &Assembler{
		Encoder:   enc,
		FrameRate: 25,
		Policy:    policy,
		Geometry:  config.GeometryResample,
	}
}

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, x := range v {
		out[i] = time.Duration(x) * time.Millisecond
	}
	return out
}

func TestTimestampsAt25FPS(t *testing.T) {
	for k, want := range ms(0, 40, 80, 120, 160) {
		assert.Equal(t, want, Timestamp(k, 25))
	}
	assert.Equal(t, 40*time.Millisecond, FrameInterval(25))
}

func TestTimestampsAccumulateTruncatedInterval(t *testing.T) {
	// 1000/30 truncates to 33 ms; position 30 lands at 990 ms, not 1000 ms
	assert.Equal(t, 33*time.Millisecond, FrameInterval(30))
	assert.Equal(t, 990*time.Millisecond, Timestamp(30, 30))
}

func TestAssembleEncodesInOrder(t *testing.T) {
	enc := newFakeEncoder()
	target := filepath.Join(t.TempDir(), "X.mp4")
	sz := image.Pt(100, 150)

	res, err := assembler(enc, config.PolicySkip).Assemble(context.Background(), frames(t, sz, sz, sz), target, "X")

	require.NoError(t, err)
	assert.Equal(t, 1, enc.created)
	assert.Equal(t, 1, enc.stream.closed)
	assert.Equal(t, 100, enc.width)
	assert.Equal(t, 150, enc.height)
	assert.Equal(t, ms(0, 40, 80), enc.timestamps)
	assert.Len(t, res.Encoded, 3)
	assert.Empty(t, res.Dropped)
	assert.FileExists(t, target)
}

func TestAssembleEmptyInventoryIsNoop(t *testing.T) {
	enc := newFakeEncoder()
	target := filepath.Join(t.TempDir(), "X.mp4")

	res, err := assembler(enc, config.PolicyAbort).Assemble(context.Background(), source.NewImageSource(nil), target, "X")

	require.NoError(t, err)
	assert.Equal(t, 0, enc.created)
	assert.Empty(t, res.Encoded)
	assert.NoFileExists(t, target)
}

func TestAssembleUnreadableReferenceNeverOpensStream(t *testing.T) {
	enc := newFakeEncoder()
	target := filepath.Join(t.TempDir(), "X.mp4")

	_, err := assembler(enc, config.PolicySkip).Assemble(context.Background(), frames(t, image.Point{}, image.Pt(8, 8)), target, "X")

	require.Error(t, err)
	assert.Equal(t, apperr.VideoRead, apperr.KindOf(err))
	assert.Equal(t, 0, enc.created)
	assert.NoFileExists(t, target)
}

func TestAssembleTruncatedReferenceNeverOpensStream(t *testing.T) {
	// the header survives, so only a full decode notices the missing scan data
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 64)), nil))
	dir := t.TempDir()
	first := filepath.Join(dir, "frame_1.jpg")
	require.NoError(t, os.WriteFile(first, buf.Bytes()[:buf.Len()/2], 0o644))
	_, err := jpeg.DecodeConfig(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	require.NoError(t, err)

	second := filepath.Join(dir, "frame_2.png")
	writePNG(t, second, 64, 64)

	enc := newFakeEncoder()
	target := filepath.Join(dir, "X.mp4")
	_, err = assembler(enc, config.PolicySkip).Assemble(context.Background(), source.NewImageSource([]string{first, second}), target, "X")

	require.Error(t, err)
	assert.Equal(t, apperr.VideoRead, apperr.KindOf(err))
	assert.Equal(t, 0, enc.created)
	assert.NoFileExists(t, target)
}

func TestAssembleSkipPolicyDropsAndKeepsTimeline(t *testing.T) {
	enc := newFakeEncoder()
	target := filepath.Join(t.TempDir(), "X.mp4")
	sz := image.Pt(8, 8)

	res, err := assembler(enc, config.PolicySkip).Assemble(context.Background(), frames(t, sz, image.Point{}, sz), target, "X")

	require.NoError(t, err)
	assert.Equal(t, ms(0, 80), enc.timestamps)
	assert.Equal(t, []int{1}, res.Dropped)
	assert.Equal(t, 1, enc.stream.closed)
	assert.FileExists(t, target)
}

func TestAssembleAbortPolicyFinalizesAndRemovesVideo(t *testing.T) {
	enc := newFakeEncoder()
	target := filepath.Join(t.TempDir(), "X.mp4")
	sz := image.Pt(8, 8)

	_, err := assembler(enc, config.PolicyAbort).Assemble(context.Background(), frames(t, sz, image.Point{}, sz), target, "X")

	require.Error(t, err)
	assert.Equal(t, apperr.VideoRead, apperr.KindOf(err))
	assert.Equal(t, ms(0), enc.timestamps)
	assert.Equal(t, 1, enc.stream.closed)
	assert.NoFileExists(t, target)
}

func TestAssembleResamplesMismatchedGeometry(t *testing.T) {
	enc := newFakeEncoder()
	target := filepath.Join(t.TempDir(), "X.mp4")

	_, err := assembler(enc, config.PolicyAbort).Assemble(context.Background(), frames(t, image.Pt(20, 10), image.Pt(40, 30)), target, "X")

	require.NoError(t, err)
	assert.Equal(t, []image.Point{{20, 10}, {20, 10}}, enc.sizes)
}

func TestAssembleRejectsMismatchedGeometry(t *testing.T) {
	enc := newFakeEncoder()
	target := filepath.Join(t.TempDir(), "X.mp4")
	a := assembler(enc, config.PolicySkip)
	a.Geometry = config.GeometryReject

	res, err := a.Assemble(context.Background(), frames(t, image.Pt(20, 10), image.Pt(40, 30), image.Pt(20, 10)), target, "X")

	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Dropped)
	assert.Equal(t, ms(0, 80), enc.timestamps)
}

func TestAssembleEncoderErrorIsStudyFatal(t *testing.T) {
	enc := newFakeEncoder()
	enc.failEncodeAt = 1
	target := filepath.Join(t.TempDir(), "X.mp4")
	sz := image.Pt(8, 8)

	_, err := assembler(enc, config.PolicySkip).Assemble(context.Background(), frames(t, sz, sz, sz), target, "X")

	require.Error(t, err)
	assert.Equal(t, apperr.Encoder, apperr.KindOf(err))
	assert.Equal(t, 1, enc.stream.closed)
	assert.NoFileExists(t, target)
}

func TestWithStreamJoinsCloseError(t *testing.T) {
	enc := newFakeEncoder()
	enc.closeErr = errors.New("moov atom missing")
	target := filepath.Join(t.TempDir(), "X.mp4")

	err := WithStream(context.Background(), enc, target, 4, 4, func(Stream) error { return nil })

	require.Error(t, err)
	assert.Equal(t, apperr.Encoder, apperr.KindOf(err))
	assert.Equal(t, 1, enc.stream.closed)
}

func TestWithStreamCreateFailure(t *testing.T) {
	enc := newFakeEncoder()
	enc.createErr = errors.New("no ffmpeg")
	called := false

	err := WithStream(context.Background(), enc, "unused.mp4", 4, 4, func(Stream) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, apperr.Encoder, apperr.KindOf(err))
}

func TestRawStreamPadsSkippedSlots(t *testing.T) {
	var buf bytes.Buffer
	s := newRawStream(&buf, 2, 2, 40*time.Millisecond)
	frame := image.NewRGBA(image.Rect(0, 0, 2, 2))
	frame.Set(1, 1, color.RGBA{R: 9, A: 255})

	require.NoError(t, s.Encode(frame, 0))
	require.NoError(t, s.Encode(frame, 120*time.Millisecond))

	const frameBytes = 2 * 2 * 4
	require.Equal(t, 4*frameBytes, buf.Len())
	// the padded slots repeat the first picture
	assert.Equal(t, buf.Bytes()[:frameBytes], buf.Bytes()[frameBytes:2*frameBytes])

	assert.Error(t, s.Encode(frame, 120*time.Millisecond), "timestamps must increase")
	assert.Error(t, s.Encode(frame, 170*time.Millisecond), "timestamps must sit on the frame grid")
	assert.Error(t, s.Encode(image.NewRGBA(image.Rect(0, 0, 3, 3)), 200*time.Millisecond))
}

func TestBuildFFmpegArgs(t *testing.T) {
	e := &FFmpegEncoder{Codec: "libx264", FrameRate: 25}
	args := e.buildFFmpegArgs(100, 150, "out.mp4")

	assert.Subset(t, args, []string{"-video_size", "100x150", "-framerate", "25", "-crf", "23", "-c:v", "libx264"})
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestQualityArgs(t *testing.T) {
	assert.Equal(t, []string{"-b:v", "7500k"}, QualityArgs("h264_videotoolbox", 0))
	assert.Equal(t, []string{"-cq", "30"}, QualityArgs("h264_nvenc", 30))
	assert.Equal(t, []string{"-crf", "18", "-preset", "medium"}, QualityArgs("libx264", 18))
}
