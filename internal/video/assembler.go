package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	"github.com/ivlev/dicom2video/internal/apperr"
	"github.com/ivlev/dicom2video/internal/config"
)

// FrameReader re-reads stored frames by inventory position.
type FrameReader interface {
	FrameCount() int
	DecodeFrame(index int) (image.Image, error)
}

type Assembler struct {
	Encoder   Encoder
	FrameRate int
	Policy    config.FailurePolicy
	Geometry  config.GeometryPolicy
	Logger    *zap.Logger
}

// Encoded is one frame handed to the encoder.
type Encoded struct {
	Position  int
	Timestamp time.Duration
}

type Result struct {
	Path          string
	Width, Height int
	Encoded       []Encoded
	// Dropped holds inventory positions that could not be re-read.
	Dropped []int
}

// Assemble encodes every readable frame into target. The first frame is
// decoded in full and fixes the stream size; if it cannot be read no stream is
// created. On failure the partial video is removed.
func (a *Assembler) Assemble(ctx context.Context, frames FrameReader, target, study string) (Result, error) {
	res := Result{Path: target}
	n := frames.FrameCount()
	if n == 0 {
		return res, nil
	}
	log := a.logger().With(zap.String("study", study))

	ref, err := frames.DecodeFrame(0)
	if err != nil {
		return res, apperr.Frame(apperr.VideoRead, study, 0, fmt.Errorf("reference frame: %w", err))
	}
	w, h := ref.Bounds().Dx(), ref.Bounds().Dy()
	res.Width, res.Height = w, h

	err = WithStream(ctx, a.Encoder, target, w, h, func(s Stream) error {
		for k := 0; k < n; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			ts := Timestamp(k, a.FrameRate)

			img := ref
			var err error
			if k > 0 {
				img, err = frames.DecodeFrame(k)
			}
			if err == nil {
				img, err = a.fit(img, w, h, log.With(zap.Int("position", k)))
			}
			if err != nil {
				rerr := apperr.Frame(apperr.VideoRead, study, k, err)
				if a.Policy == config.PolicyAbort {
					return rerr
				}
				log.Warn("skipping frame", zap.Int("position", k), zap.Duration("timestamp", ts), zap.Error(err))
				res.Dropped = append(res.Dropped, k)
				continue
			}

			if err := s.Encode(img, ts); err != nil {
				return apperr.Frame(apperr.Encoder, study, k, err)
			}
			res.Encoded = append(res.Encoded, Encoded{Position: k, Timestamp: ts})
		}
		return nil
	})
	if err != nil {
		if rmErr := os.Remove(target); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			log.Warn("failed to remove partial video", zap.String("path", target), zap.Error(rmErr))
		}
		return res, tagStudy(err, study)
	}
	return res, nil
}

// fit brings a frame to the reference size, or rejects it.
func (a *Assembler) fit(img image.Image, w, h int, log *zap.Logger) (image.Image, error) {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return img, nil
	}
	if a.Geometry == config.GeometryReject {
		return nil, fmt.Errorf("frame %dx%d differs from reference %dx%d", b.Dx(), b.Dy(), w, h)
	}
	log.Debug("resampling frame", zap.Int("from_width", b.Dx()), zap.Int("from_height", b.Dy()))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst, nil
}

func (a *Assembler) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// tagStudy fills in the study on errors raised below WithStream.
func tagStudy(err error, study string) error {
	var e *apperr.Error
	if errors.As(err, &e) && e.Study == "" {
		e.Study = study
	}
	return err
}
