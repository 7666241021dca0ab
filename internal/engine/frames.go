package engine

import (
	"context"
	"image"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/dicom2video/internal/annotate"
	"github.com/ivlev/dicom2video/internal/apperr"
	"github.com/ivlev/dicom2video/internal/config"
	"github.com/ivlev/dicom2video/internal/metadata"
	"github.com/ivlev/dicom2video/internal/source"
	"github.com/ivlev/dicom2video/internal/store"
)

type frameJob struct {
	index int
	img   image.Image
}

// writeFrames decodes frames in order on the calling goroutine and hands them
// to frame_workers goroutines that composite and store them. Under the abort
// policy the first failure stops the decoder; frames already handed over are
// still stored. It returns the decoder indices dropped under the skip policy.
func (p *Pipeline) writeFrames(ctx context.Context, log *zap.Logger, study string, src source.FrameSource, attrs metadata.AttributeSet, fs *store.Store, inv *store.Inventory) ([]int, error) {
	n := src.FrameCount()
	if n == 0 {
		return nil, nil
	}
	abort := p.Config.FailurePolicy == config.PolicyAbort

	var (
		mu     sync.Mutex
		failed []int
	)
	skip := func(index int, stage string, err error) {
		p.Metrics.FrameFailed(stage)
		log.Warn("skipping frame", zap.Int("frame", index), zap.String("stage", stage), zap.Error(err))
		mu.Lock()
		failed = append(failed, index)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan frameJob)

	workers := min(max(p.Config.FrameWorkers, 1), n)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			comp := annotate.New(p.Annotation)
			for job := range jobs {
				canvas := comp.Compose(job.img, attrs, study)
				path, err := fs.Write(canvas, job.index+1)
				if err != nil {
					ferr := apperr.Frame(apperr.FrameStore, study, job.index, err)
					if abort {
						p.Metrics.FrameFailed("store")
						return ferr
					}
					skip(job.index, "store", ferr)
					continue
				}
				inv.Add(job.index, path)
				p.Metrics.FrameStored()
				log.Debug("Saved", zap.Int("frame", job.index+1), zap.String("path", path))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < n; i++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := src.DecodeFrame(i)
			if err != nil {
				ferr := apperr.Frame(apperr.FrameDecode, study, i, err)
				if abort {
					p.Metrics.FrameFailed("decode")
					return ferr
				}
				skip(i, "decode", ferr)
				continue
			}
			select {
			case jobs <- frameJob{index: i, img: img}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Wait returns the first failure, never the cancellation it caused.
	err := g.Wait()
	sort.Ints(failed)
	return failed, err
}
