// Package engine runs studies through metadata extraction, frame
// compositing, frame storage and video assembly.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/dicom2video/internal/annotate"
	"github.com/ivlev/dicom2video/internal/apperr"
	"github.com/ivlev/dicom2video/internal/config"
	"github.com/ivlev/dicom2video/internal/manifest"
	"github.com/ivlev/dicom2video/internal/metadata"
	"github.com/ivlev/dicom2video/internal/metrics"
	"github.com/ivlev/dicom2video/internal/scan"
	"github.com/ivlev/dicom2video/internal/source"
	"github.com/ivlev/dicom2video/internal/store"
	"github.com/ivlev/dicom2video/internal/system"
	"github.com/ivlev/dicom2video/internal/video"
)

type Pipeline struct {
	Config     *config.Config
	Extractor  metadata.Extractor
	Open       source.Opener
	Annotation annotate.Options
	Encoder    video.Encoder
	Logger     *zap.Logger
	Metrics    *metrics.Recorder
}

func NewPipeline(cfg *config.Config, ext metadata.Extractor, open source.Opener, enc video.Encoder, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Config:     cfg,
		Extractor:  ext,
		Open:       open,
		Annotation: annotate.Options{QRTag: cfg.Annotation.QRTag},
		Encoder:    enc,
		Logger:     log,
	}
}

// Run processes studies concurrently and returns one outcome per study, in
// input order. A failing study never cancels its siblings.
func (p *Pipeline) Run(ctx context.Context, studies []scan.Study) []Outcome {
	outcomes := make([]Outcome, len(studies))

	workers := system.RecommendedWorkers(p.Config.Workers)
	if workers > len(studies) {
		workers = len(studies)
	}

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, st := range studies {
		i, st := i, st
		g.Go(func() error {
			outcomes[i] = p.ProcessStudy(ctx, st)
			return nil
		})
	}
	_ = g.Wait()

	p.logger().Info("Processing completed!", zap.Int("studies", len(studies)), zap.Int("workers", workers))
	return outcomes
}

// ProcessStudy takes one study from SCANNED to a terminal state.
func (p *Pipeline) ProcessStudy(ctx context.Context, st scan.Study) (out Outcome) {
	start := time.Now()
	log := p.logger().With(zap.String("study", st.Name))
	out = Outcome{Study: st, State: Scanned}

	p.Metrics.StudyStarted()
	defer func() {
		out.Duration = time.Since(start)
		p.Metrics.StudyFinished(out.State.String(), out.Duration)
		if out.Err != nil {
			log.Error("study failed", zap.Stringer("state", out.State), zap.Error(out.Err))
		} else {
			log.Info("study finished", zap.Stringer("state", out.State), zap.Duration("elapsed", out.Duration))
		}
		if p.Config.Manifest {
			p.writeManifest(log, out)
		}
	}()

	attrs, err := p.Extractor.Extract(ctx, st.Source)
	if err != nil {
		return fail(out, studyError(apperr.MetadataDecode, st.Name, err))
	}
	out.State = MetadataRead
	out.attrs = attrs

	src, err := p.Open(st.Source)
	if err != nil {
		return fail(out, studyError(apperr.FrameDecode, st.Name, err))
	}
	defer src.Close()

	out.Frames = src.FrameCount()
	log.Info("Processing", zap.Int("frames", out.Frames), zap.Int("attributes", attrs.Len()))

	frameStart := time.Now()
	fs := store.New(st.FramesDir, p.Config.FrameFormat, p.Config.JPEGQuality)
	inv := &store.Inventory{}
	failed, err := p.writeFrames(ctx, log, st.Name, src, attrs, fs, inv)
	p.Metrics.ObserveStage("frames", time.Since(frameStart))
	out.Stored = inv.Len()
	out.FailedFrames = failed
	out.inventory = inv.Entries()
	if err != nil {
		return fail(out, err)
	}
	out.State = FramesWritten

	if inv.Len() == 0 {
		log.Info("no frames stored, video skipped")
		out.State = SkippedNoFrames
		return out
	}
	log.Info("frames stored", zap.String("dir", fs.Dir()), zap.Int("stored", out.Stored), zap.Ints("failed", failed))

	videoStart := time.Now()
	asm := &video.Assembler{
		Encoder:   p.Encoder,
		FrameRate: p.Config.FrameRate,
		Policy:    p.Config.FailurePolicy,
		Geometry:  p.Config.Geometry,
		Logger:    p.logger(),
	}
	res, err := asm.Assemble(ctx, source.NewImageSource(inv.Paths()), st.VideoPath, st.Name)
	out.assembly = res
	if err != nil {
		return fail(out, err)
	}
	out.Video = res.Path
	out.Encoded = len(res.Encoded)
	out.Dropped = len(res.Dropped)
	p.Metrics.VideoAssembled(out.Encoded, out.Dropped, time.Since(videoStart))
	log.Info("MP4 created", zap.String("path", res.Path),
		zap.Int("encoded", out.Encoded), zap.Int("dropped", out.Dropped))

	out.State = VideoAssembled
	return out
}

func (p *Pipeline) writeManifest(log *zap.Logger, out Outcome) {
	path := manifest.PathFor(out.Study.VideoPath, p.Config.VideoExtension)
	if err := manifest.Write(buildManifest(out, p.Config), path); err != nil {
		log.Warn("failed to write manifest", zap.String("path", path), zap.Error(err))
	}
}

func buildManifest(out Outcome, cfg *config.Config) *manifest.Manifest {
	m := &manifest.Manifest{
		Study:    out.Study.Name,
		Source:   out.Study.Source,
		State:    out.State.String(),
		Metadata: out.attrs.Map(),
	}
	if out.Err != nil {
		m.Error = out.Err.Error()
	}
	for _, e := range out.inventory {
		m.Frames = append(m.Frames, manifest.Frame{Index: e.Index + 1, File: filepath.Base(e.Path)})
	}
	if out.State == VideoAssembled {
		v := &manifest.Video{
			File:      filepath.Base(out.Video),
			FrameRate: cfg.FrameRate,
			Width:     out.assembly.Width,
			Height:    out.assembly.Height,
		}
		for _, enc := range out.assembly.Encoded {
			v.Encoded = append(v.Encoded, manifest.Slot{
				Frame: out.inventory[enc.Position].Index + 1,
				AtMS:  enc.Timestamp.Milliseconds(),
			})
		}
		for _, pos := range out.assembly.Dropped {
			v.Dropped = append(v.Dropped, out.inventory[pos].Index+1)
		}
		m.Video = v
	}
	return m
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func fail(out Outcome, err error) Outcome {
	out.State = Failed
	out.Err = err
	return out
}

// studyError classifies err unless something below already did, and fills in
// the study name.
func studyError(kind apperr.Kind, study string, err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		if e.Study == "" {
			e.Study = study
		}
		return err
	}
	return apperr.New(kind, study, err)
}
