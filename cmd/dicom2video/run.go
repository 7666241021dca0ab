package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivlev/dicom2video/internal/apperr"
	"github.com/ivlev/dicom2video/internal/config"
	"github.com/ivlev/dicom2video/internal/engine"
	"github.com/ivlev/dicom2video/internal/logging"
	"github.com/ivlev/dicom2video/internal/metadata"
	"github.com/ivlev/dicom2video/internal/metrics"
	"github.com/ivlev/dicom2video/internal/scan"
	"github.com/ivlev/dicom2video/internal/source"
	"github.com/ivlev/dicom2video/internal/system"
	"github.com/ivlev/dicom2video/internal/video"
)

const lockName = ".dicom2video.lock"

func run(ctx context.Context, dir string, stdout, stderr io.Writer) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return apperr.Errorf(apperr.Directory, "folder %s not found or is not a directory", dir)
	}

	cfg, err := config.LoadDir(dir)
	if err != nil {
		return apperr.New(apperr.Config, "", err)
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr,
		RunID:  uuid.NewString(),
	})
	if err != nil {
		return apperr.New(apperr.Config, "", err)
	}
	defer func() { _ = log.Sync() }()

	studies, err := scan.Studies(dir, scan.NewMatcher(cfg.Extensions...), cfg.VideoExtension)
	if err != nil {
		return err
	}

	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil {
		return apperr.New(apperr.Lock, "", fmt.Errorf("acquire lock: %w", err))
	}
	if !ok {
		return apperr.Errorf(apperr.Lock, "another dicom2video run is already processing %s", dir)
	}
	defer func() { _ = lock.Unlock() }()

	system.InitResourceLimits(log)

	enc := newEncoder(ctx, cfg)
	log.Info("starting",
		zap.String("dir", dir),
		zap.Int("studies", len(studies)),
		zap.String("codec", enc.Codec),
		zap.Int("workers", system.RecommendedWorkers(cfg.Workers)),
	)

	p := engine.NewPipeline(cfg, metadata.DicomExtractor{}, source.OpenDicom, enc, log)
	if cfg.MetricsFile != "" {
		p.Metrics = metrics.New()
	}

	outcomes := p.Run(ctx, studies)
	fmt.Fprintln(stdout, renderSummary(outcomes))

	if p.Metrics != nil {
		path := cfg.MetricsFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		if err := p.Metrics.WriteTextfile(path); err != nil {
			log.Warn("failed to write metrics", zap.String("path", path), zap.Error(err))
		}
	}
	return ctx.Err()
}

func newEncoder(ctx context.Context, cfg *config.Config) *video.FFmpegEncoder {
	codec := cfg.VideoEncoder
	if codec == "" {
		codec = system.GetBestH264Encoder(ctx)
	}
	quality := cfg.Quality
	if quality <= 0 {
		quality = video.DefaultQuality(codec)
	}
	return &video.FFmpegEncoder{
		Binary:    "ffmpeg",
		Codec:     codec,
		Quality:   quality,
		FrameRate: cfg.FrameRate,
	}
}
