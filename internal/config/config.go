package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is looked up inside the input directory.
const FileName = "dicom2video.yaml"

const (
	// BandHeight is the annotation band appended below every frame.
	BandHeight = 50
	// DefaultFrameRate gives 40 ms between presentation timestamps.
	DefaultFrameRate = 25
)

type FailurePolicy string

const (
	// PolicyAbort ends the study on the first per-frame failure; no video is produced.
	PolicyAbort FailurePolicy = "abort"
	// PolicySkip drops the failing frame and carries on.
	PolicySkip FailurePolicy = "skip"
)

type GeometryPolicy string

const (
	GeometryResample GeometryPolicy = "resample"
	GeometryReject   GeometryPolicy = "reject"
)

type FrameFormat string

const (
	FormatJPEG FrameFormat = "jpg"
	FormatPNG  FrameFormat = "png"
)

type Config struct {
	Extensions     []string       `yaml:"extensions"`
	FrameFormat    FrameFormat    `yaml:"frame_format"`
	JPEGQuality    int            `yaml:"jpeg_quality"`
	VideoExtension string         `yaml:"video_extension"`
	FrameRate      int            `yaml:"frame_rate"`
	BandHeight     int            `yaml:"band_height"`
	FailurePolicy  FailurePolicy  `yaml:"failure_policy"`
	Geometry       GeometryPolicy `yaml:"geometry"`
	Workers        int            `yaml:"workers"`
	FrameWorkers   int            `yaml:"frame_workers"`
	VideoEncoder   string         `yaml:"video_encoder"`
	Quality        int            `yaml:"quality"`
	Annotation     Annotation     `yaml:"annotation"`
	Manifest       bool           `yaml:"manifest"`
	MetricsFile    string         `yaml:"metrics_file"`
	Log            Log            `yaml:"log"`
}

type Annotation struct {
	QRTag bool `yaml:"qr_tag"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Extensions:     []string{".dcm"},
		FrameFormat:    FormatJPEG,
		JPEGQuality:    90,
		VideoExtension: ".mp4",
		FrameRate:      DefaultFrameRate,
		BandHeight:     BandHeight,
		FailurePolicy:  PolicyAbort,
		Geometry:       GeometryResample,
		FrameWorkers:   1,
		Log:            Log{Level: "info", Format: "console"},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDir loads FileName from dir.
func LoadDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Normalize lower-cases enumerations and gives every extension a leading dot.
func (c *Config) Normalize() {
	exts := c.Extensions[:0]
	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	c.Extensions = exts

	c.FrameFormat = FrameFormat(strings.ToLower(strings.TrimSpace(string(c.FrameFormat))))
	if c.FrameFormat == "jpeg" {
		c.FrameFormat = FormatJPEG
	}
	c.FailurePolicy = FailurePolicy(strings.ToLower(strings.TrimSpace(string(c.FailurePolicy))))
	c.Geometry = GeometryPolicy(strings.ToLower(strings.TrimSpace(string(c.Geometry))))

	c.VideoExtension = strings.ToLower(strings.TrimSpace(c.VideoExtension))
	if c.VideoExtension != "" && !strings.HasPrefix(c.VideoExtension, ".") {
		c.VideoExtension = "." + c.VideoExtension
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}
