package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateInput(); err != nil {
		return err
	}
	if err := c.validateFrames(); err != nil {
		return err
	}
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validatePolicies(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validateInput() error {
	if len(c.Extensions) == 0 {
		return errors.New("extensions must list at least one file extension")
	}
	return nil
}

func (c *Config) validateFrames() error {
	switch c.FrameFormat {
	case FormatJPEG, FormatPNG:
	default:
		return fmt.Errorf("frame_format: unsupported value %q (jpg, png)", c.FrameFormat)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("jpeg_quality must be between 1 and 100")
	}
	if c.BandHeight != BandHeight {
		return fmt.Errorf("band_height must be %d", BandHeight)
	}
	if c.FrameWorkers < 1 {
		return errors.New("frame_workers must be at least 1")
	}
	return nil
}

func (c *Config) validateVideo() error {
	if c.VideoExtension == "" {
		return errors.New("video_extension must be set")
	}
	if c.FrameRate < 1 || c.FrameRate > 1000 {
		return errors.New("frame_rate must be between 1 and 1000")
	}
	if c.Quality < 0 {
		return errors.New("quality must not be negative")
	}
	if c.Workers < 0 {
		return errors.New("workers must not be negative (0 selects automatically)")
	}
	return nil
}

func (c *Config) validatePolicies() error {
	switch c.FailurePolicy {
	case PolicyAbort, PolicySkip:
	default:
		return fmt.Errorf("failure_policy: unsupported value %q (abort, skip)", c.FailurePolicy)
	}
	switch c.Geometry {
	case GeometryResample, GeometryReject:
	default:
		return fmt.Errorf("geometry: unsupported value %q (resample, reject)", c.Geometry)
	}
	return nil
}

func (c *Config) validateLog() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unsupported value %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	return nil
}
