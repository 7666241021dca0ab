// Package manifest records what one study run produced next to its video.
package manifest

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const Version = "1"

// Manifest describes a finished study.
type Manifest struct {
	Version  string            `yaml:"version"`
	Study    string            `yaml:"study"`
	Source   string            `yaml:"source"`
	State    string            `yaml:"state"`
	Error    string            `yaml:"error,omitempty"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
	Frames   []Frame           `yaml:"frames"`
	Video    *Video            `yaml:"video,omitempty"`
}

// Frame is one stored annotated image. Index is 1-based like the file name.
type Frame struct {
	Index int    `yaml:"index"`
	File  string `yaml:"file"`
}

type Video struct {
	File      string `yaml:"file"`
	FrameRate int    `yaml:"frame_rate"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Encoded   []Slot `yaml:"encoded"`
	Dropped   []int  `yaml:"dropped,omitempty"`
}

// Slot places a stored frame on the video timeline.
type Slot struct {
	Frame int   `yaml:"frame"`
	AtMS  int64 `yaml:"at_ms"`
}

// PathFor returns the manifest location for a video path.
func PathFor(videoPath, videoExt string) string {
	return strings.TrimSuffix(videoPath, videoExt) + ".manifest.yaml"
}

func Write(m *Manifest, path string) error {
	if m.Version == "" {
		m.Version = Version
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
