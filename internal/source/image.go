package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// ImageSource reads back frames that were already written to disk, in the
// order given.
type ImageSource struct {
	paths []string
}

func NewImageSource(paths []string) *ImageSource {
	cp := make([]string, len(paths))
	copy(cp, paths)
	return &ImageSource{paths: cp}
}

func (s *ImageSource) FrameCount() int {
	return len(s.paths)
}

func (s *ImageSource) DecodeFrame(index int) (image.Image, error) {
	if index < 0 || index >= len(s.paths) {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", index, len(s.paths))
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.paths[index], err)
	}
	return img, nil
}

func (s *ImageSource) Close() error {
	return nil
}
