package source

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // encapsulated baseline JPEG frames
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// FrameSource yields the frames of one study in decoder order.
type FrameSource interface {
	FrameCount() int
	DecodeFrame(index int) (image.Image, error)
	Close() error
}

// Opener opens a study file for frame decoding.
type Opener func(path string) (FrameSource, error)

var ErrNoPixelData = errors.New("dataset has no pixel data")

type DicomSource struct {
	path  string
	info  dicom.PixelDataInfo
	model pixelModel
}

// OpenDicom parses the whole dataset, pixel data included.
func OpenDicom(path string) (FrameSource, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, ErrNoPixelData
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, ErrNoPixelData
	}

	return &DicomSource{
		path:  path,
		info:  info,
		model: pixelModelFromDataset(ds),
	}, nil
}

func (s *DicomSource) FrameCount() int {
	return len(s.info.Frames)
}

// DecodeFrame renders native frames from their stored samples. Encapsulated
// frames are decoded by their codec and passed through.
func (s *DicomSource) DecodeFrame(index int) (image.Image, error) {
	if index < 0 || index >= len(s.info.Frames) {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", index, len(s.info.Frames))
	}
	fr := s.info.Frames[index]
	if fr.Encapsulated {
		return fr.GetImage()
	}

	nf, err := fr.GetNativeFrame()
	if err != nil {
		return nil, err
	}
	return s.model.render(nf.Data, nf.Cols, nf.Rows, nf.BitsPerSample)
}

func (s *DicomSource) Close() error {
	s.info = dicom.PixelDataInfo{}
	return nil
}

func firstInt(ds dicom.Dataset, t tag.Tag) (int, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return 0, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []int:
		if len(v) > 0 {
			return v[0], true
		}
	case []string:
		if len(v) > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(v[0]))
			return n, err == nil
		}
	}
	return 0, false
}

func firstString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return ""
	}
	strs, ok := elem.Value.GetValue().([]string)
	if !ok || len(strs) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(strs[0]), "\x00 ")
}

func firstFloat(ds dicom.Dataset, t tag.Tag) (float64, bool) {
	s := firstString(ds, t)
	if s == "" {
		return 0, false
	}
	// multi-valued DS ("40\80") keeps the first value
	if i := strings.IndexByte(s, '\\'); i >= 0 {
		s = s[:i]
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
