package source

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// pixelModel holds the attributes that turn stored samples into display
// levels: modality rescale, VOI window and photometric interpretation.
type pixelModel struct {
	photometric string
	samples     int
	bitsStored  int
	signed      bool
	slope       float64
	intercept   float64
	window      window
}

// window is the linear VOI transform, in rescaled units.
type window struct {
	center, width float64
	ok            bool
}

func pixelModelFromDataset(ds dicom.Dataset) pixelModel {
	m := pixelModel{
		photometric: strings.ToUpper(firstString(ds, tag.PhotometricInterpretation)),
		slope:       1,
	}
	m.samples, _ = firstInt(ds, tag.SamplesPerPixel)
	m.bitsStored, _ = firstInt(ds, tag.BitsStored)
	if rep, ok := firstInt(ds, tag.PixelRepresentation); ok {
		m.signed = rep == 1
	}
	if s, ok := firstFloat(ds, tag.RescaleSlope); ok && s != 0 {
		m.slope = s
	}
	if i, ok := firstFloat(ds, tag.RescaleIntercept); ok {
		m.intercept = i
	}
	c, okC := firstFloat(ds, tag.WindowCenter)
	w, okW := firstFloat(ds, tag.WindowWidth)
	if okC && okW && w >= 1 {
		m.window = window{center: c, width: w, ok: true}
	}
	return m
}

func (m pixelModel) render(data [][]int, cols, rows, bitsAllocated int) (image.Image, error) {
	if cols <= 0 || rows <= 0 || len(data) < cols*rows {
		return nil, fmt.Errorf("native frame %dx%d has %d samples", cols, rows, len(data))
	}
	bits := m.bitsStored
	if bits <= 0 || (bitsAllocated > 0 && bits > bitsAllocated) {
		bits = bitsAllocated
	}

	samples := m.samples
	if samples <= 0 && len(data) > 0 {
		samples = len(data[0])
	}
	if samples >= 3 {
		return m.renderColor(data, cols, rows, bits), nil
	}
	return m.renderGray(data, cols, rows, bits), nil
}

func (m pixelModel) renderColor(data [][]int, cols, rows, bits int) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, cols, rows))
	shift := max(bits-8, 0)
	ybr := strings.HasPrefix(m.photometric, "YBR")
	for i := 0; i < cols*rows; i++ {
		px := data[i]
		if len(px) < 3 {
			continue
		}
		r, g, b := clamp8(px[0]>>shift), clamp8(px[1]>>shift), clamp8(px[2]>>shift)
		if ybr {
			r, g, b = color.YCbCrToRGB(r, g, b)
		}
		o := i * 4
		out.Pix[o], out.Pix[o+1], out.Pix[o+2], out.Pix[o+3] = r, g, b, 0xff
	}
	return out
}

func (m pixelModel) renderGray(data [][]int, cols, rows, bits int) image.Image {
	n := cols * rows
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		var raw int
		if len(data[i]) > 0 {
			raw = data[i][0]
		}
		values[i] = float64(m.storedValue(raw, bits))*m.slope + m.intercept
	}

	lo, hi := m.levels(values, bits)
	invert := m.photometric == "MONOCHROME1"

	out := image.NewGray(image.Rect(0, 0, cols, rows))
	span := hi - lo
	for i, v := range values {
		var level float64
		switch {
		case span <= 0 || v <= lo:
			level = 0
		case v >= hi:
			level = 255
		default:
			level = (v - lo) / span * 255
		}
		if invert {
			level = 255 - level
		}
		out.Pix[i] = uint8(math.Round(level))
	}
	return out
}

// storedValue masks raw to the stored bits and sign-extends signed samples.
func (m pixelModel) storedValue(raw, bits int) int {
	if bits <= 0 || bits >= 32 {
		return raw
	}
	v := raw & (1<<bits - 1)
	if m.signed && v&(1<<(bits-1)) != 0 {
		v -= 1 << bits
	}
	return v
}

// levels is the value range mapped onto 0..255: the window when present,
// the identity for plain 8-bit data, otherwise the frame's own min/max.
func (m pixelModel) levels(values []float64, bits int) (float64, float64) {
	if m.window.ok {
		return m.window.center - m.window.width/2, m.window.center + m.window.width/2
	}
	if bits > 0 && bits <= 8 && !m.signed && m.slope == 1 && m.intercept == 0 {
		return 0, 255
	}
	lo, hi := math.MaxFloat64, -math.MaxFloat64
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func clamp8(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
