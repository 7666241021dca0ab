// Package annotate composites study metadata into a band below each frame.
package annotate

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ivlev/dicom2video/internal/config"
	"github.com/ivlev/dicom2video/internal/metadata"
)

const (
	MarginX     = 10
	LineSpacing = 15
	FontSize    = 12
)

// Line is one rendered attribute; Origin is the text baseline start.
type Line struct {
	Key    metadata.Key
	Text   string
	Origin image.Point
}

type Options struct {
	// Face overrides the default Go Regular 12pt face. A face caches glyphs,
	// so compositors running concurrently must not share one.
	Face font.Face
	// QRTag draws a QR code of the study name at the right end of the band.
	QRTag bool
}

// Compositor is used by one goroutine at a time; create one per worker.
type Compositor struct {
	face  font.Face
	ink   image.Image
	qrTag bool

	qrText string
	qrImg  image.Image
}

func New(opts Options) *Compositor {
	face := opts.Face
	if face == nil {
		face = defaultFace()
	}
	return &Compositor{
		face:  face,
		ink:   image.NewUniform(color.White),
		qrTag: opts.QRTag,
	}
}

var goRegular = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(goregular.TTF)
})

func defaultFace() font.Face {
	f, err := goRegular()
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// Layout places one line per present attribute, in key order, starting
// LineSpacing below the frame and LineSpacing apart.
func Layout(frameHeight int, attrs metadata.AttributeSet) []Line {
	entries := attrs.Entries()
	lines := make([]Line, 0, len(entries))
	y := frameHeight + LineSpacing
	for _, e := range entries {
		lines = append(lines, Line{
			Key:    e.Key,
			Text:   e.Key.Label() + ": " + e.Value,
			Origin: image.Pt(MarginX, y),
		})
		y += LineSpacing
	}
	return lines
}

// Compose returns a new canvas of width × (height + band) with frame at the
// origin. The band keeps the zero background.
func (c *Compositor) Compose(frame image.Image, attrs metadata.AttributeSet, study string) *image.RGBA {
	fb := frame.Bounds()
	w, h := fb.Dx(), fb.Dy()

	canvas := image.NewRGBA(image.Rect(0, 0, w, h+config.BandHeight))
	draw.Draw(canvas, image.Rect(0, 0, w, h), frame, fb.Min, draw.Src)

	d := &font.Drawer{Dst: canvas, Src: c.ink, Face: c.face}
	for _, line := range Layout(h, attrs) {
		d.Dot = fixed.P(line.Origin.X, line.Origin.Y)
		d.DrawString(line.Text)
	}

	if c.qrTag && study != "" && w >= 2*config.BandHeight {
		if qr := c.qrCode(study); qr != nil {
			r := image.Rect(w-config.BandHeight, h, w, h+config.BandHeight)
			draw.Draw(canvas, r, qr, qr.Bounds().Min, draw.Src)
		}
	}
	return canvas
}

// qrCode caches the last rendered code.
func (c *Compositor) qrCode(text string) image.Image {
	if text == c.qrText && c.qrImg != nil {
		return c.qrImg
	}
	q, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil
	}
	q.DisableBorder = true
	c.qrText = text
	c.qrImg = q.Image(config.BandHeight)
	return c.qrImg
}
