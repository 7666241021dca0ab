package metadata

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/ivlev/dicom2video/internal/apperr"
)

// Extractor reads an AttributeSet from a study file.
type Extractor interface {
	Extract(ctx context.Context, path string) (AttributeSet, error)
}

// DicomExtractor parses the dataset once with pixel data skipped.
type DicomExtractor struct{}

func (DicomExtractor) Extract(ctx context.Context, path string) (AttributeSet, error) {
	if err := ctx.Err(); err != nil {
		return AttributeSet{}, err
	}
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return AttributeSet{}, apperr.New(apperr.MetadataDecode, "", fmt.Errorf("parse %s: %w", path, err))
	}
	return FromDataset(ds), nil
}

// FromDataset looks up every Key; missing or empty attributes are left out.
func FromDataset(ds dicom.Dataset) AttributeSet {
	dec := charsetDecoder(firstString(ds, tag.SpecificCharacterSet))

	values := make(map[Key]string, numKeys)
	for _, k := range Keys() {
		v := firstString(ds, k.Tag())
		if v == "" {
			continue
		}
		values[k] = decodeValue(v, dec)
	}
	return NewAttributeSet(values)
}

func firstString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return ""
	}
	strs, ok := elem.Value.GetValue().([]string)
	if !ok || len(strs) == 0 {
		return ""
	}
	return clean(strs[0])
}

// clean strips DICOM value padding.
func clean(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "\x00 ")
}

var charsets = map[string]*charmap.Charmap{
	"ISO_IR 100": charmap.ISO8859_1,
	"ISO_IR 101": charmap.ISO8859_2,
	"ISO_IR 109": charmap.ISO8859_3,
	"ISO_IR 110": charmap.ISO8859_4,
	"ISO_IR 144": charmap.ISO8859_5,
	"ISO_IR 127": charmap.ISO8859_6,
	"ISO_IR 126": charmap.ISO8859_7,
	"ISO_IR 138": charmap.ISO8859_8,
	"ISO_IR 148": charmap.ISO8859_9,
}

func charsetDecoder(specific string) *encoding.Decoder {
	// multi-valued character sets come back as "a\b"; the first term is the default repertoire
	if i := strings.IndexByte(specific, '\\'); i >= 0 {
		specific = specific[:i]
	}
	cm, ok := charsets[strings.TrimSpace(specific)]
	if !ok {
		return nil
	}
	return cm.NewDecoder()
}

// decodeValue only touches values that are not already UTF-8.
func decodeValue(v string, dec *encoding.Decoder) string {
	if dec == nil || utf8.ValidString(v) {
		return v
	}
	out, err := dec.String(v)
	if err != nil {
		return v
	}
	return out
}
