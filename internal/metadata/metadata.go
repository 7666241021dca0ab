// Package metadata reads the handful of study attributes that are burned into
// every annotated frame.
package metadata

import (
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Key enumerates the attributes rendered in the annotation band. The
// declaration order is the rendering order.
type Key int

const (
	Institution Key = iota
	Manufacturer
	Patient
	StudyDate
	numKeys
)

// Keys returns every key in rendering order.
func Keys() []Key {
	return []Key{Institution, Manufacturer, Patient, StudyDate}
}

// Tag is the DICOM attribute backing the key.
func (k Key) Tag() tag.Tag {
	switch k {
	case Institution:
		return tag.InstitutionName
	case Manufacturer:
		return tag.Manufacturer
	case Patient:
		return tag.PatientName
	case StudyDate:
		return tag.StudyDate
	}
	panic("metadata: unknown key")
}

// Label is the DICOM keyword printed in front of the value.
func (k Key) Label() string {
	switch k {
	case Institution:
		return "InstitutionName"
	case Manufacturer:
		return "Manufacturer"
	case Patient:
		return "PatientName"
	case StudyDate:
		return "StudyDate"
	}
	return "Unknown"
}

func (k Key) String() string { return k.Label() }

// Entry is one present attribute.
type Entry struct {
	Key   Key
	Value string
}

// AttributeSet is immutable once built.
type AttributeSet struct {
	values [numKeys]*string
}

// NewAttributeSet builds a set from a map; empty values count as absent.
func NewAttributeSet(values map[Key]string) AttributeSet {
	var s AttributeSet
	for k, v := range values {
		if k < 0 || k >= numKeys || v == "" {
			continue
		}
		v := v
		s.values[k] = &v
	}
	return s
}

func (s AttributeSet) Get(k Key) (string, bool) {
	if k < 0 || k >= numKeys || s.values[k] == nil {
		return "", false
	}
	return *s.values[k], true
}

// Entries lists present attributes in rendering order.
func (s AttributeSet) Entries() []Entry {
	out := make([]Entry, 0, numKeys)
	for _, k := range Keys() {
		if v, ok := s.Get(k); ok {
			out = append(out, Entry{Key: k, Value: v})
		}
	}
	return out
}

func (s AttributeSet) Len() int {
	n := 0
	for _, v := range s.values {
		if v != nil {
			n++
		}
	}
	return n
}

// Map returns a copy keyed by label, for manifests and logs.
func (s AttributeSet) Map() map[string]string {
	out := make(map[string]string, numKeys)
	for _, e := range s.Entries() {
		out[e.Key.Label()] = e.Value
	}
	return out
}
