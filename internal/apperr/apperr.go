// Package apperr classifies failures so the CLI can halt an invocation and the
// engine can end a single study without touching its siblings.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Usage
	Directory
	EmptyInput
	Lock
	Config
	MetadataDecode
	FrameDecode
	FrameStore
	VideoRead
	Encoder
)

func (k Kind) String() string {
	switch k {
	case Usage:
		return "usage"
	case Directory:
		return "directory"
	case EmptyInput:
		return "empty_input"
	case Lock:
		return "lock"
	case Config:
		return "config"
	case MetadataDecode:
		return "metadata_decode"
	case FrameDecode:
		return "frame_decode"
	case FrameStore:
		return "frame_store"
	case VideoRead:
		return "video_read"
	case Encoder:
		return "encoder"
	default:
		return "unknown"
	}
}

// Invocation reports whether the kind halts the whole run rather than one study.
func (k Kind) Invocation() bool {
	switch k {
	case Usage, Directory, EmptyInput, Lock, Config:
		return true
	}
	return false
}

// Error carries the kind and, when known, the study and frame it concerns.
// Index is the 0-based frame index, or -1 when the failure is not per-frame.
type Error struct {
	Kind  Kind
	Study string
	Index int
	Err   error
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Study != "" {
		prefix += " " + e.Study
	}
	if e.Index >= 0 {
		prefix += fmt.Sprintf(" frame %d", e.Index)
	}
	if e.Err == nil {
		return prefix
	}
	return prefix + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, study string, err error) *Error {
	return &Error{Kind: kind, Study: study, Index: -1, Err: err}
}

func Frame(kind Kind, study string, index int, err error) *Error {
	return &Error{Kind: kind, Study: study, Index: index, Err: err}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Index: -1, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
