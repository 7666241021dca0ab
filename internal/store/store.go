// Package store persists annotated frames as frame_{n}.{ext} and keeps the
// ordered inventory the video assembler consumes.
package store

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ivlev/dicom2video/internal/config"
)

type Store struct {
	dir     string
	format  config.FrameFormat
	quality int

	once   sync.Once
	dirErr error
}

func New(dir string, format config.FrameFormat, quality int) *Store {
	return &Store{dir: dir, format: format, quality: quality}
}

func (s *Store) Dir() string { return s.dir }

// FrameName is frame_{index}.{ext} with the 1-based index, no padding.
func FrameName(index int, format config.FrameFormat) string {
	return fmt.Sprintf("frame_%d.%s", index, format)
}

// Ensure creates the output directory. Safe to call repeatedly.
func (s *Store) Ensure() error {
	s.once.Do(func() {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			s.dirErr = fmt.Errorf("create %s: %w", s.dir, err)
		}
	})
	return s.dirErr
}

// Write encodes img as the frame with the given 1-based index, replacing any
// existing file, and returns its path.
func (s *Store) Write(img image.Image, index int) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("frame index %d: must be 1-based", index)
	}
	if err := s.Ensure(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, FrameName(index, s.format))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	w := bufio.NewWriter(f)
	switch s.format {
	case config.FormatPNG:
		err = png.Encode(w, img)
	default:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: s.quality})
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Entry is a stored frame; Index is the 0-based decoder index.
type Entry struct {
	Index int
	Path  string
}

// Inventory collects stored frames from concurrent writers.
type Inventory struct {
	mu      sync.Mutex
	entries []Entry
}

func (inv *Inventory) Add(index int, path string) {
	inv.mu.Lock()
	inv.entries = append(inv.entries, Entry{Index: index, Path: path})
	inv.mu.Unlock()
}

func (inv *Inventory) Len() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.entries)
}

// Entries returns a copy sorted by frame index.
func (inv *Inventory) Entries() []Entry {
	inv.mu.Lock()
	out := make([]Entry, len(inv.entries))
	copy(out, inv.entries)
	inv.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Paths returns the stored paths in ascending frame order.
func (inv *Inventory) Paths() []string {
	entries := inv.Entries()
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}
