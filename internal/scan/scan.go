// Package scan finds study files in the input directory and derives their
// output locations.
package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ivlev/dicom2video/internal/apperr"
)

// Matcher accepts file names by extension, case-insensitively.
type Matcher struct {
	exts []string
}

func NewMatcher(extensions ...string) Matcher {
	m := Matcher{}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		m.exts = append(m.exts, ext)
	}
	// longest first so ".nii.gz" wins over ".gz"
	sort.Slice(m.exts, func(i, j int) bool { return len(m.exts[i]) > len(m.exts[j]) })
	return m
}

// Match returns the matched extension as spelled in name.
func (m Matcher) Match(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, ext := range m.exts {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[len(name)-len(ext):], true
		}
	}
	return "", false
}

// Study is one input file and the outputs derived from it.
type Study struct {
	Name      string
	Source    string
	FramesDir string
	VideoPath string
}

// NewStudy derives X_frames/ and X<videoExt> next to the source X<ext>.
func NewStudy(path, ext, videoExt string) Study {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, ext)
	return Study{
		Name:      base,
		Source:    path,
		FramesDir: filepath.Join(dir, stem+"_frames"),
		VideoPath: filepath.Join(dir, stem+videoExt),
	}
}

// Studies lists matching files directly inside dir, sorted by name. Symlinks
// count when they resolve to a regular file. Subdirectories, including
// earlier *_frames output, are not descended into.
func Studies(dir string, m Matcher, videoExt string) ([]Study, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, apperr.Errorf(apperr.Directory, "folder not found: %s", dir)
	}
	if !fi.IsDir() {
		return nil, apperr.Errorf(apperr.Directory, "not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Errorf(apperr.Directory, "read %s: %v", dir, err)
	}

	var studies []Study
	for _, entry := range entries {
		ext, ok := m.Match(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !isRegular(entry, path) {
			continue
		}
		studies = append(studies, NewStudy(path, ext, videoExt))
	}
	if len(studies) == 0 {
		return nil, apperr.Errorf(apperr.EmptyInput, "no study files found in %s", dir)
	}

	sort.Slice(studies, func(i, j int) bool { return studies[i].Name < studies[j].Name })
	return studies, nil
}

func isRegular(entry fs.DirEntry, path string) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type().IsRegular()
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
