package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/dicom2video/internal/apperr"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestMatcher(t *testing.T) {
	m := NewMatcher(".dcm", "DICOM", " ", ".gz", ".nii.gz")

	tests := []struct {
		name    string
		wantExt string
		wantOK  bool
	}{
		{"a.dcm", ".dcm", true},
		{"A.DCM", ".DCM", true},
		{"scan.dicom", ".dicom", true},
		{"brain.nii.gz", ".nii.gz", true},
		{".dcm", "", false},
		{"notes.txt", "", false},
		{"dcm", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, ok := m.Match(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestNewStudyDerivesOutputs(t *testing.T) {
	s := NewStudy(filepath.Join("in", "X.dcm"), ".dcm", ".mp4")
	assert.Equal(t, "X.dcm", s.Name)
	assert.Equal(t, filepath.Join("in", "X_frames"), s.FramesDir)
	assert.Equal(t, filepath.Join("in", "X.mp4"), s.VideoPath)

	upper := NewStudy(filepath.Join("in", "Y.DCM"), ".DCM", ".mp4")
	assert.Equal(t, filepath.Join("in", "Y_frames"), upper.FramesDir)
}

func TestStudiesSortedAndFiltered(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.dcm"))
	touch(t, filepath.Join(root, "a.DCM"))
	touch(t, filepath.Join(root, "readme.txt"))
	touch(t, filepath.Join(root, "a_frames", "nested.dcm"))
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.dcm"), 0o755))

	got, err := Studies(root, NewMatcher(".dcm"), ".mp4")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.DCM", got[0].Name)
	assert.Equal(t, "b.dcm", got[1].Name)
}

func TestStudiesErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "x.dcm")
	touch(t, file)

	_, err := Studies(filepath.Join(root, "missing"), NewMatcher(".dcm"), ".mp4")
	assert.Equal(t, apperr.Directory, apperr.KindOf(err))

	_, err = Studies(file, NewMatcher(".dcm"), ".mp4")
	assert.Equal(t, apperr.Directory, apperr.KindOf(err))

	_, err = Studies(root, NewMatcher(".dicom"), ".mp4")
	assert.Equal(t, apperr.EmptyInput, apperr.KindOf(err))
}

func TestStudiesFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	elsewhere := t.TempDir()
	target := filepath.Join(elsewhere, "real.dcm")
	touch(t, target)
	require.NoError(t, os.Symlink(target, filepath.Join(root, "linked.dcm")))
	require.NoError(t, os.Symlink(filepath.Join(elsewhere, "gone.dcm"), filepath.Join(root, "dangling.dcm")))
	require.NoError(t, os.Symlink(elsewhere, filepath.Join(root, "folder.dcm")))

	got, err := Studies(root, NewMatcher(".dcm"), ".mp4")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "linked.dcm", got[0].Name)
	assert.Equal(t, filepath.Join(root, "linked_frames"), got[0].FramesDir)
}
