package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectoryImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-10.jpg", "frame-2.png", "b.jpeg", "a.JPG", "notes.txt", "frame-x.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o700))

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, img := range images {
		names = append(names, filepath.Base(img.Path))
		assert.Equal(t, filepath.Base(img.Path), string(img.Data))
	}
	assert.Equal(t, []string{"frame-2.png", "frame-10.jpg", "a.JPG", "b.jpeg", "frame-x.jpg"}, names)
	assert.Equal(t, 2, images[0].Frame)
	assert.Equal(t, -1, images[2].Frame)
}

func TestLoadDirectoryImageFilesMissing(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFrameNumber(t *testing.T) {
	tests := map[string]int{
		"frame-0.jpg":   0,
		"frame-823.png": 823,
		"frame-.jpg":    -1,
		"frame--1.jpg":  -1,
		"img-3.jpg":     -1,
	}
	for name, expected := range tests {
		assert.Equal(t, expected, frameNumber(name), name)
	}
}
