// Package util - Input file helpers.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ImageExtensions are the file extensions LoadDirectoryImageFiles picks up.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from a "frame-<n>" name, or -1.
	Frame int
}

// LoadImageFile reads a single image file.
func LoadImageFile(path string) (ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "reading image %s", path)
	}
	return ImageFile{Path: path, Data: data, Frame: frameNumber(filepath.Base(path))}, nil
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Numbered frames first in frame order, then the other files by name.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}

	var images []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !isImage(entry.Name()) {
			continue
		}
		img, err := LoadImageFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		switch {
		case a.Frame >= 0 && b.Frame >= 0:
			return a.Frame < b.Frame
		case a.Frame >= 0 || b.Frame >= 0:
			return a.Frame >= 0
		default:
			return a.Path < b.Path
		}
	})

	return images, nil
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// frameNumber parses "frame-<n>.<ext>" names.
func frameNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(base, "frame-") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "frame-"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}
