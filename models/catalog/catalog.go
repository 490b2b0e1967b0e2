// Package catalog - Ordered class name catalogs aligned with detector score columns.
package catalog

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Dataset identifies the training set a catalog belongs to.
type Dataset string

const (
	// DatasetCOCO is the 80 class COCO set used by the stock YOLO weights.
	DatasetCOCO Dataset = "COCO"
	// DatasetVOC is the 20 class Pascal VOC set.
	DatasetVOC Dataset = "VOC"
	// DatasetCustom means the names come from a user supplied labels file.
	DatasetCustom Dataset = "Custom"
)

// ClassCatalog is an immutable, ordered list of class names. Index i names the
// class whose score sits in the i-th score column of a detector row.
type ClassCatalog struct {
	names []string
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// New builds a catalog from the given names, in order.
//
// Arguments:
//   - names: The class names, index-aligned with the score columns.
//
// Returns:
//   - *ClassCatalog: The catalog.
//   - error: An error if no names are given or a name is blank.
func New(names ...string) (*ClassCatalog, error) {
	if len(names) == 0 {
		return nil, errors.New("class catalog requires at least one name")
	}

	c := &ClassCatalog{
		names:     make([]string, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, errors.Errorf("class name at index %d is blank", i)
		}
		c.names[i] = name
		// First occurrence wins so Index stays stable for duplicated labels.
		if _, ok := c.nameToIdx[name]; !ok {
			c.nameToIdx[name] = i
		}
	}
	return c, nil
}

// MustNew is New that panics on error. Intended for package-level catalogs.
func MustNew(names ...string) *ClassCatalog {
	c, err := New(names...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of classes.
func (c *ClassCatalog) Len() int {
	return len(c.names)
}

// Name returns the class name for a given index.
func (c *ClassCatalog) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(c.names) {
		return "", errors.Errorf("class index %d out of range [0, %d)", idx, len(c.names))
	}
	return c.names[idx], nil
}

// Index returns the class index for a given name.
func (c *ClassCatalog) Index(name string) (int, error) {
	idx, ok := c.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("class %q not found", name)
	}
	return idx, nil
}

// Names returns a copy of the class names.
func (c *ClassCatalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Load reads a labels file with one class name per line. Surrounding
// whitespace is trimmed and blank lines are skipped.
//
// Arguments:
//   - r: The labels source.
//
// Returns:
//   - *ClassCatalog: The catalog in file order.
//   - error: An error if reading fails or the file holds no names.
func Load(r io.Reader) (*ClassCatalog, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading class names")
	}
	return New(names...)
}

// LoadFile reads a labels file from disk. See Load.
func LoadFile(path string) (*ClassCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening labels file %s", path)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, errors.Wrapf(err, "labels file %s", path)
	}
	return c, nil
}

// ForDataset returns the built-in catalog for a dataset. Custom datasets have
// no built-in catalog and must be loaded with LoadFile.
func ForDataset(d Dataset) (*ClassCatalog, error) {
	switch d {
	case DatasetCOCO:
		return COCO, nil
	case DatasetVOC:
		return VOC, nil
	default:
		return nil, errors.Errorf("no built-in class catalog for dataset %q", d)
	}
}
