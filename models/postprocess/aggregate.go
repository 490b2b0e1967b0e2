package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/catalog"
)

// Aggregate flattens per-class survivors into the final detection list.
//
// Classes are visited in ascending id order and each class's survivors in the
// order suppression accepted them. IDs are assigned sequentially from 0 in
// that order, so identical inputs always produce identical output.
//
// Arguments:
//   - survivors: Indexed by class id, as returned by suppression.
//   - classes: The catalog used to resolve class names.
//
// Returns:
//   - []Detection: One detection per survivor, never nil.
//   - error: ErrClassCatalogMismatch if survivors has more classes than the catalog.
func Aggregate(survivors [][]Candidate, classes *catalog.ClassCatalog) ([]Detection, error) {
	if classes == nil || len(survivors) > classes.Len() {
		n := 0
		if classes != nil {
			n = classes.Len()
		}
		return nil, errors.Wrapf(ErrClassCatalogMismatch,
			"%d survivor classes for a catalog of %d names", len(survivors), n)
	}

	total := 0
	for _, s := range survivors {
		total += len(s)
	}

	detections := make([]Detection, 0, total)
	id := 0
	for classID, list := range survivors {
		name, err := classes.Name(classID)
		if err != nil {
			return nil, errors.Wrap(ErrClassCatalogMismatch, err.Error())
		}
		for _, c := range list {
			detections = append(detections, Detection{
				ID:         id,
				Class:      classID,
				ClassName:  name,
				Confidence: c.Score,
				Box:        c.Box,
			})
			id++
		}
	}

	return detections, nil
}
