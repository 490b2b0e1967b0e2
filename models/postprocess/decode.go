package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/catalog"
)

// Layout describes where the per-class scores begin in a detector row. The
// first four values are always {cx, cy, w, h}.
type Layout struct {
	ScoreOffset int `json:"score_offset" yaml:"score_offset"`
}

var (
	// LayoutDefault rows are 4 + nbClasses wide with scores from index 4.
	LayoutDefault = Layout{ScoreOffset: 4}

	// LayoutDarknet rows are 5 + nbClasses wide: index 4 holds an objectness
	// value that is not consulted, scores start at index 5.
	LayoutDarknet = Layout{ScoreOffset: 5}
)

// RowWidth returns the expected row width for the given class count.
func (l Layout) RowWidth(nbClasses int) int {
	return l.ScoreOffset + nbClasses
}

// Decode turns raw detector rows into per-class candidate lists.
//
// Every row is scaled from normalized coordinates to source image pixels and
// emits one Candidate per class whose score is strictly above the confidence
// threshold, so a single row can feed several classes.
//
// Arguments:
//   - tensors: The raw output tensors for a single image.
//   - width, height: The source image size in pixels.
//   - cfg: The thresholds; only ConfidenceThreshold is used here.
//   - classes: The catalog; its length is the number of score columns.
//   - layout: Where the scores start in a row.
//
// Returns:
//   - [][]Candidate: Indexed by class id, each list in row order.
//   - error: ErrMalformedTensor if any tensor row width is not
//     layout.ScoreOffset + classes.Len(). Nothing is returned on error.
func Decode(tensors []Tensor, width, height int, cfg Config, classes *catalog.ClassCatalog, layout Layout) ([][]Candidate, error) {
	if classes == nil || classes.Len() == 0 {
		return nil, errors.Wrap(ErrClassCatalogMismatch, "decode requires a non-empty class catalog")
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid source image size %dx%d", width, height)
	}

	nbClasses := classes.Len()
	rowWidth := layout.RowWidth(nbClasses)
	for i, t := range tensors {
		if err := t.Validate(); err != nil {
			return nil, errors.Wrapf(err, "tensor %d", i)
		}
		if t.Cols != rowWidth {
			return nil, errors.Wrapf(ErrMalformedTensor,
				"tensor %d: row width %d, expected %d (%d classes)", i, t.Cols, rowWidth, nbClasses)
		}
	}

	w := float32(width)
	h := float32(height)
	candidates := make([][]Candidate, nbClasses)
	for _, t := range tensors {
		for i := 0; i < t.Rows; i++ {
			row := t.Row(i)
			box := images.RectFromCenter(row[0]*w, row[1]*h, row[2]*w, row[3]*h)

			scores := row[layout.ScoreOffset:]
			for j := 0; j < nbClasses; j++ {
				if scores[j] > cfg.ConfidenceThreshold {
					candidates[j] = append(candidates[j], Candidate{
						Box:   box,
						Score: scores[j],
						Class: j,
					})
				}
			}
		}
	}

	return candidates, nil
}
