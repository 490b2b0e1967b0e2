// Package postprocess - Decoding, per-class suppression and aggregation of
// raw detector output into labeled detections.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
)

// Candidate is a pre-suppression proposal for one class.
type Candidate struct {
	// The bounding box in source image pixels.
	Box images.Rect
	// The class score that cleared the confidence threshold.
	Score float32
	// The class index into the catalog.
	Class int
}

// Detection is a final, post-suppression result.
type Detection struct {
	// ID is sequential within one invocation, starting at 0.
	ID         int         `json:"id"`
	Class      int         `json:"class_id"`
	ClassName  string      `json:"class_name"`
	Confidence float32     `json:"confidence"`
	Box        images.Rect `json:"box"`
}

// Label formats the overlay text drawn next to a detection, e.g. "cat : 0.900000".
func (d Detection) Label() string {
	return fmt.Sprintf("%s : %f", d.ClassName, d.Confidence)
}

func (d Detection) String() string {
	return fmt.Sprintf("Object #%d %s (confidence %f): (%.2f, %.2f), (%.2f, %.2f)",
		d.ID, d.ClassName, d.Confidence, d.Box.X, d.Box.Y, d.Box.X2(), d.Box.Y2())
}

// Measure names for Detection.Measures.
const (
	MeasureConfidence = "Confidence"
	MeasureBBox       = "Bounding box"
)

// Measure is one cell of the tabular result view of a detection.
type Measure struct {
	Name     string    `json:"name"`
	Values   []float32 `json:"values"`
	ObjectID int       `json:"object_id"`
	Label    string    `json:"label"`
}

// Measures returns the table row for a detection: its confidence and its box
// as {x, y, width, height}.
func (d Detection) Measures() []Measure {
	return []Measure{
		{
			Name:     MeasureConfidence,
			Values:   []float32{d.Confidence},
			ObjectID: d.ID,
			Label:    d.ClassName,
		},
		{
			Name:     MeasureBBox,
			Values:   []float32{d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height},
			ObjectID: d.ID,
			Label:    d.ClassName,
		},
	}
}
