// Package yolov8 - postprocess YOLOv8 model outputs.
package yolov8

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// PostProcess adapts the channel-major output to detector rows and runs
// per-class NMS.
//
// Arguments:
//   - outputs: Tensors of shape (1, 4 + classes, anchors) or (4 + classes, anchors)
//     with boxes in network input pixels.
//   - width, height: The source image size in pixels.
//
// Returns:
//   - A slice of detections in class-major order.
//   - An error if any output is malformed.
func (m *YOLOv8) PostProcess(outputs []tensor.Tensor, width, height int) ([]postprocess.Detection, error) {
	tensors := make([]postprocess.Tensor, 0, len(outputs))
	for i, out := range outputs {
		t, err := m.toRows(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}
		tensors = append(tensors, t)
	}
	return m.processor.Process(tensors, width, height)
}

// toRows transposes an output to one row per anchor and normalizes the box
// columns by the input size.
func (m *YOLOv8) toRows(out tensor.Tensor) (postprocess.Tensor, error) {
	var axes []int
	switch out.Dims() {
	case 2:
		axes = []int{1, 0}
	case 3:
		axes = []int{0, 2, 1}
	default:
		return postprocess.Tensor{}, errors.Wrapf(postprocess.ErrMalformedTensor,
			"unsupported output shape %v", out.Shape())
	}

	transposed, err := tensor.Transpose(out, axes...)
	if err != nil {
		return postprocess.Tensor{}, errors.Wrap(err, "transposing output")
	}

	rows, err := postprocess.TensorFromDense(transposed)
	if err != nil {
		return postprocess.Tensor{}, err
	}
	if rows.Cols < 4 {
		return postprocess.Tensor{}, errors.Wrapf(postprocess.ErrMalformedTensor,
			"row width %d cannot hold a box", rows.Cols)
	}

	scale := 1 / float32(m.options.InputSize)
	for r := 0; r < rows.Rows; r++ {
		row := rows.Row(r)
		for c := 0; c < 4; c++ {
			row[c] *= scale
		}
	}
	return rows, nil
}
