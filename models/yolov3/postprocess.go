// Package yolov3 - postprocess YOLOv3 model outputs.
package yolov3

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// PostProcess decodes the output of every YOLO layer and runs per-class NMS.
//
// Each output is one detection layer of shape (rows, 5 + classes) or
// (1, rows, 5 + classes) with normalized box coordinates.
//
// Arguments:
//   - outputs: One tensor per unconnected output layer.
//   - width, height: The source image size in pixels.
//
// Returns:
//   - A slice of detections in class-major order.
//   - An error if any layer is malformed.
func (m *YOLOv3) PostProcess(outputs []tensor.Tensor, width, height int) ([]postprocess.Detection, error) {
	tensors := make([]postprocess.Tensor, 0, len(outputs))
	for i, out := range outputs {
		t, err := postprocess.TensorFromDense(out)
		if err != nil {
			return nil, errors.Wrapf(err, "output layer %d", i)
		}
		tensors = append(tensors, t)
	}
	return m.processor.Process(tensors, width, height)
}
