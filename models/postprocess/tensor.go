package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Tensor is a row-major matrix of raw detector output. Each row is one
// candidate: {cx, cy, w, h} normalized to [0, 1], then per-class scores.
type Tensor struct {
	Data []float32
	Rows int
	Cols int
}

// NewTensor wraps a flat buffer as a tensor with the given row width.
//
// Arguments:
//   - data: The flat row-major buffer. It is not copied.
//   - cols: The row width.
//
// Returns:
//   - Tensor: The wrapped tensor.
//   - error: ErrMalformedTensor if the buffer is not a whole number of rows.
func NewTensor(data []float32, cols int) (Tensor, error) {
	if cols <= 0 {
		return Tensor{}, errors.Wrapf(ErrMalformedTensor, "row width must be positive, got %d", cols)
	}
	if len(data)%cols != 0 {
		return Tensor{}, errors.Wrapf(ErrMalformedTensor,
			"%d values is not a whole number of %d wide rows", len(data), cols)
	}
	return Tensor{Data: data, Rows: len(data) / cols, Cols: cols}, nil
}

// Row returns the i-th row. It shares memory with the tensor.
func (t Tensor) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols]
}

// Validate checks the buffer length agrees with the declared shape.
func (t Tensor) Validate() error {
	if t.Rows < 0 || t.Cols < 0 || len(t.Data) != t.Rows*t.Cols {
		return errors.Wrapf(ErrMalformedTensor,
			"shape %dx%d does not match %d values", t.Rows, t.Cols, len(t.Data))
	}
	return nil
}

// TensorFromDense adapts a gorgonia tensor to a Tensor. Accepted shapes are
// (rows, cols) and (1, rows, cols); float32 and float64 data are supported.
// Views are materialized first so transposed tensors read in logical order.
//
// Arguments:
//   - t: The tensor to adapt.
//
// Returns:
//   - Tensor: A tensor sharing memory with t for float32 data, copied otherwise.
//   - error: ErrMalformedTensor for unsupported shapes or data types.
func TensorFromDense(t tensor.Tensor) (Tensor, error) {
	if v, ok := t.(tensor.View); ok && v.IsMaterializable() {
		t = v.Materialize()
	}

	shape := t.Shape()
	var rows, cols int
	switch {
	case len(shape) == 2:
		rows, cols = shape[0], shape[1]
	case len(shape) == 3 && shape[0] == 1:
		rows, cols = shape[1], shape[2]
	default:
		return Tensor{}, errors.Wrapf(ErrMalformedTensor, "unsupported tensor shape %v", shape)
	}

	var data []float32
	switch backing := t.Data().(type) {
	case []float32:
		data = backing
	case []float64:
		data = make([]float32, len(backing))
		for i, v := range backing {
			data[i] = float32(v)
		}
	default:
		return Tensor{}, errors.Wrapf(ErrMalformedTensor, "unsupported tensor dtype %v", t.Dtype())
	}

	out := Tensor{Data: data, Rows: rows, Cols: cols}
	if err := out.Validate(); err != nil {
		return Tensor{}, err
	}
	return out, nil
}
