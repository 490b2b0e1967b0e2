// Package inference - Runs detection models on images.
package inference

import (
	"context"
	"image"

	"gorgonia.org/tensor"
)

// BackendType names an inference runtime.
type BackendType string

const (
	// BackendONNX runs ONNX models with onnxruntime.
	BackendONNX BackendType = "onnx"
	// BackendOpenCV runs darknet models with the OpenCV DNN module.
	BackendOpenCV BackendType = "opencv"
)

// Backends is a list of all supported backends.
var Backends = []BackendType{BackendONNX, BackendOpenCV}

// Backend runs a network on a single image.
type Backend interface {
	// Infer preprocesses img, runs the network and returns its raw outputs.
	// Implementations copy outputs out of runtime owned memory.
	Infer(ctx context.Context, img image.Image) ([]tensor.Tensor, error)
	// Close releases the runtime resources.
	Close() error
}
