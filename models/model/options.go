// Package model - Model precision options.
//
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
package model

// Precision represents the precision of the model.
type Precision string

const (
	// PrecisionAccuracy keeps the precision the model was exported with.
	// (OpenVINO's default input precision type.)
	PrecisionAccuracy Precision = "ACCURACY"
	// PrecisionFP32 represents 32-bit floating point precision.
	PrecisionFP32 Precision = "FP32"
	// PrecisionFP16 represents 16-bit floating point precision.
	PrecisionFP16 Precision = "FP16"
)
