// Package onnx - onnxruntime inference backend.
package onnx

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/go-detect/models/model"
)

// Provider names an onnxruntime execution provider.
type Provider string

const (
	// ProviderCPU uses the default CPU execution provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA uses NVIDIA CUDA for GPU acceleration.
	ProviderCUDA Provider = "cuda"
	// ProviderCoreML uses Apple CoreML for macOS/iOS acceleration.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO uses Intel OpenVINO for inference optimization.
	ProviderOpenVINO Provider = "openvino"
)

// Providers is a list of all supported execution providers.
var Providers = []Provider{ProviderCPU, ProviderCUDA, ProviderCoreML, ProviderOpenVINO}

// ProviderConfig selects and tunes the execution provider.
type ProviderConfig struct {
	Provider Provider `json:"provider" yaml:"provider"`
	// DeviceID selects the GPU for CUDA and the device for OpenVINO.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// DeviceType is the OpenVINO device, such as CPU, GPU or NPU.
	DeviceType string `json:"device_type" yaml:"device_type"`
	// Precision is the OpenVINO inference precision.
	Precision model.Precision `json:"precision" yaml:"precision"`
	// Threads is the OpenVINO thread count. Zero keeps the provider default.
	Threads int `json:"threads" yaml:"threads"`
	// GPUMemLimit caps the CUDA memory arena in bytes. Zero is unlimited.
	GPUMemLimit int64 `json:"gpu_mem_limit" yaml:"gpu_mem_limit"`
}

// cudaOptions renders the CUDA provider options.
//
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
func (c ProviderConfig) cudaOptions() map[string]string {
	opts := map[string]string{
		"device_id":                 strconv.Itoa(c.DeviceID),
		"do_copy_in_default_stream": "1",
	}
	if c.GPUMemLimit > 0 {
		opts["gpu_mem_limit"] = strconv.FormatInt(c.GPUMemLimit, 10)
	}
	return opts
}

// openVINOOptions renders the OpenVINO provider options.
//
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
func (c ProviderConfig) openVINOOptions() map[string]string {
	deviceType := c.DeviceType
	if deviceType == "" {
		deviceType = "CPU"
	}
	precision := c.Precision
	if precision == "" {
		precision = model.PrecisionFP32
	}
	opts := map[string]string{
		"device_id":   strconv.Itoa(c.DeviceID),
		"device_type": deviceType,
		"precision":   string(precision),
	}
	if c.Threads > 0 {
		opts["num_of_threads"] = strconv.Itoa(c.Threads)
	}
	return opts
}

// appendProvider enables the configured execution provider on options.
// Proper EP setup can dramatically accelerate inference; CPU needs no setup.
func appendProvider(options *ort.SessionOptions, c ProviderConfig) error {
	switch c.Provider {
	case "", ProviderCPU:
		return nil
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "enabling CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(c.openVINOOptions()); err != nil {
			return errors.Wrap(err, "enabling OpenVINO")
		}
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "creating CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(c.cudaOptions()); err != nil {
			return errors.Wrap(err, "converting CUDA options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "enabling CUDA")
		}
	default:
		return errors.Errorf("unsupported execution provider %q", c.Provider)
	}
	return nil
}
