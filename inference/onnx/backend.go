package onnx

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
)

// Options configures the onnxruntime backend.
type Options struct {
	// SharedLibraryPath locates the onnxruntime library. Empty selects
	// DefaultSharedLibraryPath.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// IntraOpThreads parallelizes execution within graph nodes. Zero uses the default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes execution across graph nodes. Zero uses the default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
	// Provider selects the execution provider.
	Provider ProviderConfig `json:"provider" yaml:"provider"`
}

var envMu sync.Mutex

// initEnvironment loads the shared library once per process.
func initEnvironment(path string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if path == "" {
		var err error
		if path, err = DefaultSharedLibraryPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", path)
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "initializing onnxruntime environment")
	}
	return nil
}

// Backend runs an ONNX model with a single bound input and output tensor.
// Calls to Infer are serialized.
type Backend struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	shape     []int
	inputSize int
	logger    *zap.Logger
}

var _ inference.Backend = (*Backend)(nil)

// NewBackend creates an onnxruntime session for a model.
//
// Arguments:
//   - opts: The runtime options.
//   - m: The model options; Files.Weights, InputSize, Inputs, Outputs and
//     OutputShapes are used.
//   - logger: The logger. Nil disables logging.
//
// Returns:
//   - *Backend: The backend.
//   - error: An error if the model cannot be loaded.
func NewBackend(opts Options, m model.Options, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(m.Inputs) != 1 || len(m.Outputs) != 1 || len(m.OutputShapes) != 1 {
		return nil, errors.Errorf("onnx backend needs exactly one input and one output with a known shape, got %d inputs, %d outputs, %d shapes",
			len(m.Inputs), len(m.Outputs), len(m.OutputShapes))
	}
	if _, err := os.Stat(m.Files.Weights); err != nil {
		return nil, errors.Wrapf(err, "model file %s", m.Files.Weights)
	}
	if err := initEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	size := int64(m.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}

	outputShape := m.OutputShapes[0]
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	session, err := newSession(opts, m, input, output)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	shape := make([]int, len(outputShape))
	for i, d := range outputShape {
		shape[i] = int(d)
	}

	logger.Named("onnx").Info("session created",
		zap.String("model", m.Files.Weights),
		zap.String("provider", string(opts.Provider.Provider)),
		zap.Int("input_size", m.InputSize),
		zap.Ints("output_shape", shape),
	)

	return &Backend{
		session:   session,
		input:     input,
		output:    output,
		shape:     shape,
		inputSize: m.InputSize,
		logger:    logger.Named("onnx"),
	}, nil
}

func newSession(opts Options, m model.Options, input, output *ort.Tensor[float32]) (*ort.AdvancedSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
		return nil, errors.Wrap(err, "setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
		return nil, errors.Wrap(err, "setting inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, errors.Wrap(err, "setting graph optimization level")
	}
	if err := appendProvider(options, opts.Provider); err != nil {
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		m.Files.Weights,
		m.Inputs,
		m.Outputs,
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating onnxruntime session")
	}
	return session, nil
}

// Infer implements inference.Backend.
func (b *Backend) Infer(ctx context.Context, img image.Image) ([]tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, errors.New("backend is closed")
	}
	if err := inference.PrepareInput(img, b.inputSize, b.input.GetData()); err != nil {
		return nil, errors.Wrap(err, "preparing input")
	}
	if err := b.session.Run(); err != nil {
		return nil, errors.Wrap(err, "onnx run")
	}

	data := append([]float32(nil), b.output.GetData()...)
	return []tensor.Tensor{
		tensor.New(tensor.WithShape(b.shape...), tensor.WithBacking(data)),
	}, nil
}

// Close implements inference.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	err := b.session.Destroy()
	if e := b.input.Destroy(); err == nil {
		err = e
	}
	if e := b.output.Destroy(); err == nil {
		err = e
	}
	b.session, b.input, b.output = nil, nil, nil
	return err
}
