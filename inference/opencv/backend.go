// Package opencv - OpenCV DNN inference backend for darknet models.
package opencv

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
)

// Target selects the device OpenCV DNN computes on.
type Target string

const (
	// TargetCPU runs on the CPU.
	TargetCPU Target = "cpu"
	// TargetCUDA runs on an NVIDIA GPU; OpenCV must be built with CUDA.
	TargetCUDA Target = "cuda"
)

// Options configures the OpenCV backend.
type Options struct {
	Target Target `json:"target" yaml:"target"`
}

// Backend runs a darknet cfg/weights network. Calls to Infer are serialized.
type Backend struct {
	mu        sync.Mutex
	net       gocv.Net
	outputs   []string
	inputSize int
	closed    bool
}

var _ inference.Backend = (*Backend)(nil)

// NewBackend loads a darknet network.
//
// Arguments:
//   - opts: The backend options.
//   - m: The model options; Files.Structure, Files.Weights and InputSize are used.
//   - logger: The logger. Nil disables logging.
//
// Returns:
//   - *Backend: The backend.
//   - error: An error if the network cannot be loaded.
func NewBackend(opts Options, m model.Options, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, path := range []string{m.Files.Structure, m.Files.Weights} {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "model file %s", path)
		}
	}

	net := gocv.ReadNetFromDarknet(m.Files.Structure, m.Files.Weights)
	if net.Empty() {
		return nil, errors.Errorf("failed to load darknet model %s", m.Files.Weights)
	}

	backend, target := gocv.NetBackendOpenCV, gocv.NetTargetCPU
	if opts.Target == TargetCUDA {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "setting DNN backend")
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "setting DNN target")
	}

	outputs := outputLayerNames(net)
	if len(outputs) == 0 {
		net.Close()
		return nil, errors.New("network has no unconnected output layers")
	}

	logger.Named("opencv").Info("network loaded",
		zap.String("cfg", m.Files.Structure),
		zap.String("weights", m.Files.Weights),
		zap.Int("input_size", m.InputSize),
		zap.Strings("outputs", outputs),
	)

	return &Backend{net: net, outputs: outputs, inputSize: m.InputSize}, nil
}

// outputLayerNames lists the YOLO layers the network ends in.
func outputLayerNames(net gocv.Net) []string {
	ids := net.GetUnconnectedOutLayers()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		layer := net.GetLayer(id)
		names = append(names, layer.GetName())
		layer.Close()
	}
	return names
}

// Infer implements inference.Backend. Grayscale images are expanded to BGR
// and the blob is scaled by 1/255 with no mean, no channel swap and no crop.
func (b *Backend) Infer(ctx context.Context, img image.Image) ([]tensor.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := toBGR(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(b.inputSize, b.inputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("backend is closed")
	}

	b.net.SetInput(blob, "")
	layers := b.net.ForwardLayers(b.outputs)
	defer func() {
		for i := range layers {
			layers[i].Close()
		}
	}()

	out := make([]tensor.Tensor, 0, len(layers))
	for i, layer := range layers {
		data, err := layer.DataPtrFloat32()
		if err != nil {
			return nil, errors.Wrapf(err, "reading output layer %s", b.outputs[i])
		}
		backing := append([]float32(nil), data...)
		out = append(out, tensor.New(tensor.WithShape(layer.Rows(), layer.Cols()), tensor.WithBacking(backing)))
	}
	return out, nil
}

// toBGR converts img to a three channel BGR Mat.
func toBGR(img image.Image) (gocv.Mat, error) {
	if gray, ok := img.(*image.Gray); ok {
		single, err := gocv.ImageGrayToMatGray(gray)
		if err != nil {
			return gocv.NewMat(), errors.Wrap(err, "converting grayscale image")
		}
		defer single.Close()

		bgr := gocv.NewMat()
		gocv.CvtColor(single, &bgr, gocv.ColorGrayToBGR)
		return bgr, nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "converting image")
	}
	return mat, nil
}

// Close implements inference.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.net.Close()
}
