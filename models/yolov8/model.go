// Package yolov8 - YOLOv8 anchor-free ONNX model.
package yolov8

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

const (
	// DefaultInputSize is the square input of the stock exports.
	DefaultInputSize = 640
	// DefaultVariant is the nano network; the weights file is <variant>.onnx.
	DefaultVariant = "yolov8n"
)

// strides are the downsampling factors of the three detection heads.
var strides = []int{8, 16, 32}

var (
	defaultInputs  = []string{"images"}
	defaultOutputs = []string{"output0"}
)

// Anchors returns the number of anchor points, one output column each, for a
// square input of the given size.
func Anchors(inputSize int) int {
	n := 0
	for _, s := range strides {
		side := inputSize / s
		n += side * side
	}
	return n
}

// YOLOv8 is the instance of the YOLOv8 model.
type YOLOv8 struct {
	options   model.Options
	classes   *catalog.ClassCatalog
	processor *postprocess.Processor
}

// Options returns the options for the YOLOv8 model.
func (m *YOLOv8) Options() model.Options {
	return m.options
}

// Classes returns the catalog aligned with the score columns.
func (m *YOLOv8) Classes() *catalog.ClassCatalog {
	return m.classes
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model. Files.Weights wins over
//     Folder and Variant when set.
//
// Returns:
//   - The model.
//   - An error if the files, catalog or thresholds are invalid.
func NewModel(args model.NewModelArgs) (*YOLOv8, error) {
	inputSize := args.InputSize
	if inputSize == 0 {
		inputSize = DefaultInputSize
	}
	if inputSize < 32 || inputSize%32 != 0 {
		return nil, errors.Errorf("YOLOv8 input size must be a positive multiple of 32, got %d", inputSize)
	}

	variant := args.Variant
	if variant == "" {
		variant = DefaultVariant
	}

	files := args.Files
	if files.Weights == "" {
		if args.Folder == "" {
			return nil, errors.New("YOLOv8 requires a weights file or a model folder")
		}
		files.Weights = filepath.Join(args.Folder, variant+".onnx")
	}

	inputs, outputs := args.Inputs, args.Outputs
	if len(inputs) == 0 {
		inputs = defaultInputs
	}
	if len(outputs) == 0 {
		outputs = defaultOutputs
	}

	args.Name = model.ModelNameYOLOv8
	classes, err := model.ResolveClasses(args, files)
	if err != nil {
		return nil, err
	}

	processor, err := model.NewProcessor(args, classes, postprocess.LayoutDefault)
	if err != nil {
		return nil, err
	}

	dataset := args.Dataset
	if dataset == "" {
		dataset = catalog.DatasetCOCO
	}

	return &YOLOv8{
		options: model.Options{
			Name:      model.ModelNameYOLOv8,
			Family:    model.ModelFamilyUltralytics,
			Variant:   variant,
			Dataset:   dataset,
			Files:     files,
			InputSize: inputSize,
			Layout:    postprocess.LayoutDefault,
			Inputs:    inputs,
			Outputs:   outputs,
			OutputShapes: [][]int64{
				{1, int64(postprocess.LayoutDefault.RowWidth(classes.Len())), int64(Anchors(inputSize))},
			},
		},
		classes:   classes,
		processor: processor,
	}, nil
}
