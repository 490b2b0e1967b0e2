// Package yolov3 - YOLOv3 darknet model.
package yolov3

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// DefaultInputSize is the square network input the stock weights are trained at.
const DefaultInputSize = 416

// YOLOv3 is the instance of the YOLOv3 model.
type YOLOv3 struct {
	options   model.Options
	classes   *catalog.ClassCatalog
	processor *postprocess.Processor
}

// Options returns the options for the YOLOv3 model.
//
// Returns:
//   - The options for the YOLOv3 model.
func (m *YOLOv3) Options() model.Options {
	return m.options
}

// Classes returns the catalog aligned with the score columns.
func (m *YOLOv3) Classes() *catalog.ClassCatalog {
	return m.classes
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
//   - An error if the files, catalog or thresholds are invalid.
func NewModel(args model.NewModelArgs) (*YOLOv3, error) {
	inputSize := args.InputSize
	if inputSize == 0 {
		inputSize = DefaultInputSize
	}
	if inputSize < 32 || inputSize%32 != 0 {
		return nil, errors.Errorf("YOLOv3 input size must be a positive multiple of 32, got %d", inputSize)
	}

	dataset := args.Dataset
	if dataset == "" {
		dataset = catalog.DatasetCOCO
	}
	variant := Variant(args.Variant)
	if variant == "" {
		variant = VariantYOLOv3
	}

	files, err := ResolveFiles(dataset, variant, args.Folder, args.Files)
	if err != nil {
		return nil, err
	}

	args.Name = model.ModelNameYOLOv3
	args.Dataset = dataset
	classes, err := model.ResolveClasses(args, files)
	if err != nil {
		return nil, err
	}

	processor, err := model.NewProcessor(args, classes, postprocess.LayoutDarknet)
	if err != nil {
		return nil, err
	}

	return &YOLOv3{
		options: model.Options{
			Name:      model.ModelNameYOLOv3,
			Family:    model.ModelFamilyDarknet,
			Variant:   string(variant),
			Dataset:   dataset,
			Files:     files,
			InputSize: inputSize,
			Layout:    postprocess.LayoutDarknet,
			Inputs:    args.Inputs,
			Outputs:   args.Outputs,
		},
		classes:   classes,
		processor: processor,
	}, nil
}
