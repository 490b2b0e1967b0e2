// Package model - Contracts shared by the detection models.
package model

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Family is the family of models.
type Family string

const (
	// ModelFamilyDarknet is darknet cfg/weights models executed through OpenCV DNN.
	ModelFamilyDarknet Family = "darknet"
	// ModelFamilyUltralytics is anchor-free ONNX exports with channel-major output.
	ModelFamilyUltralytics Family = "ultralytics"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLOv3 is the name of the YOLOv3 model.
	ModelNameYOLOv3 Name = "yolov3"
	// ModelNameYOLOv8 is the name of the YOLOv8 model.
	ModelNameYOLOv8 Name = "yolov8"
)

// Files locates the on-disk artifacts of a model.
type Files struct {
	// Structure is the network description (darknet .cfg). Empty for ONNX.
	Structure string `json:"structure" yaml:"structure"`
	// Weights is the weights file (.weights or .onnx).
	Weights string `json:"weights" yaml:"weights"`
	// Labels is a class names file, one name per line. Empty selects the
	// dataset's built-in catalog.
	Labels string `json:"labels" yaml:"labels"`
}

// Options describes a constructed model.
type Options struct {
	Name      Name               `json:"name"       yaml:"name"`
	Family    Family             `json:"family"     yaml:"family"`
	Variant   string             `json:"variant"    yaml:"variant"`
	Dataset   catalog.Dataset    `json:"dataset"    yaml:"dataset"`
	Files     Files              `json:"files"      yaml:"files"`
	InputSize int                `json:"input_size" yaml:"input_size"`
	Layout    postprocess.Layout `json:"layout"     yaml:"layout"`
	Inputs    []string           `json:"inputs"     yaml:"inputs"`
	Outputs   []string           `json:"outputs"    yaml:"outputs"`
	// OutputShapes holds one static shape per output name when the model
	// knows it ahead of inference.
	OutputShapes [][]int64 `json:"output_shapes,omitempty" yaml:"output_shapes,omitempty"`
}

// Model turns raw network outputs into detections.
type Model interface {
	Options() Options
	Classes() *catalog.ClassCatalog
	PostProcess(outputs []tensor.Tensor, width, height int) ([]postprocess.Detection, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name    Name            `json:"name"    yaml:"name"`
	Variant string          `json:"variant" yaml:"variant"`
	Dataset catalog.Dataset `json:"dataset" yaml:"dataset"`
	// Folder holds the stock model files for built-in datasets.
	Folder string `json:"folder" yaml:"folder"`
	// Files are used as given for the Custom dataset.
	Files     Files    `json:"files"      yaml:"files"`
	InputSize int      `json:"input_size" yaml:"input_size"`
	Inputs    []string `json:"inputs"     yaml:"inputs"`
	Outputs   []string `json:"outputs"    yaml:"outputs"`
	// NumClasses is the score column count of the network. Zero trusts the catalog.
	NumClasses  int                `json:"num_classes" yaml:"num_classes"`
	Postprocess postprocess.Config `json:"postprocess" yaml:"postprocess"`
	NumWorkers  int                `json:"workers"     yaml:"workers"`

	// Classes overrides the catalog resolved from Files.Labels or Dataset.
	Classes *catalog.ClassCatalog `json:"-" yaml:"-"`
	Logger  *zap.Logger           `json:"-" yaml:"-"`
	Timer   *profiler.StageTimer  `json:"-" yaml:"-"`
}

// ResolveClasses picks the catalog for a model: an explicit catalog first,
// then the labels file, then the dataset's built-in set.
//
// Arguments:
//   - args: The model arguments.
//   - files: The resolved model files.
//
// Returns:
//   - *catalog.ClassCatalog: The catalog.
//   - error: An error if the labels file cannot be read or the dataset has no built-in set.
func ResolveClasses(args NewModelArgs, files Files) (*catalog.ClassCatalog, error) {
	if args.Classes != nil {
		return args.Classes, nil
	}
	if files.Labels != "" {
		return catalog.LoadFile(files.Labels)
	}
	dataset := args.Dataset
	if dataset == "" {
		dataset = catalog.DatasetCOCO
	}
	return catalog.ForDataset(dataset)
}

// NewProcessor builds the post-processing pipeline for a model.
//
// Arguments:
//   - args: The model arguments.
//   - classes: The resolved catalog.
//   - layout: The row layout the model's tensors use after adaptation.
//
// Returns:
//   - *postprocess.Processor: The processor.
//   - error: Any threshold or catalog error.
func NewProcessor(args NewModelArgs, classes *catalog.ClassCatalog, layout postprocess.Layout) (*postprocess.Processor, error) {
	p, err := postprocess.NewProcessor(postprocess.ProcessorOptions{
		Config:     args.Postprocess,
		Classes:    classes,
		Layout:     layout,
		NumClasses: args.NumClasses,
		NumWorkers: args.NumWorkers,
		Logger:     args.Logger,
		Timer:      args.Timer,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s post-processing", args.Name)
	}
	return p, nil
}
