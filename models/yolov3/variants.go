package yolov3

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/model"
)

// Variant is a published YOLOv3 network.
type Variant string

const (
	// VariantYOLOv3 is the full size YOLOv3 network.
	VariantYOLOv3 Variant = "YOLOv3"
	// VariantTiny is the reduced two-scale network.
	VariantTiny Variant = "Tiny YOLOv3"
	// VariantSPP adds spatial pyramid pooling.
	VariantSPP Variant = "YOLOv3-spp"
	// VariantCSResNeXt50 is the CSResNeXt50 PANet SPP backbone.
	VariantCSResNeXt50 Variant = "CSResNeXt50-panet-spp-optimal"
)

// Variants lists the networks with stock COCO weights.
var Variants = []Variant{VariantYOLOv3, VariantTiny, VariantSPP, VariantCSResNeXt50}

// LabelsFileCOCO is the class names file shipped with the stock weights.
const LabelsFileCOCO = "coco_names.txt"

var variantFiles = map[Variant]model.Files{
	VariantYOLOv3:      {Structure: "yolov3.cfg", Weights: "yolov3.weights"},
	VariantTiny:        {Structure: "yolov3-tiny.cfg", Weights: "yolov3-tiny.weights"},
	VariantSPP:         {Structure: "yolov3-spp.cfg", Weights: "yolov3-spp.weights"},
	VariantCSResNeXt50: {Structure: "csresnext50-panet-spp-original-optimal.cfg", Weights: "csresnext50-panet-spp-original-optimal_final.weights"},
}

// ResolveFiles locates the cfg, weights and labels files of a model.
//
// For the COCO dataset the stock file names of the variant are joined to
// folder; a labels path in explicit is kept, otherwise the built-in COCO
// catalog is used. Any other dataset takes explicit as is and requires both
// the structure and the weights files.
//
// Arguments:
//   - dataset: The training dataset.
//   - variant: The network variant, only used for COCO.
//   - folder: The folder holding the stock files.
//   - explicit: User supplied paths.
//
// Returns:
//   - model.Files: The resolved files.
//   - error: An error for unknown variants or incomplete custom paths.
func ResolveFiles(dataset catalog.Dataset, variant Variant, folder string, explicit model.Files) (model.Files, error) {
	if dataset == "" || dataset == catalog.DatasetCOCO {
		if variant == "" {
			variant = VariantYOLOv3
		}
		files, ok := variantFiles[variant]
		if !ok {
			return model.Files{}, errors.Errorf("unknown YOLOv3 variant %q", variant)
		}
		files.Structure = filepath.Join(folder, files.Structure)
		files.Weights = filepath.Join(folder, files.Weights)
		files.Labels = explicit.Labels
		return files, nil
	}

	if explicit.Structure == "" || explicit.Weights == "" {
		return model.Files{}, errors.Errorf("dataset %q requires structure and weights files", dataset)
	}
	return explicit, nil
}
