// Package models - registry for models.
package models

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/yolov3"
	"github.com/nvr-ai/go-detect/models/yolov8"
)

// NewModel creates a new detection model instance based on the specified model name.
//
// The returned model owns its post-processing pipeline: thresholds, class
// catalog and row layout are validated here, before any image is seen.
//
// Arguments:
//   - args: Configuration parameters specifying the model and its files.
//
// Returns:
//   - model.Model: A fully configured model instance implementing the Model interface.
//   - error: An error if the model name is unsupported or validation fails.
//
// Example:
//
//	m, err := NewModel(model.NewModelArgs{
//	    Name:        model.ModelNameYOLOv3,
//	    Variant:     string(yolov3.VariantTiny),
//	    Folder:      "/models/yolov3",
//	    Postprocess: postprocess.DefaultConfig(),
//	})
func NewModel(args model.NewModelArgs) (model.Model, error) {
	switch args.Name {
	case model.ModelNameYOLOv3:
		m, err := yolov3.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameYOLOv8:
		m, err := yolov8.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.Errorf("unsupported model name: %q", args.Name)
	}
}
