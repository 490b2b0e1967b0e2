package yolov3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

func TestResolveFiles(t *testing.T) {
	tests := []struct {
		name     string
		dataset  catalog.Dataset
		variant  Variant
		explicit model.Files
		expected model.Files
		err      bool
	}{
		{
			name:     "stock yolov3",
			dataset:  catalog.DatasetCOCO,
			variant:  VariantYOLOv3,
			expected: model.Files{Structure: "m/yolov3.cfg", Weights: "m/yolov3.weights"},
		},
		{
			name:     "tiny",
			dataset:  catalog.DatasetCOCO,
			variant:  VariantTiny,
			expected: model.Files{Structure: "m/yolov3-tiny.cfg", Weights: "m/yolov3-tiny.weights"},
		},
		{
			name:     "spp",
			dataset:  catalog.DatasetCOCO,
			variant:  VariantSPP,
			expected: model.Files{Structure: "m/yolov3-spp.cfg", Weights: "m/yolov3-spp.weights"},
		},
		{
			name:    "csresnext50",
			dataset: catalog.DatasetCOCO,
			variant: VariantCSResNeXt50,
			expected: model.Files{
				Structure: "m/csresnext50-panet-spp-original-optimal.cfg",
				Weights:   "m/csresnext50-panet-spp-original-optimal_final.weights",
			},
		},
		{
			name:     "coco keeps explicit labels",
			dataset:  catalog.DatasetCOCO,
			variant:  VariantYOLOv3,
			explicit: model.Files{Structure: "ignored.cfg", Labels: "m/coco_names.txt"},
			expected: model.Files{Structure: "m/yolov3.cfg", Weights: "m/yolov3.weights", Labels: "m/coco_names.txt"},
		},
		{
			name:    "unknown variant",
			dataset: catalog.DatasetCOCO,
			variant: "YOLOv5",
			err:     true,
		},
		{
			name:     "custom uses explicit paths",
			dataset:  catalog.DatasetCustom,
			explicit: model.Files{Structure: "a.cfg", Weights: "a.weights", Labels: "a.names"},
			expected: model.Files{Structure: "a.cfg", Weights: "a.weights", Labels: "a.names"},
		},
		{
			name:     "custom without weights",
			dataset:  catalog.DatasetCustom,
			explicit: model.Files{Structure: "a.cfg"},
			err:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := ResolveFiles(tt.dataset, tt.variant, "m", tt.explicit)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, files)
		})
	}
}

func TestNewModelDefaults(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{Folder: "m", Postprocess: postprocess.DefaultConfig()})
	require.NoError(t, err)

	opts := m.Options()
	assert.Equal(t, model.ModelNameYOLOv3, opts.Name)
	assert.Equal(t, model.ModelFamilyDarknet, opts.Family)
	assert.Equal(t, string(VariantYOLOv3), opts.Variant)
	assert.Equal(t, catalog.DatasetCOCO, opts.Dataset)
	assert.Equal(t, DefaultInputSize, opts.InputSize)
	assert.Equal(t, postprocess.LayoutDarknet, opts.Layout)
	assert.Same(t, catalog.COCO, m.Classes())
}

func TestNewModelErrors(t *testing.T) {
	tests := []struct {
		name   string
		args   model.NewModelArgs
		target error
	}{
		{
			name: "input size not a multiple of 32",
			args: model.NewModelArgs{InputSize: 400, Postprocess: postprocess.DefaultConfig()},
		},
		{
			name:   "class count disagrees with catalog",
			args:   model.NewModelArgs{NumClasses: 20, Postprocess: postprocess.DefaultConfig()},
			target: postprocess.ErrClassCatalogMismatch,
		},
		{
			name:   "invalid threshold",
			args:   model.NewModelArgs{Postprocess: postprocess.Config{ConfidenceThreshold: 0.5, NMSThreshold: -1}},
			target: postprocess.ErrInvalidThreshold,
		},
		{
			name: "missing labels file",
			args: model.NewModelArgs{
				Dataset:     catalog.DatasetCustom,
				Files:       model.Files{Structure: "a.cfg", Weights: "a.weights", Labels: "does-not-exist.names"},
				Postprocess: postprocess.DefaultConfig(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel(tt.args)
			require.Error(t, err)
			assert.Nil(t, m)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
			}
		})
	}
}

func TestNewModelCustomLabels(t *testing.T) {
	labels := filepath.Join(t.TempDir(), "pets.names")
	require.NoError(t, os.WriteFile(labels, []byte("cat\ndog\n"), 0o600))

	m, err := NewModel(model.NewModelArgs{
		Dataset:     catalog.DatasetCustom,
		Files:       model.Files{Structure: "pets.cfg", Weights: "pets.weights", Labels: labels},
		NumClasses:  2,
		Postprocess: postprocess.DefaultConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, m.Classes().Names())
}

func TestPostProcessAcrossLayers(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{
		Classes:     catalog.MustNew("cat", "dog"),
		Postprocess: postprocess.DefaultConfig(),
	})
	require.NoError(t, err)

	// Two detection layers; the objectness column is never consulted.
	coarse := tensor.New(tensor.WithShape(2, 7), tensor.WithBacking([]float32{
		0.5, 0.5, 0.2, 0.2, 0.0, 0.9, 0.1,
		0.5, 0.5, 0.2, 0.25, 1.0, 0.8, 0.0,
	}))
	fine := tensor.New(tensor.WithShape(1, 1, 7), tensor.WithBacking([]float32{
		0.1, 0.1, 0.1, 0.1, 0.0, 0.0, 0.7,
	}))

	detections, err := m.PostProcess([]tensor.Tensor{coarse, fine}, 100, 100)
	require.NoError(t, err)
	require.Len(t, detections, 2)

	assert.Equal(t, "cat", detections[0].ClassName)
	assert.Equal(t, float32(0.9), detections[0].Confidence)
	assert.InDelta(t, 40, detections[0].Box.X, 1e-4)
	assert.Equal(t, "dog", detections[1].ClassName)
	assert.Equal(t, 1, detections[1].ID)
	assert.InDelta(t, 5, detections[1].Box.X, 1e-4)
}

func TestPostProcessRejectsNonDarknetRows(t *testing.T) {
	m, err := NewModel(model.NewModelArgs{
		Classes:     catalog.MustNew("cat", "dog"),
		Postprocess: postprocess.DefaultConfig(),
	})
	require.NoError(t, err)

	rows := tensor.New(tensor.WithShape(1, 6), tensor.WithBacking([]float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.1}))
	detections, err := m.PostProcess([]tensor.Tensor{rows}, 100, 100)
	assert.True(t, errors.Is(err, postprocess.ErrMalformedTensor))
	assert.Nil(t, detections)
}
