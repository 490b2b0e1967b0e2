package postprocess

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/catalog"
)

var catDog = catalog.MustNew("cat", "dog")

// rows builds a row-major tensor from individual rows of equal width.
func rows(t *testing.T, rs ...[]float32) Tensor {
	t.Helper()
	require.NotEmpty(t, rs)
	var data []float32
	for _, r := range rs {
		require.Len(t, r, len(rs[0]))
		data = append(data, r...)
	}
	tt, err := NewTensor(data, len(rs[0]))
	require.NoError(t, err)
	return tt
}

func row(cx, cy, w, h float32, scores ...float32) []float32 {
	return append([]float32{cx, cy, w, h}, scores...)
}

func TestDecodeScalesToSourceImage(t *testing.T) {
	tensor := rows(t, row(0.5, 0.25, 0.2, 0.1, 0.9, 0.1))

	candidates, err := Decode([]Tensor{tensor}, 200, 100, DefaultConfig(), catDog, LayoutDefault)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Len(t, candidates[0], 1)
	assert.Empty(t, candidates[1])

	c := candidates[0][0]
	assert.Equal(t, 0, c.Class)
	assert.Equal(t, float32(0.9), c.Score)
	assert.InDelta(t, 80, c.Box.X, 1e-4)
	assert.InDelta(t, 20, c.Box.Y, 1e-4)
	assert.InDelta(t, 40, c.Box.Width, 1e-4)
	assert.InDelta(t, 10, c.Box.Height, 1e-4)
}

func TestDecodeMultiLabel(t *testing.T) {
	tensor := rows(t, row(0.5, 0.5, 0.2, 0.2, 0.7, 0.8))

	candidates, err := Decode([]Tensor{tensor}, 100, 100, DefaultConfig(), catDog, LayoutDefault)
	require.NoError(t, err)
	require.Len(t, candidates[0], 1)
	require.Len(t, candidates[1], 1)
	assert.Equal(t, candidates[0][0].Box, candidates[1][0].Box)
	assert.Equal(t, 1, candidates[1][0].Class)
}

func TestDecodeThresholdIsStrict(t *testing.T) {
	tensor := rows(t, row(0.5, 0.5, 0.2, 0.2, 0.5, 0.50001))

	candidates, err := Decode([]Tensor{tensor}, 100, 100, DefaultConfig(), catDog, LayoutDefault)
	require.NoError(t, err)
	assert.Empty(t, candidates[0], "score equal to the threshold is dropped")
	assert.Len(t, candidates[1], 1)
}

func TestDecodeKeepsRowOrderAcrossTensors(t *testing.T) {
	first := rows(t,
		row(0.1, 0.1, 0.1, 0.1, 0.6, 0),
		row(0.2, 0.2, 0.1, 0.1, 0.9, 0),
	)
	second := rows(t, row(0.3, 0.3, 0.1, 0.1, 0.7, 0))

	candidates, err := Decode([]Tensor{first, second}, 100, 100, DefaultConfig(), catDog, LayoutDefault)
	require.NoError(t, err)
	require.Len(t, candidates[0], 3)

	var scores []float32
	for _, c := range candidates[0] {
		scores = append(scores, c.Score)
	}
	assert.Equal(t, []float32{0.6, 0.9, 0.7}, scores)
}

func TestDecodeDarknetLayoutSkipsObjectness(t *testing.T) {
	// Objectness of 0.01 is ignored; scores start at index 5.
	tensor := rows(t, []float32{0.5, 0.5, 0.2, 0.2, 0.01, 0.1, 0.95})

	candidates, err := Decode([]Tensor{tensor}, 100, 100, DefaultConfig(), catDog, LayoutDarknet)
	require.NoError(t, err)
	assert.Empty(t, candidates[0])
	require.Len(t, candidates[1], 1)
	assert.Equal(t, float32(0.95), candidates[1][0].Score)
}

func TestDecodeErrors(t *testing.T) {
	good := rows(t, row(0.5, 0.5, 0.2, 0.2, 0.9, 0.1))
	wide := rows(t, row(0.5, 0.5, 0.2, 0.2, 0.9, 0.1, 0.3))

	tests := []struct {
		name    string
		tensors []Tensor
		classes *catalog.ClassCatalog
		width   int
		target  error
	}{
		{
			name:    "row too wide",
			tensors: []Tensor{good, wide},
			classes: catDog,
			width:   100,
			target:  ErrMalformedTensor,
		},
		{
			name:    "shape disagrees with data",
			tensors: []Tensor{{Data: []float32{1, 2, 3}, Rows: 1, Cols: 6}},
			classes: catDog,
			width:   100,
			target:  ErrMalformedTensor,
		},
		{
			name:    "missing catalog",
			tensors: []Tensor{good},
			width:   100,
			target:  ErrClassCatalogMismatch,
		},
		{
			name:    "invalid image size",
			tensors: []Tensor{good},
			classes: catDog,
			width:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, err := Decode(tt.tensors, tt.width, 100, DefaultConfig(), tt.classes, LayoutDefault)
			require.Error(t, err)
			assert.Nil(t, candidates, "no partial output on error")
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target), "got %v", err)
			}
		})
	}
}

func TestDecodeNoTensors(t *testing.T) {
	candidates, err := Decode(nil, 100, 100, DefaultConfig(), catDog, LayoutDefault)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	assert.Empty(t, candidates[0])
	assert.Empty(t, candidates[1])
}

func TestLayoutRowWidth(t *testing.T) {
	assert.Equal(t, 84, LayoutDefault.RowWidth(80))
	assert.Equal(t, 85, LayoutDarknet.RowWidth(80))
	assert.Equal(t, images.Rect{X: 40, Y: 40, Width: 20, Height: 20}, images.RectFromCenter(50, 50, 20, 20))
}
