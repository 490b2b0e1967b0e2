package inference

import (
	"context"
	"image"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// fakeBackend returns canned darknet rows.
type fakeBackend struct {
	rows   []float32
	cols   int
	err    error
	calls  atomic.Int32
	closed bool
}

func (f *fakeBackend) Infer(_ context.Context, _ image.Image) ([]tensor.Tensor, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	backing := append([]float32(nil), f.rows...)
	return []tensor.Tensor{
		tensor.New(tensor.WithShape(len(backing)/f.cols, f.cols), tensor.WithBacking(backing)),
	}, nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func yolov3Args() model.NewModelArgs {
	return model.NewModelArgs{
		Name:        model.ModelNameYOLOv3,
		Classes:     catalog.MustNew("cat", "dog"),
		Postprocess: postprocess.DefaultConfig(),
	}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rows: []float32{
			0.5, 0.5, 0.2, 0.2, 1, 0.9, 0.1,
			0.5, 0.5, 0.2, 0.25, 1, 0.8, 0,
			0.1, 0.1, 0.1, 0.1, 1, 0, 0.7,
		},
		cols: 7,
	}
}

func TestEngineDetect(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	timer := profiler.NewStageTimer(0)
	backend := newFakeBackend()

	engine, err := NewEngineBuilder().
		WithLogger(zap.New(core)).
		WithTimer(timer).
		WithBackend(backend).
		WithModel(yolov3Args()).
		Build()
	require.NoError(t, err)

	detections, err := engine.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 200, 100)))
	require.NoError(t, err)
	require.Len(t, detections, 2)

	assert.Equal(t, "cat", detections[0].ClassName)
	assert.InDelta(t, 80, detections[0].Box.X, 1e-4)
	assert.InDelta(t, 40, detections[0].Box.Width, 1e-4)
	assert.Equal(t, "dog", detections[1].ClassName)

	var stages []string
	for _, s := range timer.Stats() {
		stages = append(stages, s.Name)
	}
	assert.Equal(t, []string{StageInference, postprocess.StageDecode, postprocess.StageSuppress, postprocess.StageAggregate}, stages)

	assert.Equal(t, 1, logs.FilterMessage("detected objects").Len())
	assert.Equal(t, 1, logs.FilterMessage("processed detections").Len())

	require.NoError(t, engine.Close())
	assert.True(t, backend.closed)
}

func TestEngineDetectCanceled(t *testing.T) {
	backend := newFakeBackend()
	engine := NewEngineBuilder().WithBackend(backend).WithModel(yolov3Args()).MustBuild()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	detections, err := engine.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, detections)
	assert.Equal(t, int32(0), backend.calls.Load(), "backend is not called after cancellation")
}

func TestEngineDetectErrors(t *testing.T) {
	failing := &fakeBackend{err: errors.New("device lost")}
	engine := NewEngineBuilder().WithBackend(failing).WithModel(yolov3Args()).MustBuild()
	_, err := engine.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.EqualError(t, err, "inference: device lost")

	// Rows one column short of the darknet layout.
	short := &fakeBackend{rows: []float32{0.5, 0.5, 0.2, 0.2, 0.9, 0.1}, cols: 6}
	engine = NewEngineBuilder().WithBackend(short).WithModel(yolov3Args()).MustBuild()
	_, err = engine.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)))
	assert.True(t, errors.Is(err, postprocess.ErrMalformedTensor))
}

func TestEngineBuilderErrors(t *testing.T) {
	_, err := NewEngineBuilder().WithModel(yolov3Args()).Build()
	assert.EqualError(t, err, "backend not configured")

	_, err = NewEngineBuilder().WithBackend(newFakeBackend()).Build()
	assert.EqualError(t, err, "model not configured")

	_, err = NewEngineBuilder().WithBackend(nil).WithModel(yolov3Args()).Build()
	assert.EqualError(t, err, "backend is nil")

	bad := yolov3Args()
	bad.Postprocess.NMSThreshold = 3
	_, err = NewEngineBuilder().WithBackend(newFakeBackend()).WithModel(bad).Build()
	assert.True(t, errors.Is(err, postprocess.ErrInvalidThreshold))

	assert.Panics(t, func() { NewEngineBuilder().MustBuild() })
}

func TestEngineWithModelInstance(t *testing.T) {
	m, err := models.NewModel(yolov3Args())
	require.NoError(t, err)

	engine := NewEngineBuilder().WithBackend(newFakeBackend()).WithModelInstance(m).MustBuild()
	assert.Same(t, m, engine.Model())
}
