package inference

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// StageInference is the StageTimer name for backend execution.
const StageInference = "inference"

// Engine runs a backend and a model's post-processing on images.
// Detect is safe for concurrent use when the backend is.
type Engine struct {
	backend Backend
	model   model.Model
	logger  *zap.Logger
	timer   *profiler.StageTimer
}

// EngineBuilder helps build engines with a fluent API.
type EngineBuilder struct {
	backend   Backend
	model     model.Model
	modelArgs *model.NewModelArgs
	logger    *zap.Logger
	timer     *profiler.StageTimer
	err       error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{}
}

// WithBackend sets the backend for the engine. The engine takes ownership
// and closes it in Close.
func (b *EngineBuilder) WithBackend(backend Backend) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if backend == nil {
		b.err = errors.New("backend is nil")
		return b
	}
	b.backend = backend
	return b
}

// WithModel sets the arguments of the model created by Build.
//
// Arguments:
//   - args: The model arguments. Nil Logger and Timer fields inherit the
//     builder's.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(args model.NewModelArgs) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.modelArgs = &args
	return b
}

// WithModelInstance uses an already constructed model.
func (b *EngineBuilder) WithModelInstance(m model.Model) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.model = m
	return b
}

// WithLogger sets the logger for the engine.
func (b *EngineBuilder) WithLogger(logger *zap.Logger) *EngineBuilder {
	b.logger = logger
	return b
}

// WithTimer sets the stage timer shared by the engine and the model.
func (b *EngineBuilder) WithTimer(timer *profiler.StageTimer) *EngineBuilder {
	b.timer = timer
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the engine and panics if there is an error.
//
// Returns:
//   - *Engine: The engine.
func (b *EngineBuilder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}

// Build builds the engine.
//
// Returns:
//   - *Engine: The engine.
//   - error: The error if any.
func (b *EngineBuilder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.backend == nil {
		return nil, errors.New("backend not configured")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := b.model
	if m == nil {
		if b.modelArgs == nil {
			return nil, errors.New("model not configured")
		}
		args := *b.modelArgs
		if args.Logger == nil {
			args.Logger = logger
		}
		if args.Timer == nil {
			args.Timer = b.timer
		}
		var err error
		if m, err = models.NewModel(args); err != nil {
			return nil, err
		}
	}

	return &Engine{
		backend: b.backend,
		model:   m,
		logger:  logger.Named("engine"),
		timer:   b.timer,
	}, nil
}

// Model returns the engine's model.
func (e *Engine) Model() model.Model {
	return e.model
}

// Detect runs the network on img and returns its detections in source image
// pixels.
//
// Arguments:
//   - ctx: Checked before inference starts.
//   - img: The image to detect objects in.
//
// Returns:
//   - []postprocess.Detection: The detections, class-major.
//   - error: The context error, a backend error or a post-processing error.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]postprocess.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	bounds := img.Bounds()

	done := e.timer.StartOperation(StageInference)
	outputs, err := e.backend.Infer(ctx, img)
	done()
	if err != nil {
		return nil, errors.Wrap(err, "inference")
	}

	detections, err := e.model.PostProcess(outputs, bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, errors.Wrap(err, "post-processing")
	}

	e.logger.Debug("detected objects",
		zap.String("model", string(e.model.Options().Name)),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.Int("detections", len(detections)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return detections, nil
}

// Close releases the backend.
func (e *Engine) Close() error {
	return e.backend.Close()
}
