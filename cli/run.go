package cli

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/util"
)

// ImageResult is the run command output for one image.
type ImageResult struct {
	Path       string                  `json:"path"`
	Width      int                     `json:"width"`
	Height     int                     `json:"height"`
	Detections []postprocess.Detection `json:"detections"`
}

// RunAction runs the configured model over the given images and prints one
// ImageResult per image.
func (a *actions) RunAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer logger.Sync()

	files, err := collectImages(c)
	if err != nil {
		return err
	}

	timer := profiler.NewStageTimer(0)
	engine, err := a.buildEngine(cfg, logger, timer)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, engine.Close())
	}()

	results := make([]ImageResult, 0, len(files))
	for _, f := range files {
		img, meta, err := images.Decode(f.Data)
		if err != nil {
			return errors.Wrap(err, f.Path)
		}
		detections, err := engine.Detect(c.Context, img)
		if err != nil {
			return errors.Wrap(err, f.Path)
		}
		logger.Info("processed image",
			zap.String("path", f.Path),
			zap.Int("detections", len(detections)),
		)
		results = append(results, ImageResult{
			Path:       f.Path,
			Width:      meta.Width,
			Height:     meta.Height,
			Detections: detections,
		})
	}

	if err := printJSON(c, results); err != nil {
		return err
	}
	timer.Report(logger)
	return nil
}

func collectImages(c *cli.Context) ([]util.ImageFile, error) {
	var files []util.ImageFile
	for _, path := range c.StringSlice(runFlagImage) {
		f, err := util.LoadImageFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if dir := c.String(runFlagDir); dir != "" {
		frames, err := util.LoadDirectoryImageFiles(dir)
		if err != nil {
			return nil, err
		}
		files = append(files, frames...)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images given, use --%s or --%s", runFlagImage, runFlagDir)
	}
	return files, nil
}

// buildEngine creates the configured model and backend and ties them into an
// engine. The caller closes the engine.
func (a *actions) buildEngine(cfg config.Config, logger *zap.Logger, timer *profiler.StageTimer) (*inference.Engine, error) {
	m, err := models.NewModel(cfg.ModelArgs(logger, timer))
	if err != nil {
		return nil, err
	}

	backendType := cfg.BackendType()
	factory, ok := a.backends[backendType]
	if !ok {
		return nil, errors.Errorf("backend %q is not available", backendType)
	}
	backend, err := factory(cfg, m.Options(), logger)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s backend", backendType)
	}

	engine, err := inference.NewEngineBuilder().
		WithBackend(backend).
		WithModelInstance(m).
		WithLogger(logger).
		WithTimer(timer).
		Build()
	if err != nil {
		return nil, multierr.Append(err, backend.Close())
	}
	return engine, nil
}
