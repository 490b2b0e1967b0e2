package postprocess

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/profiler"
)

// Stage names recorded on the StageTimer.
const (
	StageDecode    = "decode"
	StageSuppress  = "suppress"
	StageAggregate = "aggregate"
)

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	// Config holds the confidence and NMS thresholds.
	Config Config
	// Classes is the catalog aligned with the score columns.
	Classes *catalog.ClassCatalog
	// Layout locates the scores inside a row. The zero value selects LayoutDefault.
	Layout Layout
	// NumClasses is the score column count the model emits. Zero trusts the catalog.
	NumClasses int
	// NumWorkers bounds per-class suppression goroutines. Values <= 1 run sequentially.
	NumWorkers int
	// IndexThreshold is forwarded to NMSConfig.IndexThreshold.
	IndexThreshold int
	// Logger receives per-invocation debug summaries. Nil disables logging.
	Logger *zap.Logger
	// Timer records stage durations. Nil disables timing.
	Timer *profiler.StageTimer
}

// Processor runs decode, per-class suppression and aggregation. It holds only
// immutable configuration and is safe for concurrent use.
type Processor struct {
	config     Config
	classes    *catalog.ClassCatalog
	layout     Layout
	nms        NMSConfig
	numWorkers int
	logger     *zap.Logger
	timer      *profiler.StageTimer
}

// NewProcessor validates the options and creates a Processor.
//
// Arguments:
//   - opts: The processor options.
//
// Returns:
//   - *Processor: The processor.
//   - error: ErrInvalidThreshold for bad thresholds, ErrClassCatalogMismatch
//     when the catalog is missing or disagrees with NumClasses.
func NewProcessor(opts ProcessorOptions) (*Processor, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Classes == nil {
		return nil, errors.Wrap(ErrClassCatalogMismatch, "processor requires a class catalog")
	}
	if opts.NumClasses != 0 && opts.NumClasses != opts.Classes.Len() {
		return nil, errors.Wrapf(ErrClassCatalogMismatch,
			"model emits %d class scores, catalog has %d names", opts.NumClasses, opts.Classes.Len())
	}

	layout := opts.Layout
	if layout == (Layout{}) {
		layout = LayoutDefault
	}
	if layout.ScoreOffset < 4 {
		return nil, errors.Errorf("score offset %d overlaps the box columns", layout.ScoreOffset)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	nms := NewNMSConfig(opts.Config)
	nms.IndexThreshold = opts.IndexThreshold

	return &Processor{
		config:     opts.Config,
		classes:    opts.Classes,
		layout:     layout,
		nms:        *nms,
		numWorkers: opts.NumWorkers,
		logger:     logger.Named("postprocess"),
		timer:      opts.Timer,
	}, nil
}

// Config returns the thresholds the processor was built with.
func (p *Processor) Config() Config {
	return p.config
}

// Classes returns the processor's class catalog.
func (p *Processor) Classes() *catalog.ClassCatalog {
	return p.classes
}

// Layout returns the row layout the processor decodes.
func (p *Processor) Layout() Layout {
	return p.layout
}

// Process turns the raw tensors of one image into the final detection list.
//
// Arguments:
//   - tensors: The raw output tensors for the image.
//   - width, height: The source image size in pixels.
//
// Returns:
//   - []Detection: Class-major, score-descending detections; empty, not nil,
//     when nothing clears the thresholds.
//   - error: Any decode error. No partial output is returned.
func (p *Processor) Process(tensors []Tensor, width, height int) ([]Detection, error) {
	start := time.Now()

	done := p.timer.StartOperation(StageDecode)
	candidates, err := Decode(tensors, width, height, p.config, p.classes, p.layout)
	done()
	if err != nil {
		return nil, err
	}

	done = p.timer.StartOperation(StageSuppress)
	survivors := p.Suppress(candidates)
	done()

	done = p.timer.StartOperation(StageAggregate)
	detections, err := Aggregate(survivors, p.classes)
	done()
	if err != nil {
		return nil, err
	}

	if ce := p.logger.Check(zap.DebugLevel, "processed detections"); ce != nil {
		ce.Write(
			zap.Int("tensors", len(tensors)),
			zap.Int("candidates", countCandidates(candidates)),
			zap.Int("detections", len(detections)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	return detections, nil
}

// Suppress runs greedy NMS independently for every class. With more than one
// worker the classes are fanned out over a bounded pool; each worker writes
// only its own class slot, so the result is in class order regardless.
//
// Arguments:
//   - candidates: Indexed by class id, as returned by Decode.
//
// Returns:
//   - [][]Candidate: Survivors indexed by class id.
func (p *Processor) Suppress(candidates [][]Candidate) [][]Candidate {
	survivors := make([][]Candidate, len(candidates))

	if p.numWorkers <= 1 {
		for classID, list := range candidates {
			survivors[classID] = ApplyGreedyNMS(list, &p.nms)
		}
		return survivors
	}

	var g errgroup.Group
	g.SetLimit(p.numWorkers)
	for classID, list := range candidates {
		if len(list) == 0 {
			continue
		}
		g.Go(func() error {
			survivors[classID] = ApplyGreedyNMS(list, &p.nms)
			return nil
		})
	}
	// Workers never fail.
	_ = g.Wait()

	return survivors
}

func countCandidates(candidates [][]Candidate) int {
	n := 0
	for _, c := range candidates {
		n += len(c)
	}
	return n
}
