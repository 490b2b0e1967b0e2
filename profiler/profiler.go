// Package profiler - Per-stage timing for the detection pipeline.
package profiler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSamples is the number of durations kept per stage.
const DefaultMaxSamples = 600

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// StageStats is a snapshot of one stage's timings. Min, Max and Avg cover the
// retained window, Count covers every recorded run.
type StageStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Last  time.Duration `json:"last"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// StageTimer records how long each named pipeline stage takes. It is safe for
// concurrent use. A nil *StageTimer records nothing.
type StageTimer struct {
	mu         sync.Mutex
	maxSamples int
	stages     map[string]*TimeTracker
	order      []string
}

// NewStageTimer creates a timer keeping up to maxSamples durations per stage.
//
// Arguments:
//   - maxSamples: Window size; zero or negative selects DefaultMaxSamples.
//
// Returns:
//   - *StageTimer: The timer.
func NewStageTimer(maxSamples int) *StageTimer {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &StageTimer{
		maxSamples: maxSamples,
		stages:     make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The stage name.
//
// Returns:
//   - A function to call when the operation completes.
func (st *StageTimer) StartOperation(name string) func() {
	if st == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		st.Record(name, time.Since(start))
	}
}

// Record adds one duration sample to a stage.
func (st *StageTimer) Record(name string, duration time.Duration) {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tracker, exists := st.stages[name]
	if !exists {
		tracker = &TimeTracker{name: name}
		st.stages[name] = tracker
		st.order = append(st.order, name)
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > st.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	tracker.minTime, tracker.maxTime = tracker.durations[0], tracker.durations[0]
	for _, d := range tracker.durations[1:] {
		tracker.minTime = min(tracker.minTime, d)
		tracker.maxTime = max(tracker.maxTime, d)
	}
}

// Stats returns a snapshot of every stage in the order first recorded.
func (st *StageTimer) Stats() []StageStats {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]StageStats, 0, len(st.order))
	for _, name := range st.order {
		tracker := st.stages[name]
		n := len(tracker.durations)
		out = append(out, StageStats{
			Name:  name,
			Count: tracker.count,
			Last:  tracker.durations[n-1],
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
			Avg:   tracker.totalTime / time.Duration(n),
		})
	}
	return out
}

// Report logs one line per stage at info level.
func (st *StageTimer) Report(logger *zap.Logger) {
	for _, s := range st.Stats() {
		logger.Info("stage timing",
			zap.String("stage", s.Name),
			zap.Int64("count", s.Count),
			zap.Duration("avg", s.Avg),
			zap.Duration("min", s.Min),
			zap.Duration("max", s.Max),
		)
	}
}
