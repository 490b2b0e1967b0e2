package postprocess

import (
	"sort"

	"github.com/bmharper/flatbush-go"

	"github.com/nvr-ai/go-detect/images"
)

// DefaultIndexThreshold is the candidate count from which overlaps are looked
// up through a spatial index instead of a linear scan.
const DefaultIndexThreshold = 256

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// Candidates at or below this score are discarded before suppression.
	ScoreThreshold float32
	// Overlap threshold for suppression. A box is dropped when its IoU with an
	// accepted box is strictly greater.
	IoUThreshold float32
	// Candidate count from which a spatial index is used. Zero selects
	// DefaultIndexThreshold, a negative value disables the index.
	IndexThreshold int
}

// NewNMSConfig derives the suppression parameters from the pipeline config.
func NewNMSConfig(cfg Config) *NMSConfig {
	return &NMSConfig{
		ScoreThreshold: cfg.ConfidenceThreshold,
		IoUThreshold:   cfg.NMSThreshold,
	}
}

func (c *NMSConfig) useIndex(n int) bool {
	threshold := c.IndexThreshold
	if threshold == 0 {
		threshold = DefaultIndexThreshold
	}
	return threshold > 0 && n >= threshold
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression on the
// candidates of a single class.
//
// Candidates at or below the score threshold are dropped, the rest are stably
// sorted by descending score (ties keep input order), then the best remaining
// box is accepted and every remaining box overlapping it by more than the IoU
// threshold is removed, until none remain.
//
// Arguments:
//   - candidates: The class candidates in decode order. The slice is not modified.
//   - config: The score and IoU thresholds.
//
// Returns:
//   - The survivors in acceptance order (highest score first). Empty input
//     returns nil.
func ApplyGreedyNMS(candidates []Candidate, config *NMSConfig) []Candidate {
	working := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score > config.ScoreThreshold {
			working = append(working, c)
		}
	}
	n := len(working)
	if n == 0 {
		return nil
	}

	sort.SliceStable(working, func(i, j int) bool {
		return working[i].Score > working[j].Score
	})

	if config.useIndex(n) {
		return suppressIndexed(working, config.IoUThreshold)
	}
	return suppressLinear(working, config.IoUThreshold)
}

// suppressLinear compares every accepted box with all lower scoring boxes.
func suppressLinear(sorted []Candidate, iouThreshold float32) []Candidate {
	n := len(sorted)
	filtered := make([]Candidate, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}

// suppressIndexed gives the same result as suppressLinear but only evaluates
// IoU for boxes whose extents touch the accepted box. Boxes that do not touch
// have an IoU of 0, which never exceeds a threshold in [0, 1].
func suppressIndexed(sorted []Candidate, iouThreshold float32) []Candidate {
	n := len(sorted)

	fb := flatbush.NewFlatbush[float64]()
	fb.Reserve(n)
	for _, c := range sorted {
		fb.Add(float64(c.Box.X), float64(c.Box.Y), float64(c.Box.X2()), float64(c.Box.Y2()))
	}
	fb.Finish()

	filtered := make([]Candidate, 0, n)
	used := make([]bool, n)
	var nearby []int

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		nearby = fb.SearchFast(float64(anchor.Box.X), float64(anchor.Box.Y),
			float64(anchor.Box.X2()), float64(anchor.Box.Y2()), nearby[:0])
		for _, j := range nearby {
			if j <= i || used[j] {
				continue
			}
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
