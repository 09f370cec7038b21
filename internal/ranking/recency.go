package ranking

import (
	"math"
	"time"
)

// Recency decay bounds. A fresh item scores 1.0; the score asymptotes to
// the floor as age grows but never drops below it, so stale items are
// demoted rather than eliminated.
const (
	RecencyFloor = 0.2
	recencySpan  = 0.8
)

// RecencyScore computes an exponential-decay freshness score from item age
// and a category-specific half-life.
//
// Formula: 0.2 + 0.8 × e^(-ln2 × ageDays/halfLifeDays)
//
// Parameters:
//   - publishedAt: The publication time of the item
//   - now: Current time (reference point)
//   - halfLifeDays: The age at which the score has decayed to the midpoint
//     between its peak and its floor
//
// Returns 1.0 at age 0, strictly decreasing in age, approaching 0.2 as
// age goes to infinity. Future publication times are clamped to age 0.
func RecencyScore(publishedAt time.Time, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1.0 // no decay configured, treat everything as fresh
	}

	ageDays := now.Sub(publishedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}

	return RecencyFloor + recencySpan*math.Exp(-math.Ln2*ageDays/halfLifeDays)
}
