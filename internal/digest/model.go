// Package digest orchestrates ranking passes and the diversity-constrained
// selection that produces the final item list for the API and podcast
// pipelines.
package digest

import (
	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/ranking"
)

// Selection reason strings attached to each admitted item.
const (
	ReasonTopRanked = "top-ranked"
	ReasonBackfill  = "diversity backfill"
)

// RankedItem is an item plus the score components of one ranking pass.
// A given item may be ranked independently per period and category, each
// pass producing its own RankedItem; instances are never mutated after
// construction.
type RankedItem struct {
	item.Item
	Score ranking.ScoreComponents `json:"score"`
}

// SelectionResult is the ordered final selection plus a parallel map from
// item id to the free-text reason it was admitted. The reasons are an audit
// trail for UI display, never parsed downstream.
type SelectionResult struct {
	Items   []RankedItem      `json:"items"`
	Reasons map[string]string `json:"reasons"`
}
