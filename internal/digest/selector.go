package digest

// SelectionOptions configures one diversity selection pass.
type SelectionOptions struct {
	// MaxPerSource caps how many items one source may contribute before
	// the backfill pass relaxes the cap.
	MaxPerSource int

	// Limit bounds the total selection size.
	Limit int

	// ExcludeIDs are item ids already shown to the caller (pagination).
	ExcludeIDs []string
}

// SelectWithDiversity picks a bounded, deduplicated, per-source-capped
// subset of ranked items. The input must be sorted best-first; the selector
// walks it greedily in a single pass, deferring items whose source is
// already at the cap, then backfills from the deferred pool when too few
// distinct sources exist to fill the quota under the cap. Quality is never
// needlessly sacrificed to diversity when sources are scarce.
//
// Invariants: selected ids are a subset of input ids, no id appears twice,
// the result size never exceeds the limit, and per-source counts respect
// the cap except for explicit backfill admissions. Ties in score keep input
// order, which already encodes recency as the secondary key.
func SelectWithDiversity(ranked []RankedItem, opts SelectionOptions) SelectionResult {
	result := SelectionResult{
		Items:   []RankedItem{},
		Reasons: make(map[string]string),
	}
	if len(ranked) == 0 || opts.Limit <= 0 {
		return result
	}

	excluded := make(map[string]bool, len(opts.ExcludeIDs))
	for _, id := range opts.ExcludeIDs {
		excluded[id] = true
	}

	seen := make(map[string]bool, len(ranked))
	perSource := make(map[string]int)
	var deferred []RankedItem

	// Pass 1: capped greedy walk in score order.
	for _, ri := range ranked {
		if len(result.Items) >= opts.Limit {
			break
		}
		if excluded[ri.ID] || seen[ri.ID] {
			continue
		}
		seen[ri.ID] = true

		if opts.MaxPerSource > 0 && perSource[ri.SourceName] >= opts.MaxPerSource {
			deferred = append(deferred, ri)
			continue
		}

		perSource[ri.SourceName]++
		result.Items = append(result.Items, ri)
		result.Reasons[ri.ID] = ReasonTopRanked
	}

	// Pass 2: backfill. Deferred items are already in score order.
	for _, ri := range deferred {
		if len(result.Items) >= opts.Limit {
			break
		}
		perSource[ri.SourceName]++
		result.Items = append(result.Items, ri)
		result.Reasons[ri.ID] = ReasonBackfill
	}

	return result
}
