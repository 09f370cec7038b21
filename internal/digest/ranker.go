package digest

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/ranking"
	"github.com/briefcast/briefcast/internal/tracing"
)

// ScoreStore is the persisted score lookup collaborator. A lookup failure
// is fatal for the ranking call; absent keys simply trigger on-demand fusion.
type ScoreStore interface {
	LoadScores(ctx context.Context, ids []string) (map[string]item.StoredScore, error)
}

// Ranker runs ranking passes over in-memory batches. Each invocation owns
// its derived structures (lexical index, score map) exclusively and discards
// them afterwards, so concurrent passes over different categories need no
// coordination.
type Ranker struct {
	scores      ScoreStore
	calibration *ranking.Calibration
	metrics     *Metrics
	logger      *slog.Logger

	// now is injectable for deterministic recency in tests.
	now func() time.Time
}

// NewRanker creates a Ranker. Metrics may be nil to disable instrumentation.
func NewRanker(scores ScoreStore, calibration *ranking.Calibration, metrics *Metrics, logger *slog.Logger) *Ranker {
	if calibration == nil {
		calibration = ranking.DefaultCalibration()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{
		scores:      scores,
		calibration: calibration,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// RankCategory scores and fully orders a batch of items for one category
// and period. The result is sorted by final score descending; the stable
// sort preserves the input's most-recent-first order as the tie-break.
//
// Score-store failures propagate unmodified so the API boundary can map
// them; a single item without a stored judgment degrades to the lexical
// fallback and never fails the batch.
func (r *Ranker) RankCategory(ctx context.Context, items []item.Item, category ranking.Category, period item.Period) ([]RankedItem, error) {
	ctx, end := tracing.StartSpan(ctx, "digest.RankCategory")
	var err error
	defer func() { end(err) }()

	cfg, err := r.calibration.Config(category)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return []RankedItem{}, nil
	}

	start := r.now()

	// Lexical pass over the batch. The index lives only for this call.
	idx := ranking.NewBM25Index()
	docs := make([]ranking.Document, len(items))
	ids := make([]string, len(items))
	for i, it := range items {
		docs[i] = ranking.Document{ID: it.ID, Text: it.IndexText()}
		ids[i] = it.ID
	}
	idx.AddDocuments(docs)
	bm25 := ranking.NormalizeScores(idx.Score(cfg.Query))

	stored, err := r.scores.LoadScores(ctx, ids)
	if err != nil {
		// Fatal for this pass: a partial ranking would be silently wrong.
		return nil, err
	}

	now := r.now()
	ranked := make([]RankedItem, len(items))
	missing := 0
	for i, it := range items {
		var judgment *ranking.LLMJudgment
		if s, ok := stored[it.ID]; ok {
			judgment = s.Judgment()
		} else {
			missing++
		}

		recency := ranking.RecencyScore(it.PublishedAt, now, cfg.HalfLifeDays)

		components := ranking.Fuse(ranking.FuseInput{
			Title:       it.Title,
			ScanText:    it.ScanText(),
			ContentText: it.BodyText(),
			BM25:        bm25[it.ID],
			LLM:         judgment,
			Recency:     recency,
			Category:    category,
		}, cfg, r.calibration.Vocabulary)

		// Recency weighs in only on the all-time view. Bounded periods are
		// already recency-filtered by the query window, so applying decay
		// again would double-count freshness.
		if !period.Bounded() {
			components.FinalScore *= recency
		}

		ranked[i] = RankedItem{Item: it, Score: components}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.FinalScore > ranked[j].Score.FinalScore
	})

	if r.metrics != nil {
		r.metrics.ObserveRankingPass(time.Since(start), len(items))
	}
	r.logger.Debug("ranked category batch",
		"category", category,
		"period", period,
		"items", len(items),
		"without_stored_score", missing)

	return ranked, nil
}

// Select runs diversity selection for a category using its configured
// defaults. customLimit overrides the category's MaxItems when > 0.
func (r *Ranker) Select(ranked []RankedItem, category ranking.Category, customLimit int, excludeIDs []string) (SelectionResult, error) {
	cfg, err := r.calibration.Config(category)
	if err != nil {
		return SelectionResult{}, err
	}

	limit := cfg.MaxItems
	if customLimit > 0 {
		limit = customLimit
	}

	result := SelectWithDiversity(ranked, SelectionOptions{
		MaxPerSource: cfg.MaxPerSource,
		Limit:        limit,
		ExcludeIDs:   excludeIDs,
	})

	if r.metrics != nil {
		backfilled := 0
		for _, reason := range result.Reasons {
			if reason == ReasonBackfill {
				backfilled++
			}
		}
		r.metrics.ObserveSelection(len(result.Items), backfilled)
	}

	return result, nil
}
