// Package ingest runs the polling pipeline: fetch entries from the feed
// aggregation API, decompose newsletters into individual items, upsert them,
// judge the new arrivals, and persist the judgments.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/newsletter"
	"github.com/briefcast/briefcast/internal/ranking"
)

// EntrySource lists upstream entries for a category. Implemented by
// feed.Client.
type EntrySource interface {
	ListEntries(ctx context.Context, category ranking.Category, since time.Time) ([]item.Item, error)
}

// Scorer judges a batch of items. Implemented by llm.Judge.
type Scorer interface {
	Configured() bool
	JudgeItems(ctx context.Context, items []item.Item, category ranking.Category) map[string]ranking.LLMJudgment
}

// ScoreInvalidator drops cached score entries after fresh judgments land.
// Implemented by cache.ScoreCache.
type ScoreInvalidator interface {
	Invalidate(ctx context.Context, ids []string) error
}

// Config holds the runner's polling settings.
type Config struct {
	// Interval between polls. Zero disables the loop; RunOnce still works.
	Interval time.Duration

	// Categories to poll. Empty defaults to every configured category.
	Categories []ranking.Category

	// Lookback bounds the since parameter of the first poll.
	Lookback time.Duration
}

// Runner drives the ingest pipeline.
type Runner struct {
	config  Config
	source  EntrySource
	repo    item.Repository
	scorer  Scorer
	cache   ScoreInvalidator
	metrics *Metrics
	logger  *slog.Logger

	lastPoll time.Time
	now      func() time.Time
}

// NewRunner wires the pipeline. scorer and cache may be nil; the runner then
// ingests without judgments or invalidation.
func NewRunner(config Config, source EntrySource, repo item.Repository, scorer Scorer, cache ScoreInvalidator, metrics *Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if len(config.Categories) == 0 {
		for category := range ranking.DefaultCalibration().Configs {
			config.Categories = append(config.Categories, category)
		}
	}
	if config.Lookback <= 0 {
		config.Lookback = 24 * time.Hour
	}
	return &Runner{
		config:  config,
		source:  source,
		repo:    repo,
		scorer:  scorer,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Run polls on the configured interval until the context is cancelled. The
// first pass runs immediately.
func (r *Runner) Run(ctx context.Context) error {
	r.RunOnce(ctx)

	if r.config.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ingest runner stopping")
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes one poll across all configured categories. Per-category
// failures are logged and skipped so one broken category cannot starve the
// others.
func (r *Runner) RunOnce(ctx context.Context) {
	since := r.lastPoll
	if since.IsZero() {
		since = r.now().Add(-r.config.Lookback)
	}
	r.lastPoll = r.now()

	for _, category := range r.config.Categories {
		if ctx.Err() != nil {
			return
		}
		if err := r.pollCategory(ctx, category, since); err != nil {
			if r.metrics != nil {
				r.metrics.ObservePollFailure()
			}
			r.logger.Error("category poll failed",
				slog.String("category", string(category)),
				slog.String("error", err.Error()))
		}
	}
}

func (r *Runner) pollCategory(ctx context.Context, category ranking.Category, since time.Time) error {
	start := r.now()

	entries, err := r.source.ListEntries(ctx, category, since)
	if err != nil {
		return err
	}

	items := r.expandNewsletters(entries)

	var fresh []item.Item
	for i := range items {
		inserted, err := r.repo.Upsert(ctx, &items[i])
		if err != nil {
			// One bad row should not sink the poll.
			r.logger.Warn("item upsert failed",
				slog.String("url", items[i].URL),
				slog.String("error", err.Error()))
			continue
		}
		if inserted {
			fresh = append(fresh, items[i])
		}
	}

	judged := r.judgeAndPersist(ctx, fresh, category)

	if r.metrics != nil {
		r.metrics.ObservePoll(time.Since(start), len(items), len(fresh), judged)
	}
	r.logger.Info("category poll complete",
		slog.String("category", string(category)),
		slog.Int("entries", len(entries)),
		slog.Int("items", len(items)),
		slog.Int("new", len(fresh)),
		slog.Int("judged", judged))
	return nil
}

// expandNewsletters replaces multi-story newsletter entries with their
// individual stories. An entry counts as a newsletter when its full text is
// HTML that splits into at least two stories.
func (r *Runner) expandNewsletters(entries []item.Item) []item.Item {
	items := make([]item.Item, 0, len(entries))
	for _, entry := range entries {
		if !strings.Contains(entry.FullText, "<") {
			items = append(items, entry)
			continue
		}
		stories := newsletter.SplitIntoItems(entry.FullText, entry.SourceName, entry.Category, entry.PublishedAt)
		if len(stories) < 2 {
			items = append(items, entry)
			continue
		}
		r.logger.Debug("decomposed newsletter",
			slog.String("url", entry.URL),
			slog.Int("stories", len(stories)))
		items = append(items, stories...)
	}
	return items
}

// judgeAndPersist scores fresh items and stores the judgments, invalidating
// any cached entries. Returns how many judgments were saved.
func (r *Runner) judgeAndPersist(ctx context.Context, fresh []item.Item, category ranking.Category) int {
	if r.scorer == nil || !r.scorer.Configured() || len(fresh) == 0 {
		return 0
	}

	judgments := r.scorer.JudgeItems(ctx, fresh, category)
	if len(judgments) == 0 {
		return 0
	}

	now := r.now().UTC()
	scores := make([]item.StoredScore, 0, len(judgments))
	ids := make([]string, 0, len(judgments))
	for id, j := range judgments {
		scores = append(scores, item.StoredScore{
			ItemID:        id,
			LLMRelevance:  j.Relevance,
			LLMUsefulness: j.Usefulness,
			LLMTags:       j.Tags,
			ScoredAt:      now,
		})
		ids = append(ids, id)
	}

	if err := r.repo.SaveScores(ctx, scores); err != nil {
		r.logger.Error("failed to persist judgments",
			slog.String("category", string(category)),
			slog.Int("scores", len(scores)),
			slog.String("error", err.Error()))
		return 0
	}

	if r.cache != nil {
		if err := r.cache.Invalidate(ctx, ids); err != nil {
			r.logger.Warn("score cache invalidation failed",
				slog.Int("ids", len(ids)),
				slog.String("error", err.Error()))
		}
	}
	return len(scores)
}
