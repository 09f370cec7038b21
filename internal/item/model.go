// Package item provides models and the repository for ingested feed items
// and their persisted scores.
package item

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/briefcast/briefcast/internal/ranking"
)

// Common errors for item operations.
var (
	ErrItemNotFound = errors.New("item not found")
)

// Period identifies a ranking time window.
type Period string

// Known periods.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a period label.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	}
	return "", fmt.Errorf("unknown period: %q", s)
}

// Days returns the window size in days, or 0 for the unbounded all-time view.
func (p Period) Days() int {
	switch p {
	case PeriodDay:
		return 1
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	default:
		return 0
	}
}

// Bounded reports whether the period is a finite window. Bounded periods
// suppress the recency signal during ranking because the query boundary
// already filters by freshness.
func (p Period) Bounded() bool {
	return p != PeriodAll
}

// Item represents one ingested feed or newsletter item. Immutable once
// ingested; re-ranking never mutates the item itself.
type Item struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Summary     string           `json:"summary,omitempty"`
	Snippet     string           `json:"snippet,omitempty"`
	FullText    string           `json:"-"`
	URL         string           `json:"url"`
	SourceName  string           `json:"source_name"`
	Category    ranking.Category `json:"category"`
	PublishedAt time.Time        `json:"published_at"`
	CreatedAt   time.Time        `json:"created_at"`
}

// IndexText returns the text tokenized into the lexical index:
// title + summary + snippet.
func (i Item) IndexText() string {
	return joinNonEmpty(i.Title, i.Summary, i.Snippet)
}

// ScanText returns the summary and snippet, the boost scan surface beyond
// the title. Full text never participates in boost scanning.
func (i Item) ScanText() string {
	return joinNonEmpty(i.Summary, i.Snippet)
}

// BodyText returns everything beyond the title, used for the real-content
// check.
func (i Item) BodyText() string {
	return joinNonEmpty(i.Summary, i.Snippet, i.FullText)
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// StoredScore is a persisted per-item scoring record, produced by the LLM
// judge pipeline and looked up during ranking.
type StoredScore struct {
	ItemID        string    `json:"item_id"`
	LLMRelevance  float64   `json:"llm_relevance"`
	LLMUsefulness float64   `json:"llm_usefulness"`
	LLMTags       []string  `json:"llm_tags,omitempty"`
	BM25Score     float64   `json:"bm25_score"`
	FinalScore    float64   `json:"final_score"`
	ScoredAt      time.Time `json:"scored_at"`
}

// Judgment converts the stored record into the fusion input form.
func (s StoredScore) Judgment() *ranking.LLMJudgment {
	return &ranking.LLMJudgment{
		Relevance:  s.LLMRelevance,
		Usefulness: s.LLMUsefulness,
		Tags:       s.LLMTags,
	}
}
