package ranking

import (
	"fmt"
	"strings"
)

// LLM composite weighting and fallback penalty.
const (
	llmRelevanceWeight  = 0.7
	llmUsefulnessWeight = 0.3

	// titleOnlyPenalty is applied to the BM25 fallback when an item carries
	// no real content beyond its title: a stub that could not be judged
	// meaningfully should not inherit the full lexical score.
	titleOnlyPenalty = 0.3

	// realContentRatio defines "materially longer than the title".
	realContentRatio = 1.5
)

// LLMJudgment is an externally produced relevance assessment for one item.
// Relevance and Usefulness are on a 0-10 scale.
type LLMJudgment struct {
	Relevance  float64
	Usefulness float64
	Tags       []string
}

// ScoreComponents holds every signal that contributed to an item's final
// score, plus the human-readable reasoning trail. Values are computed once
// per ranking pass and never mutated afterwards.
type ScoreComponents struct {
	BM25Score      float64  `json:"bm25_score"`      // normalized within the batch, [0, 1]
	LLMRelevance   float64  `json:"llm_relevance"`   // [0, 10], 0 when no judgment
	LLMUsefulness  float64  `json:"llm_usefulness"`  // [0, 10], 0 when no judgment
	LLMTags        []string `json:"llm_tags,omitempty"`
	RecencyScore   float64  `json:"recency_score"`   // [0.2, 1.0]
	BoostMultiplier float64 `json:"boost_multiplier"` // >= 1.0
	FinalScore     float64  `json:"final_score"`
	Reasoning      string   `json:"reasoning"`
}

// FuseInput carries one item's signals into score fusion.
type FuseInput struct {
	// Title is part of the boost scan surface and the baseline for the
	// real-content check.
	Title string

	// ScanText is the summary and snippet, scanned together with the title
	// for boost vocabulary. Full text is deliberately excluded: a term
	// buried deep in an article body must not trigger a boost.
	ScanText string

	// ContentText is everything beyond the title (summary, snippet, and
	// full text), used only for the real-content check.
	ContentText string

	// BM25 is the batch-normalized lexical score.
	BM25 float64

	// LLM is the external judgment, nil when none is available.
	LLM *LLMJudgment

	// Recency is the decay score; recorded in the output components and
	// applied by the orchestrator depending on the active period.
	Recency float64

	// Category selects which boost vocabulary sections apply.
	Category Category
}

// Fuse combines an item's lexical score, optional LLM judgment, and boost
// determination into final score components.
//
// llmComposite = (0.7×relevance + 0.3×usefulness)/10 when a judgment exists.
// Without one, the BM25 score stands in: at full strength when the item has
// real content, penalized ×0.3 for title-only stubs.
//
// finalScore = (llmWeight×llmComposite + bm25Weight×bm25) × boostMultiplier,
// monotonically non-decreasing in each positive input.
func Fuse(in FuseInput, cfg CategoryConfig, vocab BoostVocabulary) ScoreComponents {
	components := ScoreComponents{
		BM25Score:    in.BM25,
		RecencyScore: in.Recency,
	}

	var llmComposite float64
	var reasons []string

	if in.LLM != nil {
		llmComposite = (llmRelevanceWeight*in.LLM.Relevance + llmUsefulnessWeight*in.LLM.Usefulness) / 10
		components.LLMRelevance = in.LLM.Relevance
		components.LLMUsefulness = in.LLM.Usefulness
		components.LLMTags = in.LLM.Tags
		reasons = append(reasons, fmt.Sprintf("llm relevance %.1f usefulness %.1f", in.LLM.Relevance, in.LLM.Usefulness))
	} else if hasRealContent(in.Title, in.ContentText) {
		llmComposite = in.BM25
		reasons = append(reasons, "no llm judgment, bm25 fallback")
	} else {
		llmComposite = in.BM25 * titleOnlyPenalty
		reasons = append(reasons, "no llm judgment, title-only penalty")
	}

	reasons = append(reasons, fmt.Sprintf("bm25 %.2f", in.BM25))

	baseScore := cfg.Weights.LLM*llmComposite + cfg.Weights.BM25*in.BM25

	boost := EvaluateBoost(in.Title+" "+in.ScanText, in.Category, vocab)
	components.BoostMultiplier = boost.Multiplier
	if boost.Rule != "" {
		reasons = append(reasons, fmt.Sprintf("boost x%.1f (%s)", boost.Multiplier, boost.Rule))
	}
	if in.LLM != nil && len(in.LLM.Tags) > 0 {
		reasons = append(reasons, "tags: "+strings.Join(in.LLM.Tags, ", "))
	}

	components.FinalScore = baseScore * boost.Multiplier
	components.Reasoning = strings.Join(reasons, "; ")

	return components
}

// hasRealContent reports whether the body is materially longer than the
// title, i.e. the item carries judgeable content beyond a headline.
func hasRealContent(title, body string) bool {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if body == "" {
		return false
	}
	return float64(len(body)) > realContentRatio*float64(len(title))
}
