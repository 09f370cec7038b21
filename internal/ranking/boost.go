package ranking

import "strings"

// BoostVocabulary is the domain vocabulary scanned for boost determination.
// The defaults are code constants but every field can be overridden through
// the calibration file, so deployments can retarget the vocabulary without
// a code change.
type BoostVocabulary struct {
	// FlagshipTerm is the single highest-priority brand term.
	FlagshipTerm string `json:"flagship_term"`

	// ProductTerms is the product-name list, active only for ProductCategory.
	ProductTerms []string `json:"product_terms"`

	// ProductCategory is the one category where ProductTerms apply.
	ProductCategory Category `json:"product_category"`

	// DomainTerms is the general topic-term list, active for all categories.
	DomainTerms []string `json:"domain_terms"`

	// AgentTerms are the co-occurrence signal terms that upgrade a single
	// domain-term match.
	AgentTerms []string `json:"agent_terms"`
}

// DefaultVocabulary returns the default boost vocabulary.
func DefaultVocabulary() BoostVocabulary {
	return BoostVocabulary{
		FlagshipTerm:    "openai",
		ProductTerms:    []string{"chatgpt", "gpt-4", "claude", "gemini", "llama", "mistral", "copilot"},
		ProductCategory: CategoryAI,
		DomainTerms: []string{
			"llm", "language model", "transformer", "inference", "fine-tuning",
			"rag", "embedding", "prompt", "benchmark", "multimodal",
		},
		AgentTerms: []string{"agent", "agentic"},
	}
}

// BoostResult records which rule fired and its multiplier.
type BoostResult struct {
	Rule       string
	Multiplier float64
}

// termMatches holds the precomputed match counts a rule predicate inspects.
type termMatches struct {
	flagship      bool
	products      int
	productActive bool // product list only applies to the designated category
	domain        int
	agent         bool
}

// BoostRule is one prioritized boost tier. Rules are evaluated in the order
// returned by Rules; the first rule whose predicate matches wins and no
// further rules are considered, so tiers never stack.
type BoostRule struct {
	Name       string
	Multiplier float64
	Matches    func(m termMatches) bool
}

// Rules returns the ordered boost rule list. The order is the documented
// priority: flagship brand first, category product names second, general
// domain-term tiers last. Multiplicative, mutually exclusive boosts keep
// scores bounded even when term lists overlap.
func Rules() []BoostRule {
	return []BoostRule{
		{
			Name:       "flagship",
			Multiplier: 5.0,
			Matches:    func(m termMatches) bool { return m.flagship },
		},
		{
			Name:       "products-multi",
			Multiplier: 4.0,
			Matches:    func(m termMatches) bool { return m.productActive && m.products >= 2 },
		},
		{
			Name:       "products-single",
			Multiplier: 3.0,
			Matches:    func(m termMatches) bool { return m.productActive && m.products == 1 },
		},
		{
			Name:       "domain-heavy",
			Multiplier: 3.0,
			Matches:    func(m termMatches) bool { return m.domain >= 3 },
		},
		{
			Name:       "domain-pair",
			Multiplier: 2.0,
			Matches:    func(m termMatches) bool { return m.domain == 2 },
		},
		{
			Name:       "domain-agent",
			Multiplier: 2.5,
			Matches:    func(m termMatches) bool { return m.domain == 1 && m.agent },
		},
		{
			Name:       "domain-single",
			Multiplier: 1.5,
			Matches:    func(m termMatches) bool { return m.domain == 1 },
		},
	}
}

// EvaluateBoost scans item text (case-folded) against the vocabulary and
// returns the single applicable boost tier. Items matching no tier get
// multiplier 1.0 with an empty rule name.
func EvaluateBoost(text string, category Category, vocab BoostVocabulary) BoostResult {
	folded := strings.ToLower(text)

	m := termMatches{
		flagship:      vocab.FlagshipTerm != "" && strings.Contains(folded, strings.ToLower(vocab.FlagshipTerm)),
		products:      countMatches(folded, vocab.ProductTerms),
		productActive: category == vocab.ProductCategory,
		domain:        countMatches(folded, vocab.DomainTerms),
		agent:         countMatches(folded, vocab.AgentTerms) > 0,
	}

	for _, rule := range Rules() {
		if rule.Matches(m) {
			return BoostResult{Rule: rule.Name, Multiplier: rule.Multiplier}
		}
	}
	return BoostResult{Multiplier: 1.0}
}

// countMatches counts how many distinct terms from the list occur in the
// folded text.
func countMatches(folded string, terms []string) int {
	count := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(folded, strings.ToLower(term)) {
			count++
		}
	}
	return count
}
