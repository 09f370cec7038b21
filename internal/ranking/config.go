package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Category identifies a topical category. Categories are a closed set
// resolved at startup; handlers parse incoming strings once via
// ParseCategory and the rest of the pipeline dispatches on the typed value.
type Category string

// Known categories.
const (
	CategoryAI          Category = "ai"
	CategoryEngineering Category = "engineering"
	CategoryResearch    Category = "research"
	CategoryBusiness    Category = "business"
)

// ErrUnknownCategory is returned when a category label is not in the known set.
var ErrUnknownCategory = fmt.Errorf("unknown category")

// Categories returns all known categories in a stable order.
func Categories() []Category {
	return []Category{CategoryAI, CategoryEngineering, CategoryResearch, CategoryBusiness}
}

// ParseCategory validates a category label and returns the typed value.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	switch c {
	case CategoryAI, CategoryEngineering, CategoryResearch, CategoryBusiness:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Weights defines the linear combination applied during score fusion.
// By convention LLM + BM25 sum to 1.0; this is not enforced, callers must
// supply a sane configuration.
type Weights struct {
	LLM  float64 `json:"llm"`  // Weight for the LLM composite score
	BM25 float64 `json:"bm25"` // Weight for the normalized lexical score
}

// CategoryConfig holds the per-category ranking policy.
type CategoryConfig struct {
	// Query is the fixed keyword list scored against each batch.
	Query []string `json:"query"`

	// Weights is the fusion weight configuration.
	Weights Weights `json:"weights"`

	// HalfLifeDays controls recency decay for the all-time view.
	HalfLifeDays float64 `json:"half_life_days"`

	// MaxItems is the default selection limit.
	MaxItems int `json:"max_items"`

	// MaxPerSource is the default per-source diversity cap.
	MaxPerSource int `json:"max_per_source"`
}

// Calibration holds all deploy-time tunable ranking configuration:
// per-category policies plus the boost vocabulary.
type Calibration struct {
	Configs    map[Category]CategoryConfig `json:"categories"`
	Vocabulary BoostVocabulary             `json:"vocabulary"`
}

// calibrationFile is the JSON structure of the calibration file.
type calibrationFile struct {
	Version    string                      `json:"version"`
	Categories map[Category]CategoryConfig `json:"categories"`
	Vocabulary *BoostVocabulary            `json:"vocabulary"`
}

// DefaultCalibration returns the default ranking configuration for every
// known category.
//
// LLM judgment dominates fusion for all categories (70/30) because the
// lexical signal over short feed snippets is noisy; the research category
// leans harder on the LLM (80/20) since paper titles rarely contain the
// query vocabulary verbatim. Half-lives reflect how quickly each category
// goes stale.
func DefaultCalibration() *Calibration {
	return &Calibration{
		Configs: map[Category]CategoryConfig{
			CategoryAI: {
				Query:        []string{"ai", "llm", "model", "agent", "inference", "training"},
				Weights:      Weights{LLM: 0.7, BM25: 0.3},
				HalfLifeDays: 3,
				MaxItems:     12,
				MaxPerSource: 2,
			},
			CategoryEngineering: {
				Query:        []string{"engineering", "infrastructure", "performance", "deploy", "database", "debugging"},
				Weights:      Weights{LLM: 0.7, BM25: 0.3},
				HalfLifeDays: 7,
				MaxItems:     10,
				MaxPerSource: 2,
			},
			CategoryResearch: {
				Query:        []string{"paper", "research", "benchmark", "evaluation", "study", "results"},
				Weights:      Weights{LLM: 0.8, BM25: 0.2},
				HalfLifeDays: 14,
				MaxItems:     8,
				MaxPerSource: 3,
			},
			CategoryBusiness: {
				Query:        []string{"funding", "startup", "launch", "acquisition", "revenue", "enterprise"},
				Weights:      Weights{LLM: 0.7, BM25: 0.3},
				HalfLifeDays: 5,
				MaxItems:     8,
				MaxPerSource: 2,
			},
		},
		Vocabulary: DefaultVocabulary(),
	}
}

// Config returns the policy for a category. Missing configuration is a
// fatal condition for ranking, surfaced immediately.
func (c *Calibration) Config(category Category) (CategoryConfig, error) {
	cfg, ok := c.Configs[category]
	if !ok {
		return CategoryConfig{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return cfg, nil
}

// LoadCalibration loads ranking calibration from a JSON file.
// If the file doesn't exist or can't be parsed, returns default calibration
// with an error so the caller can decide whether to warn or fail.
// Partial configurations are merged with defaults for graceful degradation.
func LoadCalibration(filePath string) (*Calibration, error) {
	if filePath == "" {
		return DefaultCalibration(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var parsed calibrationFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultCalibration(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	merged := MergeCalibration(DefaultCalibration(), &parsed)
	return merged, nil
}

// MergeCalibration merges a parsed calibration file over the defaults.
// Only categories present in the file are overridden, and within an
// overridden category only non-zero fields are applied, so a partial file
// tunes a single weight without restating the rest.
func MergeCalibration(base *Calibration, override *calibrationFile) *Calibration {
	if base == nil {
		base = DefaultCalibration()
	}
	if override == nil {
		copied := *base
		return &copied
	}

	result := &Calibration{
		Configs:    make(map[Category]CategoryConfig, len(base.Configs)),
		Vocabulary: base.Vocabulary,
	}
	for cat, cfg := range base.Configs {
		result.Configs[cat] = cfg
	}

	for cat, over := range override.Categories {
		if _, err := ParseCategory(string(cat)); err != nil {
			slog.Warn("ignoring calibration for unknown category", "category", cat)
			continue
		}
		cfg := result.Configs[cat]
		if len(over.Query) > 0 {
			cfg.Query = over.Query
		}
		if over.Weights.LLM != 0 {
			cfg.Weights.LLM = over.Weights.LLM
		}
		if over.Weights.BM25 != 0 {
			cfg.Weights.BM25 = over.Weights.BM25
		}
		if over.HalfLifeDays != 0 {
			cfg.HalfLifeDays = over.HalfLifeDays
		}
		if over.MaxItems != 0 {
			cfg.MaxItems = over.MaxItems
		}
		if over.MaxPerSource != 0 {
			cfg.MaxPerSource = over.MaxPerSource
		}
		result.Configs[cat] = cfg
		slog.Info("loaded ranking calibration override", "category", cat)
	}

	if override.Vocabulary != nil {
		result.Vocabulary = mergeVocabulary(base.Vocabulary, *override.Vocabulary)
	}

	return result
}

// mergeVocabulary applies non-empty vocabulary fields over the defaults.
func mergeVocabulary(base, override BoostVocabulary) BoostVocabulary {
	result := base
	if override.FlagshipTerm != "" {
		result.FlagshipTerm = override.FlagshipTerm
	}
	if len(override.ProductTerms) > 0 {
		result.ProductTerms = override.ProductTerms
	}
	if override.ProductCategory != "" {
		result.ProductCategory = override.ProductCategory
	}
	if len(override.DomainTerms) > 0 {
		result.DomainTerms = override.DomainTerms
	}
	if len(override.AgentTerms) > 0 {
		result.AgentTerms = override.AgentTerms
	}
	return result
}
