// Package llm scores items against an OpenAI-compatible chat completion
// endpoint. The judge works in fixed-size batches and degrades per batch:
// a failed call skips that batch and keeps going, so a flaky upstream can
// only thin out the judgments, never sink an ingest run.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/ranking"
)

// DefaultBatchSize bounds how many items one completion call carries.
const DefaultBatchSize = 10

const defaultSystemPrompt = `You score newsletter and feed items for a technical digest.
For every item respond with relevance (0-10, how on-topic for the category),
usefulness (0-10, how actionable for a practitioner), and up to three short
topic tags. Reply with a JSON array only, one object per item:
[{"id":"...","relevance":0,"usefulness":0,"tags":["..."]}]`

// Config holds the judge's connection settings.
type Config struct {
	Endpoint     string
	Model        string
	APIKey       string
	SystemPrompt string
	BatchSize    int
	Timeout      time.Duration
}

// Judge batches items into chat completion calls and parses judgments out
// of the responses.
type Judge struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	batchSize    int
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewJudge builds a judge from configuration. Zero values fall back to
// sensible defaults; Endpoint, Model, and APIKey must be set before use.
func NewJudge(cfg Config, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Judge{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: prompt,
		batchSize:    batch,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// Configured reports whether the judge has everything it needs to call out.
func (j *Judge) Configured() bool {
	return j != nil && j.endpoint != "" && j.model != "" && j.apiKey != ""
}

// JudgeItems scores a batch of items for one category. The returned map is
// keyed by item id and may be partial: batches that fail to complete or
// parse are logged and skipped. Cancellation of ctx stops between batches.
func (j *Judge) JudgeItems(ctx context.Context, items []item.Item, category ranking.Category) map[string]ranking.LLMJudgment {
	judgments := make(map[string]ranking.LLMJudgment, len(items))
	if !j.Configured() || len(items) == 0 {
		return judgments
	}

	for start := 0; start < len(items); start += j.batchSize {
		if ctx.Err() != nil {
			return judgments
		}
		end := start + j.batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		scored, err := j.judgeBatch(ctx, batch, category)
		if err != nil {
			j.logger.Warn("llm batch failed, skipping",
				"category", category,
				"batch_start", start,
				"batch_size", len(batch),
				"error", err)
			continue
		}
		for id, judgment := range scored {
			judgments[id] = judgment
		}
	}

	return judgments
}

// batchEntry is the per-item payload shown to the model.
type batchEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Summary  string `json:"summary,omitempty"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category"`
}

// judgmentEntry is the per-item shape expected back from the model.
type judgmentEntry struct {
	ID         string   `json:"id"`
	Relevance  float64  `json:"relevance"`
	Usefulness float64  `json:"usefulness"`
	Tags       []string `json:"tags"`
}

func (j *Judge) judgeBatch(ctx context.Context, batch []item.Item, category ranking.Category) (map[string]ranking.LLMJudgment, error) {
	entries := make([]batchEntry, 0, len(batch))
	known := make(map[string]bool, len(batch))
	for _, it := range batch {
		entries = append(entries, batchEntry{
			ID:       it.ID,
			Title:    it.Title,
			Summary:  truncate(it.Summary, 600),
			Source:   it.SourceName,
			Category: string(category),
		})
		known[it.ID] = true
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model": j.model,
		"messages": []map[string]string{
			{"role": "system", "content": j.systemPrompt},
			{"role": "user", "content": string(payload)},
		},
		"temperature": 0,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+j.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("judge error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	parsed, err := parseJudgments(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	judgments := make(map[string]ranking.LLMJudgment, len(parsed))
	for _, entry := range parsed {
		if !known[entry.ID] {
			// Hallucinated ids are dropped rather than polluting the map.
			j.logger.Warn("judge returned unknown item id", "id", entry.ID)
			continue
		}
		judgments[entry.ID] = ranking.LLMJudgment{
			Relevance:  clampScore(entry.Relevance),
			Usefulness: clampScore(entry.Usefulness),
			Tags:       entry.Tags,
		}
	}
	return judgments, nil
}

// parseJudgments extracts the JSON array out of the model's reply, tolerating
// markdown code fences and surrounding prose.
func parseJudgments(content string) ([]judgmentEntry, error) {
	content = strings.TrimSpace(content)
	if start := strings.Index(content, "["); start >= 0 {
		if end := strings.LastIndex(content, "]"); end > start {
			content = content[start : end+1]
		}
	}

	var entries []judgmentEntry
	if err := json.Unmarshal([]byte(content), &entries); err != nil {
		return nil, fmt.Errorf("parse judgments: %w", err)
	}
	return entries, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
