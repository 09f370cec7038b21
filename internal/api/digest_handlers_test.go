package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/briefcast/briefcast/internal/digest"
	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/ranking"
)

// seedItems loads n AI items into the repository, one per source, most
// recent first, each with a stored judgment so ranking order is deterministic.
func seedItems(t *testing.T, repo *item.MemoryRepository, n int) []string {
	t.Helper()

	now := time.Now().UTC()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		it := &item.Item{
			Title:       fmt.Sprintf("LLM inference optimization part %d", i),
			Summary:     "Practical notes on model serving, batching and agent latency in production.",
			URL:         fmt.Sprintf("https://blog%d.example.com/post-%d", i, i),
			SourceName:  fmt.Sprintf("blog-%d", i),
			Category:    ranking.CategoryAI,
			PublishedAt: now.Add(-time.Duration(i+1) * time.Hour),
		}
		if _, err := repo.Upsert(context.Background(), it); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		ids = append(ids, it.ID)

		// Descending relevance so the seeded order is the ranked order.
		score := item.StoredScore{
			ItemID:        it.ID,
			LLMRelevance:  9 - float64(i)*0.2,
			LLMUsefulness: 8,
			ScoredAt:      now,
		}
		if err := repo.SaveScores(context.Background(), []item.StoredScore{score}); err != nil {
			t.Fatalf("SaveScores() error = %v", err)
		}
	}
	return ids
}

func newTestHandlers(repo *item.MemoryRepository) *DigestHandlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ranker := digest.NewRanker(repo, nil, nil, logger)
	return NewDigestHandlers(repo, ranker, logger)
}

func TestGetDigest_Success(t *testing.T) {
	repo := item.NewMemoryRepository()
	seedItems(t, repo, 5)
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/digest/ai", nil)
	w := httptest.NewRecorder()

	h.GetDigest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp DigestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Category != "ai" {
		t.Errorf("category = %q, want ai", resp.Category)
	}
	if resp.Period != "week" {
		t.Errorf("period = %q, want week (default)", resp.Period)
	}
	if len(resp.Items) != 5 {
		t.Fatalf("items = %d, want 5", len(resp.Items))
	}
	if resp.GeneratedAt.IsZero() {
		t.Error("generated_at not set")
	}

	for _, di := range resp.Items {
		if di.ID == "" || di.Title == "" || di.URL == "" {
			t.Errorf("incomplete item in response: %+v", di)
		}
		if di.Reason == "" {
			t.Errorf("item %s has no selection reason", di.ID)
		}
		if di.Score.FinalScore <= 0 {
			t.Errorf("item %s has non-positive final score", di.ID)
		}
	}

	// Items come back in score order; each seeded item scores strictly
	// higher than the next one.
	for i := 1; i < len(resp.Items); i++ {
		if resp.Items[i].Score.FinalScore > resp.Items[i-1].Score.FinalScore {
			t.Errorf("items not ordered by score at index %d", i)
		}
	}
}

func TestGetDigest_CustomLimit(t *testing.T) {
	repo := item.NewMemoryRepository()
	seedItems(t, repo, 5)
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/digest/ai?limit=2", nil)
	w := httptest.NewRecorder()

	h.GetDigest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp DigestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("items = %d, want 2", len(resp.Items))
	}
}

func TestGetDigest_Exclude(t *testing.T) {
	repo := item.NewMemoryRepository()
	ids := seedItems(t, repo, 3)
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/digest/ai?exclude="+ids[0]+","+ids[1], nil)
	w := httptest.NewRecorder()

	h.GetDigest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp DigestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(resp.Items))
	}
	if resp.Items[0].ID != ids[2] {
		t.Errorf("remaining item = %s, want %s", resp.Items[0].ID, ids[2])
	}
}

func TestGetDigest_BadRequests(t *testing.T) {
	repo := item.NewMemoryRepository()
	seedItems(t, repo, 2)
	h := newTestHandlers(repo)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown category",
			path:       "/v1/digest/knitting",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeUnknownCategory,
		},
		{
			name:       "missing category",
			path:       "/v1/digest/",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "extra path segment",
			path:       "/v1/digest/ai/extra",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "unknown period",
			path:       "/v1/digest/ai?period=fortnight",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeUnknownPeriod,
		},
		{
			name:       "limit not a number",
			path:       "/v1/digest/ai?limit=abc",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "limit zero",
			path:       "/v1/digest/ai?limit=0",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "limit above cap",
			path:       "/v1/digest/ai?limit=101",
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			h.GetDigest(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body: %s", w.Code, tt.wantStatus, w.Body.String())
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to parse error response: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestGetDigest_MethodNotAllowed(t *testing.T) {
	h := newTestHandlers(item.NewMemoryRepository())

	req := httptest.NewRequest(http.MethodPost, "/v1/digest/ai", nil)
	w := httptest.NewRecorder()

	h.GetDigest(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestGetDigest_EmptyCategory(t *testing.T) {
	// A valid category with no items returns an empty digest, not an error.
	h := newTestHandlers(item.NewMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/v1/digest/research", nil)
	w := httptest.NewRecorder()

	h.GetDigest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp DigestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("items = %d, want 0", len(resp.Items))
	}
}

// failingRepo wraps the memory repository and fails ListByCategory.
type failingRepo struct {
	*item.MemoryRepository
}

func (f *failingRepo) ListByCategory(ctx context.Context, category ranking.Category, period item.Period, limit int) ([]item.Item, error) {
	return nil, errors.New("connection refused")
}

func TestGetDigest_StorageError(t *testing.T) {
	repo := item.NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ranker := digest.NewRanker(repo, nil, nil, logger)
	h := NewDigestHandlers(&failingRepo{repo}, ranker, logger)

	req := httptest.NewRequest(http.MethodGet, "/v1/digest/ai", nil)
	w := httptest.NewRecorder()

	h.GetDigest(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Error.Code != ErrCodeInternal {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeInternal)
	}
}

func TestGetRanking_Success(t *testing.T) {
	repo := item.NewMemoryRepository()
	seedItems(t, repo, 4)
	h := newTestHandlers(repo)

	req := httptest.NewRequest(http.MethodGet, "/v1/ranking/ai?period=month", nil)
	w := httptest.NewRecorder()

	h.GetRanking(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", w.Code, w.Body.String())
	}

	var resp RankingResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.Category != "ai" {
		t.Errorf("category = %q, want ai", resp.Category)
	}
	if resp.Period != "month" {
		t.Errorf("period = %q, want month", resp.Period)
	}
	// Ranking returns the full ordered batch without diversity selection.
	if len(resp.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(resp.Items))
	}
	for _, di := range resp.Items {
		if di.Reason != "" {
			t.Errorf("ranking items carry no selection reason, got %q", di.Reason)
		}
	}
}

func TestGetRanking_UnknownCategory(t *testing.T) {
	h := newTestHandlers(item.NewMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/v1/ranking/sports", nil)
	w := httptest.NewRecorder()

	h.GetRanking(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if resp.Error.Code != ErrCodeUnknownCategory {
		t.Errorf("error code = %q, want %q", resp.Error.Code, ErrCodeUnknownCategory)
	}
}

func TestParseExclude(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a,b,c", 3},
		{" a , ,b ", 2},
	}

	for _, tt := range tests {
		if got := parseExclude(tt.in); len(got) != tt.want {
			t.Errorf("parseExclude(%q) = %v, want %d ids", tt.in, got, tt.want)
		}
	}
}
