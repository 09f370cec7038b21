package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/briefcast/briefcast/internal/digest"
	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/middleware"
	"github.com/briefcast/briefcast/internal/ranking"
)

// rankingBatchLimit caps how many stored items one request pulls into the
// ranking pass.
const rankingBatchLimit = 500

// maxCustomLimit bounds the limit query parameter.
const maxCustomLimit = 100

// DigestHandlers serves the digest and ranking endpoints.
type DigestHandlers struct {
	items  item.Repository
	ranker *digest.Ranker
	logger *slog.Logger
}

// NewDigestHandlers creates the digest handler set.
func NewDigestHandlers(items item.Repository, ranker *digest.Ranker, logger *slog.Logger) *DigestHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &DigestHandlers{items: items, ranker: ranker, logger: logger}
}

// DigestItem is the per-item response shape shared by both endpoints.
type DigestItem struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Summary     string                  `json:"summary,omitempty"`
	URL         string                  `json:"url"`
	SourceName  string                  `json:"source_name"`
	PublishedAt time.Time               `json:"published_at"`
	Score       ranking.ScoreComponents `json:"score"`
	Reason      string                  `json:"reason,omitempty"`
}

// DigestResponse is the response body for GET /v1/digest/{category}.
type DigestResponse struct {
	Category    string       `json:"category"`
	Period      string       `json:"period"`
	Items       []DigestItem `json:"items"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// RankingResponse is the response body for GET /v1/ranking/{category}.
type RankingResponse struct {
	Category    string       `json:"category"`
	Period      string       `json:"period"`
	Items       []DigestItem `json:"items"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// GetDigest handles GET /v1/digest/{category}?period=&limit=&exclude=.
// It ranks the category's items for the period and applies diversity
// selection with the category's configured caps.
func (h *DigestHandlers) GetDigest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	category, period, ok := h.parseCategoryAndPeriod(w, r, "/v1/digest/")
	if !ok {
		return
	}

	customLimit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	excludeIDs := parseExclude(r.URL.Query().Get("exclude"))

	ranked, ok := h.rank(w, r, category, period)
	if !ok {
		return
	}

	result, err := h.ranker.Select(ranked, category, customLimit, excludeIDs)
	if err != nil {
		// Category validity was already checked; anything here is internal.
		h.logger.Error("selection failed", "category", category, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to build digest")
		return
	}

	items := make([]DigestItem, 0, len(result.Items))
	for _, ri := range result.Items {
		items = append(items, toDigestItem(ri, result.Reasons[ri.ID]))
	}

	writeJSON(w, h.logger, DigestResponse{
		Category:    string(category),
		Period:      string(period),
		Items:       items,
		GeneratedAt: time.Now().UTC(),
	})
}

// GetRanking handles GET /v1/ranking/{category}?period=. It returns the
// full ordered ranking without diversity selection, mainly for calibration
// and debugging.
func (h *DigestHandlers) GetRanking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	category, period, ok := h.parseCategoryAndPeriod(w, r, "/v1/ranking/")
	if !ok {
		return
	}

	ranked, ok := h.rank(w, r, category, period)
	if !ok {
		return
	}

	items := make([]DigestItem, 0, len(ranked))
	for _, ri := range ranked {
		items = append(items, toDigestItem(ri, ""))
	}

	writeJSON(w, h.logger, RankingResponse{
		Category:    string(category),
		Period:      string(period),
		Items:       items,
		GeneratedAt: time.Now().UTC(),
	})
}

// parseCategoryAndPeriod extracts and validates the path category and the
// period query parameter. On failure it writes the error response itself.
func (h *DigestHandlers) parseCategoryAndPeriod(w http.ResponseWriter, r *http.Request, prefix string) (ranking.Category, item.Period, bool) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if raw == "" || strings.Contains(raw, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Category path segment is required")
		return "", "", false
	}

	category, err := ranking.ParseCategory(raw)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnknownCategory)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnknownCategory, "Unknown category: "+raw)
		return "", "", false
	}

	period := item.PeriodWeek
	if p := r.URL.Query().Get("period"); p != "" {
		period, err = item.ParsePeriod(p)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnknownPeriod)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnknownPeriod, "Unknown period: "+p)
			return "", "", false
		}
	}

	return category, period, true
}

func (h *DigestHandlers) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxCustomLimit {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer between 1 and 100")
		return 0, false
	}
	return limit, true
}

// rank loads the category batch and runs the ranking pass, mapping failures
// onto the error envelope.
func (h *DigestHandlers) rank(w http.ResponseWriter, r *http.Request, category ranking.Category, period item.Period) ([]digest.RankedItem, bool) {
	items, err := h.items.ListByCategory(r.Context(), category, period, rankingBatchLimit)
	if err != nil {
		h.logger.Error("failed to list items", "category", category, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load items")
		return nil, false
	}

	ranked, err := h.ranker.RankCategory(r.Context(), items, category, period)
	if err != nil {
		if errors.Is(err, ranking.ErrUnknownCategory) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnknownCategory)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnknownCategory, "Unknown category: "+string(category))
			return nil, false
		}
		h.logger.Error("ranking pass failed", "category", category, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to rank items")
		return nil, false
	}
	return ranked, true
}

func toDigestItem(ri digest.RankedItem, reason string) DigestItem {
	return DigestItem{
		ID:          ri.ID,
		Title:       ri.Title,
		Summary:     ri.Summary,
		URL:         ri.URL,
		SourceName:  ri.SourceName,
		PublishedAt: ri.PublishedAt,
		Score:       ri.Score,
		Reason:      reason,
	}
}

// parseExclude splits the comma-separated exclude parameter.
func parseExclude(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
