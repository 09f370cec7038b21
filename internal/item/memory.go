package item

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/briefcast/briefcast/internal/ranking"
)

// MemoryRepository is an in-memory Repository used by unit tests and local
// development. All operations are safe for concurrent use.
type MemoryRepository struct {
	mu     sync.RWMutex
	items  map[string]Item            // by id
	byURL  map[string]string          // url -> id
	scores map[string]StoredScore     // by item id
	now    func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:  make(map[string]Item),
		byURL:  make(map[string]string),
		scores: make(map[string]StoredScore),
		now:    time.Now,
	}
}

var _ Repository = (*MemoryRepository)(nil)

// Upsert inserts or refreshes an item keyed by URL.
func (r *MemoryRepository) Upsert(_ context.Context, it *Item) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byURL[it.URL]; ok {
		existing := r.items[existingID]
		existing.Title = it.Title
		existing.Summary = it.Summary
		existing.Snippet = it.Snippet
		existing.FullText = it.FullText
		existing.Category = it.Category
		r.items[existingID] = existing
		it.ID = existingID
		return false, nil
	}

	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = r.now().UTC()
	}
	r.items[it.ID] = *it
	r.byURL[it.URL] = it.ID
	return true, nil
}

// GetByID retrieves a single item.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	return &it, nil
}

// ListByCategory returns items in the category and window, most recent
// first with id as tie-breaker, matching the Postgres ordering.
func (r *MemoryRepository) ListByCategory(_ context.Context, category ranking.Category, period Period, limit int) ([]Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cutoff time.Time
	if days := period.Days(); days > 0 {
		cutoff = r.now().AddDate(0, 0, -days)
	}

	var items []Item
	for _, it := range r.items {
		if it.Category != category {
			continue
		}
		if !cutoff.IsZero() && it.PublishedAt.Before(cutoff) {
			continue
		}
		items = append(items, it)
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ID < items[j].ID
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// LoadScores returns stored scores for the given ids.
func (r *MemoryRepository) LoadScores(_ context.Context, ids []string) (map[string]StoredScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]StoredScore, len(ids))
	for _, id := range ids {
		if s, ok := r.scores[id]; ok {
			result[id] = s
		}
	}
	return result, nil
}

// SaveScores stores a batch of scoring records.
func (r *MemoryRepository) SaveScores(_ context.Context, scores []StoredScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range scores {
		if s.ScoredAt.IsZero() {
			s.ScoredAt = r.now().UTC()
		}
		r.scores[s.ItemID] = s
	}
	return nil
}
