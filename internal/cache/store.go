package cache

import (
	"context"

	"github.com/briefcast/briefcast/internal/item"
)

// scoreLoader is the storage-side lookup the cached store wraps.
type scoreLoader interface {
	LoadScores(ctx context.Context, ids []string) (map[string]item.StoredScore, error)
}

// CachedScoreStore layers the Redis cache over a storage score lookup.
// Cache misses fall through to storage and the fetched scores are written
// back; storage errors propagate unmodified.
type CachedScoreStore struct {
	inner scoreLoader
	cache *ScoreCache
}

// NewCachedScoreStore wraps a storage lookup with the cache. A nil cache
// passes every lookup straight through.
func NewCachedScoreStore(inner scoreLoader, cache *ScoreCache) *CachedScoreStore {
	return &CachedScoreStore{inner: inner, cache: cache}
}

// LoadScores resolves ids from the cache first, then storage for the rest.
func (s *CachedScoreStore) LoadScores(ctx context.Context, ids []string) (map[string]item.StoredScore, error) {
	hits := s.cache.Get(ctx, ids)
	if len(hits) == len(ids) {
		return hits, nil
	}

	missing := make([]string, 0, len(ids)-len(hits))
	for _, id := range ids {
		if _, ok := hits[id]; !ok {
			missing = append(missing, id)
		}
	}

	loaded, err := s.inner.LoadScores(ctx, missing)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, loaded)
	for id, score := range loaded {
		hits[id] = score
	}
	return hits, nil
}
