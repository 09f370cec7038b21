package item

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/briefcast/briefcast/internal/ranking"
	"github.com/briefcast/briefcast/internal/tracing"
)

// Repository defines the data operations the ranking pipeline needs.
type Repository interface {
	// Upsert inserts a new item or refreshes an existing one keyed by URL.
	// Returns true if a new row was inserted.
	Upsert(ctx context.Context, it *Item) (bool, error)

	// GetByID retrieves a single item.
	GetByID(ctx context.Context, id string) (*Item, error)

	// ListByCategory retrieves items for a category within the period
	// window, ordered by published_at DESC, id ASC (tie-breaker).
	ListByCategory(ctx context.Context, category ranking.Category, period Period, limit int) ([]Item, error)

	// LoadScores retrieves persisted scores for the given item ids.
	// Absent ids are simply missing from the returned map.
	LoadScores(ctx context.Context, ids []string) (map[string]StoredScore, error)

	// SaveScores persists a batch of scoring records atomically.
	SaveScores(ctx context.Context, scores []StoredScore) error
}

// PostgresRepository implements Repository against PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

var _ Repository = (*PostgresRepository)(nil)

// Upsert inserts or refreshes an item, idempotent on URL so repeated ingest
// polls never duplicate entries.
func (r *PostgresRepository) Upsert(ctx context.Context, it *Item) (bool, error) {
	ctx, end := tracing.StartDBSpan(ctx, "items", tracing.DBOperationInsert)
	var err error
	defer func() { end(err) }()

	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO items (id, title, summary, snippet, full_text, url, source_name, category, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			snippet = EXCLUDED.snippet,
			full_text = EXCLUDED.full_text,
			category = EXCLUDED.category
		RETURNING (xmax = 0)
	`

	var inserted bool
	err = r.db.QueryRowContext(ctx, query,
		it.ID, it.Title, it.Summary, it.Snippet, it.FullText,
		it.URL, it.SourceName, string(it.Category), it.PublishedAt, it.CreatedAt,
	).Scan(&inserted)
	if err != nil {
		r.logger.Error("failed to upsert item",
			slog.String("error", err.Error()),
			slog.String("url", it.URL))
		return false, fmt.Errorf("failed to upsert item: %w", err)
	}
	return inserted, nil
}

// GetByID retrieves a single item by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Item, error) {
	ctx, end := tracing.StartDBSpan(ctx, "items", tracing.DBOperationQuery)
	var err error
	defer func() { end(err) }()

	query := `
		SELECT id, title, summary, snippet, full_text, url, source_name, category, published_at, created_at
		FROM items
		WHERE id = $1
	`

	var it Item
	var category string
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&it.ID, &it.Title, &it.Summary, &it.Snippet, &it.FullText,
		&it.URL, &it.SourceName, &category, &it.PublishedAt, &it.CreatedAt,
	)
	if err == sql.ErrNoRows {
		err = ErrItemNotFound
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	it.Category = ranking.Category(category)
	return &it, nil
}

// ListByCategory retrieves the ranking batch for one category and period.
// The query is built dynamically because the period filter is optional
// (the all-time view has no window).
func (r *PostgresRepository) ListByCategory(ctx context.Context, category ranking.Category, period Period, limit int) ([]Item, error) {
	ctx, end := tracing.StartDBSpan(ctx, "items", tracing.DBOperationQuery)
	var err error
	defer func() { end(err) }()

	builder := sq.Select("id", "title", "summary", "snippet", "full_text", "url", "source_name", "category", "published_at", "created_at").
		From("items").
		Where(sq.Eq{"category": string(category)}).
		OrderBy("published_at DESC", "id ASC").
		PlaceholderFormat(sq.Dollar)

	if days := period.Days(); days > 0 {
		builder = builder.Where(sq.Expr("published_at >= NOW() - ? * INTERVAL '1 day'", days))
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list items",
			slog.String("error", err.Error()),
			slog.String("category", string(category)),
			slog.String("period", string(period)))
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var category string
		if err = rows.Scan(
			&it.ID, &it.Title, &it.Summary, &it.Snippet, &it.FullText,
			&it.URL, &it.SourceName, &category, &it.PublishedAt, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.Category = ranking.Category(category)
		items = append(items, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// LoadScores retrieves persisted scores for the given ids in one round trip.
func (r *PostgresRepository) LoadScores(ctx context.Context, ids []string) (map[string]StoredScore, error) {
	if len(ids) == 0 {
		return map[string]StoredScore{}, nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "item_scores", tracing.DBOperationQuery)
	var err error
	defer func() { end(err) }()

	query := `
		SELECT item_id, llm_relevance, llm_usefulness, llm_tags, bm25_score, final_score, scored_at
		FROM item_scores
		WHERE item_id = ANY($1)
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.logger.Error("failed to load scores",
			slog.String("error", err.Error()),
			slog.Int("ids", len(ids)))
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]StoredScore, len(ids))
	for rows.Next() {
		var s StoredScore
		var tags pq.StringArray
		if err = rows.Scan(&s.ItemID, &s.LLMRelevance, &s.LLMUsefulness, &tags, &s.BM25Score, &s.FinalScore, &s.ScoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		s.LLMTags = tags
		scores[s.ItemID] = s
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scores: %w", err)
	}
	return scores, nil
}

// SaveScores persists a batch of scoring records in one transaction so a
// partially written batch never becomes visible to ranking.
func (r *PostgresRepository) SaveScores(ctx context.Context, scores []StoredScore) error {
	if len(scores) == 0 {
		return nil
	}

	ctx, end := tracing.StartDBSpan(ctx, "item_scores", tracing.DBOperationInsert)
	var err error
	defer func() { end(err) }()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Warn("failed to rollback transaction", slog.String("error", rbErr.Error()))
		}
	}()

	query := `
		INSERT INTO item_scores (item_id, llm_relevance, llm_usefulness, llm_tags, bm25_score, final_score, scored_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (item_id) DO UPDATE SET
			llm_relevance = EXCLUDED.llm_relevance,
			llm_usefulness = EXCLUDED.llm_usefulness,
			llm_tags = EXCLUDED.llm_tags,
			bm25_score = EXCLUDED.bm25_score,
			final_score = EXCLUDED.final_score,
			scored_at = EXCLUDED.scored_at
	`

	for _, s := range scores {
		scoredAt := s.ScoredAt
		if scoredAt.IsZero() {
			scoredAt = time.Now().UTC()
		}
		if _, err = tx.ExecContext(ctx, query,
			s.ItemID, s.LLMRelevance, s.LLMUsefulness, pq.StringArray(s.LLMTags),
			s.BM25Score, s.FinalScore, scoredAt,
		); err != nil {
			return fmt.Errorf("failed to save score for %s: %w", s.ItemID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scores: %w", err)
	}
	return nil
}
