// Package feed polls the upstream feed aggregation API for new entries and
// maps them into items. Transient upstream failures are retried with
// exponential backoff and jitter; client errors fail immediately.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/ranking"
	"github.com/briefcast/briefcast/internal/validate"
)

// ErrUpstreamRejected indicates a non-retryable 4xx response from the
// aggregation API.
var ErrUpstreamRejected = errors.New("feed upstream rejected request")

// Config holds the polling client's connection and retry settings.
type Config struct {
	// BaseURL is the aggregation API root, e.g. https://feeds.example.com.
	BaseURL string

	// APIKey is sent as a bearer token on every request.
	APIKey string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// BaseDelay is the first retry delay; it doubles per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// JitterFactor randomizes delays by +/- factor/2 to avoid thundering
	// herds across workers. 0 disables jitter.
	JitterFactor float64
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("feed base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid feed base url: %w", err)
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	return nil
}

// withDefaults fills unset durations.
func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// Client fetches entries from the aggregation API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand // protected by mu
}

// NewClient creates a feed client with the given configuration.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// entry is the aggregation API's wire representation of one feed item.
type entry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Snippet     string    `json:"snippet"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	SourceName  string    `json:"source_name"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at"`
}

// ListEntries fetches entries for a category published after since. A zero
// since fetches the upstream's full window. Retries cover network errors and
// 5xx responses; 4xx responses return ErrUpstreamRejected without retrying.
func (c *Client) ListEntries(ctx context.Context, category ranking.Category, since time.Time) ([]item.Item, error) {
	endpoint, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	endpoint = endpoint.JoinPath("v1", "entries")

	query := endpoint.Query()
	query.Set("category", string(category))
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}
	endpoint.RawQuery = query.Encode()

	var entries []entry
	for attempt := 0; ; attempt++ {
		entries, err = c.fetch(ctx, endpoint.String())
		if err == nil {
			break
		}
		if errors.Is(err, ErrUpstreamRejected) || ctx.Err() != nil {
			return nil, err
		}
		if attempt >= c.config.MaxRetries {
			return nil, fmt.Errorf("list entries after %d attempts: %w", attempt+1, err)
		}

		delay := c.computeBackoff(attempt)
		c.logger.Warn("feed fetch failed, retrying",
			slog.String("category", string(category)),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	items := make([]item.Item, 0, len(entries))
	for _, e := range entries {
		mapped, ok := mapEntry(e, category)
		if !ok {
			c.logger.Debug("skipping malformed feed entry", slog.String("id", e.ID), slog.String("url", e.URL))
			continue
		}
		items = append(items, mapped)
	}
	return items, nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch entries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("upstream error %s", resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstreamRejected, resp.Status, strings.TrimSpace(string(detail)))
	}

	var payload struct {
		Entries []entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}
	return payload.Entries, nil
}

// mapEntry converts a wire entry into an item, rejecting entries that lack
// the fields ranking depends on.
func mapEntry(e entry, fallback ranking.Category) (item.Item, bool) {
	title, err := validate.ItemTitle(e.Title)
	if err != nil {
		return item.Item{}, false
	}
	entryURL, err := validate.StoryURL(e.URL)
	if err != nil {
		return item.Item{}, false
	}
	summary, err := validate.ItemSummary(e.Summary)
	if err != nil {
		return item.Item{}, false
	}

	category := fallback
	if parsed, err := ranking.ParseCategory(e.Category); err == nil {
		category = parsed
	}

	return item.Item{
		ID:          e.ID,
		Title:       title,
		Summary:     summary,
		Snippet:     strings.TrimSpace(e.Snippet),
		FullText:    e.Content,
		URL:         entryURL,
		SourceName:  e.SourceName,
		Category:    category,
		PublishedAt: e.PublishedAt,
	}, true
}

// computeBackoff calculates the retry delay for the given attempt with
// exponential growth and jitter.
func (c *Client) computeBackoff(attempt int) time.Duration {
	shift := uint(attempt)
	if shift > 30 {
		shift = 30
	}
	backoff := float64(c.config.BaseDelay) * float64(uint64(1)<<shift)
	if backoff > float64(c.config.MaxDelay) {
		backoff = float64(c.config.MaxDelay)
	}

	if c.config.JitterFactor > 0 {
		c.mu.Lock()
		jitter := (c.rng.Float64() - 0.5) * c.config.JitterFactor
		c.mu.Unlock()
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}
