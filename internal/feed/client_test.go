package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/briefcast/briefcast/internal/ranking"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{BaseURL: "https://feeds.example.com"}, false},
		{"missing base url", Config{}, true},
		{"negative retries", Config{BaseURL: "https://feeds.example.com", MaxRetries: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListEntries(t *testing.T) {
	published := time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("category"); got != "ai" {
			t.Errorf("expected category query, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{
					"id":           "e-1",
					"title":        "  A headline  ",
					"summary":      "A summary",
					"url":          "https://example.com/a",
					"source_name":  "Example Blog",
					"category":     "ai",
					"published_at": published,
				},
				{
					// No URL, must be skipped.
					"id":    "e-2",
					"title": "Broken",
				},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	items, err := c.ListEntries(context.Background(), ranking.CategoryAI, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != "A headline" {
		t.Errorf("title not trimmed: %q", items[0].Title)
	}
	if items[0].Category != ranking.CategoryAI {
		t.Errorf("category not mapped: %q", items[0].Category)
	}
	if !items[0].PublishedAt.Equal(published) {
		t.Errorf("published_at not mapped: %v", items[0].PublishedAt)
	}
}

func TestListEntriesRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"entries": []map[string]any{
			{"id": "e-1", "title": "Recovered", "url": "https://example.com/a"},
		}})
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		BaseURL:    srv.URL,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	items, err := c.ListEntries(context.Background(), ranking.CategoryAI, time.Time{})
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if len(items) != 1 || calls.Load() != 3 {
		t.Errorf("expected 1 item after 3 calls, got %d items, %d calls", len(items), calls.Load())
	}
}

func TestListEntriesClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, MaxRetries: 5, BaseDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.ListEntries(context.Background(), ranking.CategoryAI, time.Time{})
	if !errors.Is(err, ErrUpstreamRejected) {
		t.Fatalf("expected ErrUpstreamRejected, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls.Load())
	}
}

func TestListEntriesExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, MaxRetries: 2, BaseDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.ListEntries(context.Background(), ranking.CategoryAI, time.Time{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestComputeBackoffGrowsAndCaps(t *testing.T) {
	c, err := NewClient(Config{
		BaseURL:   "https://feeds.example.com",
		BaseDelay: time.Second,
		MaxDelay:  10 * time.Second,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := c.computeBackoff(0); got != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", got)
	}
	if got := c.computeBackoff(2); got != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %v", got)
	}
	if got := c.computeBackoff(10); got != 10*time.Second {
		t.Errorf("attempt 10: expected cap 10s, got %v", got)
	}
}
