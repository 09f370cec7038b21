package newsletter

import (
	"strings"
	"testing"
	"time"

	"github.com/briefcast/briefcast/internal/ranking"
)

const issueHTML = `
<html><body>
<p>View in browser | <a href="https://news.example.com/unsubscribe">Unsubscribe</a></p>
<h1>Weekly AI Briefing #42</h1>

<h2><a href="https://example.com/agents-production">Running agents in production at scale</a></h2>
<p>A detailed writeup on orchestrating fleets of agents with retries and budgets.</p>
<p>Includes latency numbers from a six month deployment.</p>

<h2>Fine-tuning on a single GPU</h2>
<p><a href="https://example.com/single-gpu">Read the full guide</a></p>
<p>Quantization tricks that fit a 7B model into consumer hardware.</p>

<h2><a href="mailto:editor@example.com">Reply to the editor</a></h2>

<p><a href="https://example.com/sponsor-slot">Sponsor: try our amazing developer tool today</a></p>
</body></html>`

func TestSplit(t *testing.T) {
	stories := Split(issueHTML)

	if len(stories) != 2 {
		t.Fatalf("expected 2 stories, got %d: %+v", len(stories), stories)
	}

	first := stories[0]
	if first.Title != "Running agents in production at scale" {
		t.Errorf("unexpected first title: %q", first.Title)
	}
	if first.URL != "https://example.com/agents-production" {
		t.Errorf("unexpected first url: %q", first.URL)
	}
	if !strings.Contains(first.Summary, "orchestrating fleets of agents") {
		t.Errorf("summary missing paragraph text: %q", first.Summary)
	}
	if strings.Contains(first.Summary, "Quantization") {
		t.Errorf("summary leaked across story boundary: %q", first.Summary)
	}

	second := stories[1]
	if second.URL != "https://example.com/single-gpu" {
		t.Errorf("unexpected second url: %q", second.URL)
	}
}

func TestSplitFiltersJunk(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"unsubscribe link", `<h2><a href="https://news.example.com/unsubscribe">Unsubscribe from this newsletter</a></h2>`},
		{"mailto link", `<h2><a href="mailto:a@b.com">Write to us about anything at all</a></h2>`},
		{"short title", `<h2><a href="https://example.com/x">Tiny</a></h2>`},
		{"relative url", `<h2><a href="/local/path">A relative link with a long title</a></h2>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if stories := Split(tt.html); len(stories) != 0 {
				t.Errorf("expected no stories, got %+v", stories)
			}
		})
	}
}

func TestSplitMalformedHTML(t *testing.T) {
	// Unclosed tags and stray brackets must not panic or error.
	stories := Split(`<h2><a href="https://example.com/a">A story title long enough to keep<p>text`)
	if len(stories) != 1 {
		t.Fatalf("expected tolerant parse to recover 1 story, got %d", len(stories))
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if stories := Split(""); len(stories) != 0 {
		t.Errorf("expected no stories from empty input, got %+v", stories)
	}
}

func TestSplitDeduplicatesByURL(t *testing.T) {
	html := `
<h2><a href="https://example.com/a">The same story linked twice over</a></h2>
<p><a href="https://example.com/a">The same story linked twice over</a></p>`

	stories := Split(html)
	if len(stories) != 1 {
		t.Fatalf("expected 1 deduplicated story, got %d", len(stories))
	}
}

func TestSplitIntoItems(t *testing.T) {
	published := time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC)

	items := SplitIntoItems(issueHTML, "Weekly AI Briefing", ranking.CategoryAI, published)

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, it := range items {
		if it.SourceName != "Weekly AI Briefing" {
			t.Errorf("source not inherited: %q", it.SourceName)
		}
		if it.Category != ranking.CategoryAI {
			t.Errorf("category not inherited: %q", it.Category)
		}
		if !it.PublishedAt.Equal(published) {
			t.Errorf("published_at not inherited: %v", it.PublishedAt)
		}
	}
}
