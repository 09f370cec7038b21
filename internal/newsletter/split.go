// Package newsletter decomposes multi-article newsletter HTML into
// individual items so each story ranks on its own merits instead of
// riding on the issue's subject line.
package newsletter

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/briefcast/briefcast/internal/item"
	"github.com/briefcast/briefcast/internal/ranking"
	"github.com/briefcast/briefcast/internal/validate"
)

const (
	// minTitleLength filters out navigation links and bare "Read more"
	// anchors masquerading as stories.
	minTitleLength = 15

	// maxSummaryLength bounds how much surrounding text one story carries.
	maxSummaryLength = 500
)

// junkLinkFragments mark links that are newsletter chrome, not stories.
var junkLinkFragments = []string{
	"unsubscribe",
	"mailto:",
	"twitter.com/intent",
	"privacy",
	"preferences",
	"view in browser",
	"sponsor",
}

// Story is one article extracted from a newsletter issue.
type Story struct {
	Title   string
	Summary string
	URL     string
}

// Split extracts individual stories from newsletter HTML. The parse is
// tolerant: malformed HTML yields whatever stories can be recovered, never
// an error. Stories are deduplicated by URL, first occurrence winning.
func Split(html string) []Story {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var stories []Story
	seen := make(map[string]bool)

	// Heading-anchored stories first: an <h1>-<h3> wrapping or followed by
	// a link is the strongest signal of a distinct article.
	doc.Find("h1, h2, h3").Each(func(_ int, heading *goquery.Selection) {
		link := heading.Find("a[href]").First()
		if link.Length() == 0 {
			link = heading.NextAllFiltered("p, div").First().Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}

		title := cleanText(heading.Text())
		story, ok := buildStory(title, href, summaryAfter(heading))
		if !ok || seen[story.URL] {
			return
		}
		seen[story.URL] = true
		stories = append(stories, story)
	})

	// Fallback: bold or standalone anchors with story-length text, for
	// newsletters that skip headings entirely.
	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		title := cleanText(link.Text())
		story, ok := buildStory(title, href, summaryAfter(link))
		if !ok || seen[story.URL] {
			return
		}
		seen[story.URL] = true
		stories = append(stories, story)
	})

	return stories
}

// SplitIntoItems runs Split and maps the stories onto items inheriting the
// parent newsletter's source, category, and publication time.
func SplitIntoItems(html, sourceName string, category ranking.Category, publishedAt time.Time) []item.Item {
	stories := Split(html)
	items := make([]item.Item, 0, len(stories))
	for _, s := range stories {
		items = append(items, item.Item{
			Title:       s.Title,
			Summary:     s.Summary,
			URL:         s.URL,
			SourceName:  sourceName,
			Category:    category,
			PublishedAt: publishedAt,
		})
	}
	return items
}

// buildStory validates and assembles one story candidate.
func buildStory(title, href, summary string) (Story, bool) {
	if len(title) < minTitleLength {
		return Story{}, false
	}
	if _, err := validate.ItemTitle(title); err != nil {
		return Story{}, false
	}
	href, ok := storyLink(href)
	if !ok {
		return Story{}, false
	}
	return Story{Title: title, Summary: summary, URL: href}, true
}

// storyLink rejects tracking chrome and junk links, then applies the shared
// URL shape checks.
func storyLink(href string) (string, bool) {
	lower := strings.ToLower(href)
	for _, junk := range junkLinkFragments {
		if strings.Contains(lower, junk) {
			return "", false
		}
	}
	href, err := validate.StoryURL(href)
	if err != nil {
		return "", false
	}
	return href, true
}

// summaryAfter collects the text of the sibling paragraphs following a node,
// stopping at the next heading (the next story's boundary) or the summary
// bound, whichever comes first.
func summaryAfter(sel *goquery.Selection) string {
	var parts []string
	length := 0
	sel.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
		switch goquery.NodeName(sib) {
		case "h1", "h2", "h3":
			return false
		case "p", "div":
			text := cleanText(sib.Text())
			if text == "" {
				return true
			}
			parts = append(parts, text)
			length += len(text)
			return length < maxSummaryLength
		}
		return true
	})

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryLength {
		summary = summary[:maxSummaryLength]
	}
	return summary
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
