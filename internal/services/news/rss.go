package news

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"EconPulse/internal/domain/models"
	domrepo "EconPulse/internal/domain/repository"
)

// RSSFeed polls one RSS/Atom feed.
type RSSFeed struct {
	name     string
	url      string
	parser   *gofeed.Parser
	timeout  time.Duration
	maxItems int
	keywords []string
}

type RSSOption func(*RSSFeed)

// WithKeywords keeps only items whose title or summary mentions one of the
// keywords, case-insensitively.
func WithKeywords(words ...string) RSSOption {
	return func(f *RSSFeed) {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				f.keywords = append(f.keywords, w)
			}
		}
	}
}

func WithMaxItems(n int) RSSOption {
	return func(f *RSSFeed) { f.maxItems = n }
}

func WithPollTimeout(d time.Duration) RSSOption {
	return func(f *RSSFeed) { f.timeout = d }
}

func NewRSSFeed(name, url string, opts ...RSSOption) *RSSFeed {
	f := &RSSFeed{
		name:     name,
		url:      url,
		parser:   gofeed.NewParser(),
		timeout:  15 * time.Second,
		maxItems: 20,
	}
	f.parser.UserAgent = "EconPulse/1.0"
	for _, opt := range opts {
		opt(f)
	}
	return f
}

var _ domrepo.NewsSource = (*RSSFeed)(nil)

func (f *RSSFeed) Name() string { return f.name }

// Poll returns the newest items first, at most maxItems of them.
func (f *RSSFeed) Poll(ctx context.Context) ([]models.NewsItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss %s: %w", f.name, err)
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil || strings.TrimSpace(it.Title) == "" {
			continue
		}
		item := models.NewsItem{
			ID:      it.GUID,
			Source:  f.name,
			Title:   cleanText(it.Title),
			Summary: cleanText(it.Description),
			URL:     it.Link,
		}
		switch {
		case it.PublishedParsed != nil:
			item.Published = it.PublishedParsed.UTC()
		case it.UpdatedParsed != nil:
			item.Published = it.UpdatedParsed.UTC()
		}
		if !f.matches(item) {
			continue
		}
		items = append(items, item)
		if f.maxItems > 0 && len(items) >= f.maxItems {
			break
		}
	}
	return items, nil
}

func (f *RSSFeed) matches(item models.NewsItem) bool {
	if len(f.keywords) == 0 {
		return true
	}
	text := strings.ToLower(item.Title + " " + item.Summary)
	for _, k := range f.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// cleanText strips markup from feed descriptions.
func cleanText(s string) string {
	s = html.UnescapeString(tagPattern.ReplaceAllString(s, " "))
	return strings.Join(strings.Fields(s), " ")
}
