package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const googleNewsRSS = "https://news.google.com/rss/search"

// GoogleNewsRSS reads the public Google News search feed. It needs no key.
type GoogleNewsRSS struct {
	BaseURL string
	timeout time.Duration
	parser  *gofeed.Parser
}

// NewGoogleNewsRSS creates an RSS news client.
func NewGoogleNewsRSS(baseURL string, timeout time.Duration) *GoogleNewsRSS {
	if baseURL == "" {
		baseURL = googleNewsRSS
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = "PitchRadar/1.0"
	return &GoogleNewsRSS{BaseURL: baseURL, timeout: timeout, parser: parser}
}

// Search parses the feed for query and keeps the first numResults items.
func (g *GoogleNewsRSS) Search(ctx context.Context, query string, numResults int) NewsResult {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := url.Values{
		"q":    {query},
		"hl":   {"en-US"},
		"gl":   {"US"},
		"ceid": {"US:en"},
	}
	feed, err := g.parser.ParseURLWithContext(g.BaseURL+"?"+params.Encode(), ctx)
	if err != nil {
		return failedNews(fmt.Sprintf("Google News RSS error: %v", err))
	}

	items := []NewsItem{}
	for _, entry := range feed.Items {
		if len(items) >= numResults {
			break
		}
		if item, ok := parseRSSItem(entry); ok {
			items = append(items, item)
		}
	}
	return NewsResult{Results: items}
}

// parseRSSItem splits Google's "Headline - Publisher" titles and flattens
// the HTML description.
func parseRSSItem(entry *gofeed.Item) (NewsItem, bool) {
	link := entry.Link
	if link == "" {
		link = entry.GUID
	}
	title := strings.TrimSpace(entry.Title)
	if link == "" || title == "" {
		return NewsItem{}, false
	}

	var source string
	if i := strings.LastIndex(title, " - "); i > 0 {
		source = strings.TrimSpace(title[i+3:])
		title = strings.TrimSpace(title[:i])
	}

	var date string
	if entry.PublishedParsed != nil {
		date = entry.PublishedParsed.Format("2006-01-02")
	} else if entry.UpdatedParsed != nil {
		date = entry.UpdatedParsed.Format("2006-01-02")
	}

	return NewsItem{
		Title:   title,
		Link:    link,
		Source:  source,
		Date:    date,
		Snippet: htmlText(entry.Description),
	}, true
}

func htmlText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
