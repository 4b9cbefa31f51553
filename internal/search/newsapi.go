package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// NewsAPI searches newsapi.org.
type NewsAPI struct {
	apiKey  string
	BaseURL string
	client  *http.Client
}

// NewNewsAPI creates a NewsAPI client.
func NewNewsAPI(apiKey string, timeout time.Duration) *NewsAPI {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &NewsAPI{
		apiKey:  apiKey,
		BaseURL: newsAPIBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Search returns the most relevant English articles for query.
func (c *NewsAPI) Search(ctx context.Context, query string, numResults int) NewsResult {
	if c.apiKey == "" {
		return failedNews("NewsAPI key not configured")
	}
	pageSize := max(1, min(numResults, 100))

	params := url.Values{
		"q":        {query},
		"language": {"en"},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"relevancy"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return failedNews(fmt.Sprintf("NewsAPI request error: %v", err))
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return failedNews(fmt.Sprintf("NewsAPI error: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failedNews(fmt.Sprintf("NewsAPI HTTP error: %d", resp.StatusCode))
	}

	var result struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		Articles []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			Description string `json:"description"`
			Source      struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failedNews(fmt.Sprintf("NewsAPI decode error: %v", err))
	}
	if result.Status != "ok" {
		return failedNews(fmt.Sprintf("NewsAPI status %s: %s", result.Status, result.Message))
	}

	items := []NewsItem{}
	for _, a := range result.Articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		if a.Title == "[Removed]" || a.URL == "https://removed.com" {
			continue
		}

		var date string
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			date = t.Format("2006-01-02")
		}

		source := "NewsAPI"
		if a.Source.Name != "" {
			source = a.Source.Name
		}

		items = append(items, NewsItem{
			Title:   strings.TrimSpace(a.Title),
			Link:    a.URL,
			Source:  source,
			Date:    date,
			Snippet: strings.TrimSpace(a.Description),
		})
		if len(items) >= numResults {
			break
		}
	}

	return NewsResult{Results: items}
}
