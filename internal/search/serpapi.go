package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const serpAPIBaseURL = "https://serpapi.com/search.json"

// SerpAPI searches Google News through serpapi.com.
type SerpAPI struct {
	apiKey  string
	BaseURL string
	client  *http.Client
}

// NewSerpAPI creates a SerpAPI news client.
func NewSerpAPI(apiKey string, timeout time.Duration) *SerpAPI {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SerpAPI{
		apiKey:  apiKey,
		BaseURL: serpAPIBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type serpNewsResult struct {
	Title  string `json:"title"`
	Link   string `json:"link"`
	Date   string `json:"date"`
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Stories []serpNewsResult `json:"stories"`
}

// Search queries the google_news engine. Clustered results contribute their
// nested stories.
func (s *SerpAPI) Search(ctx context.Context, query string, numResults int) NewsResult {
	if s.apiKey == "" {
		return failedNews("SerpAPI key not configured")
	}

	params := url.Values{
		"engine":  {"google_news"},
		"q":       {query},
		"gl":      {"us"},
		"hl":      {"en"},
		"api_key": {s.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return failedNews(fmt.Sprintf("SerpAPI request error: %v", err))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return failedNews(fmt.Sprintf("SerpAPI error: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failedNews(fmt.Sprintf("SerpAPI HTTP error: %d", resp.StatusCode))
	}

	var result struct {
		Error       string           `json:"error"`
		NewsResults []serpNewsResult `json:"news_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failedNews(fmt.Sprintf("SerpAPI decode error: %v", err))
	}
	if result.Error != "" {
		return failedNews("SerpAPI: " + result.Error)
	}

	items := []NewsItem{}
	var add func(r serpNewsResult)
	add = func(r serpNewsResult) {
		if len(items) >= numResults {
			return
		}
		if r.Link != "" && strings.TrimSpace(r.Title) != "" {
			items = append(items, NewsItem{
				Title:  strings.TrimSpace(r.Title),
				Link:   r.Link,
				Source: r.Source.Name,
				Date:   r.Date,
			})
		}
		for _, story := range r.Stories {
			add(story)
		}
	}
	for _, r := range result.NewsResults {
		add(r)
	}

	return NewsResult{Results: items}
}
