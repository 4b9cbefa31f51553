package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TobiSchelling/PitchRadar/internal/config"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
)

func TestSerpAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google_news" || q.Get("q") != "Acme fintech" || q.Get("api_key") != "key" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"news_results": [
			{"title": "Acme raises seed", "link": "https://a.example/1", "date": "01/02/2025", "source": {"name": "TechCrunch"}},
			{"title": "Cluster", "stories": [
				{"title": "Acme hires CFO", "link": "https://a.example/2", "source": {"name": "Reuters"}},
				{"title": "Acme expands", "link": "https://a.example/3", "source": {"name": "FT"}}
			]}
		]}`))
	}))
	defer srv.Close()

	s := NewSerpAPI("key", time.Second)
	s.BaseURL = srv.URL
	result := s.Search(context.Background(), "Acme fintech", 2)
	if result.Error != "" {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	if result.Results[0].Source != "TechCrunch" || result.Results[1].Title != "Acme hires CFO" {
		t.Errorf("unexpected results %+v", result.Results)
	}
}

func TestSerpAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSerpAPI("key", time.Second)
	s.BaseURL = srv.URL
	result := s.Search(context.Background(), "Acme", 5)
	if !strings.Contains(result.Error, "401") {
		t.Errorf("expected HTTP error, got %q", result.Error)
	}
	if result.Results == nil || len(result.Results) != 0 {
		t.Errorf("expected empty non-nil results, got %v", result.Results)
	}

	if NewSerpAPI("", time.Second).Search(context.Background(), "Acme", 5).Error == "" {
		t.Error("expected error without key")
	}
}

func TestNewsAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "key" {
			t.Error("missing api key header")
		}
		w.Write([]byte(`{"status": "ok", "articles": [
			{"url": "https://removed.com", "title": "[Removed]"},
			{"url": "https://n.example/1", "title": " Acme launches ", "publishedAt": "2025-03-04T10:00:00Z", "description": "d", "source": {"name": "Wired"}},
			{"url": "https://n.example/2", "title": "No source"}
		]}`))
	}))
	defer srv.Close()

	c := NewNewsAPI("key", time.Second)
	c.BaseURL = srv.URL
	result := c.Search(context.Background(), "Acme", 10)
	if result.Error != "" {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	first := result.Results[0]
	if first.Title != "Acme launches" || first.Date != "2025-03-04" || first.Source != "Wired" {
		t.Errorf("unexpected first item %+v", first)
	}
	if result.Results[1].Source != "NewsAPI" {
		t.Errorf("expected default source, got %q", result.Results[1].Source)
	}
}

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Acme - Google News</title>
<item><title>Acme closes Series A - TechCrunch</title><link>https://news.example/1</link>
<pubDate>Tue, 04 Mar 2025 10:00:00 GMT</pubDate>
<description>&lt;a href="https://news.example/1"&gt;Acme closes &lt;b&gt;Series A&lt;/b&gt;&lt;/a&gt;</description></item>
<item><title>Second story - Reuters</title><link>https://news.example/2</link></item>
<item><title>Third story - FT</title><link>https://news.example/3</link></item>
</channel></rss>`

func TestGoogleNewsRSSSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Acme" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFixture))
	}))
	defer srv.Close()

	g := NewGoogleNewsRSS(srv.URL, time.Second)
	result := g.Search(context.Background(), "Acme", 2)
	if result.Error != "" {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(result.Results))
	}
	first := result.Results[0]
	if first.Title != "Acme closes Series A" || first.Source != "TechCrunch" {
		t.Errorf("expected publisher split from title, got %+v", first)
	}
	if first.Date != "2025-03-04" {
		t.Errorf("expected parsed date, got %q", first.Date)
	}
	if first.Snippet != "Acme closes Series A" {
		t.Errorf("expected HTML stripped snippet, got %q", first.Snippet)
	}
}

func TestGoogleNewsRSSFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := NewGoogleNewsRSS(srv.URL, time.Second).Search(context.Background(), "Acme", 2)
	if result.Error == "" {
		t.Error("expected error for failing feed")
	}
}

func TestNewNewsSearcherFallsBackToRSS(t *testing.T) {
	cfg := config.NewsSearch{Provider: "serpapi", APIKeyEnv: "PITCHRADAR_TEST_UNSET_SERPAPI"}
	if _, ok := NewNewsSearcher(cfg, nil, nil).(*GoogleNewsRSS); !ok {
		t.Error("expected RSS fallback without a key")
	}

	t.Setenv("PITCHRADAR_TEST_SERPAPI", "k")
	cfg.APIKeyEnv = "PITCHRADAR_TEST_SERPAPI"
	if _, ok := NewNewsSearcher(cfg, nil, nil).(*SerpAPI); !ok {
		t.Error("expected SerpAPI with a key")
	}
	if _, ok := NewNewsSearcher(cfg, NewMemoryCache(time.Minute), nil).(*cachedNews); !ok {
		t.Error("expected cached searcher when a cache is given")
	}
}

func TestMarketResearcherUnconfigured(t *testing.T) {
	cfg := config.MarketSearch{Provider: "perplexity", APIKeyEnv: "PITCHRADAR_TEST_UNSET_PPLX"}
	result := NewMarketResearcher(context.Background(), cfg, nil, nil).Search(context.Background(), "TAM?")
	if result.Error != "market research provider not configured" {
		t.Errorf("unexpected error %q", result.Error)
	}
}

func TestLLMResearcher(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Respond = func(system, user string) (string, error) {
		if !strings.Contains(user, "payments") {
			t.Errorf("expected prompt forwarded, got %q", user)
		}
		return "  Stripe, Adyen  ", nil
	}
	result := NewLLMResearcher(mock, time.Second).Search(context.Background(), "Who leads payments?")
	if result.Answer != "Stripe, Adyen" || result.Error != "" {
		t.Errorf("unexpected result %+v", result)
	}

	mock.Respond = func(string, string) (string, error) { return "", errors.New("quota") }
	result = NewLLMResearcher(mock, 0).Search(context.Background(), "x")
	if !strings.Contains(result.Error, "quota") {
		t.Errorf("expected provider error, got %q", result.Error)
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(context.Background(), "k", []byte("v"))
	if v, ok := c.Get(context.Background(), "k"); !ok || string(v) != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("expected entry to expire")
	}
}

type countingNews struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingNews) Search(ctx context.Context, query string, n int) NewsResult {
	c.calls.Add(1)
	if c.fail {
		return failedNews("down")
	}
	return NewsResult{Results: []NewsItem{{Title: query, Link: "https://x.example"}}}
}

func TestCachedNews(t *testing.T) {
	next := &countingNews{}
	s := WithNewsCache(next, NewMemoryCache(time.Minute))

	s.Search(context.Background(), "Acme", 3)
	result := s.Search(context.Background(), " acme ", 3)
	if next.calls.Load() != 1 {
		t.Errorf("expected one upstream call, got %d", next.calls.Load())
	}
	if len(result.Results) != 1 || result.Results[0].Title != "Acme" {
		t.Errorf("unexpected cached result %+v", result)
	}

	failing := &countingNews{fail: true}
	s = WithNewsCache(failing, NewMemoryCache(time.Minute))
	s.Search(context.Background(), "Acme", 3)
	s.Search(context.Background(), "Acme", 3)
	if failing.calls.Load() != 2 {
		t.Errorf("expected failures not to be cached, got %d calls", failing.calls.Load())
	}
}

func TestCachedMarket(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.Respond = func(string, string) (string, error) { return "answer", nil }
	r := WithMarketCache(NewLLMResearcher(mock, 0), NewMemoryCache(0))

	r.Search(context.Background(), "q")
	if got := r.Search(context.Background(), "q"); got.Answer != "answer" {
		t.Errorf("unexpected answer %q", got.Answer)
	}
	if mock.Calls() != 1 {
		t.Errorf("expected one upstream call, got %d", mock.Calls())
	}
}

func TestNewCacheBackends(t *testing.T) {
	if NewCache(context.Background(), config.Cache{Backend: "none"}, nil) != nil {
		t.Error("expected nil cache for backend none")
	}
	if _, ok := NewCache(context.Background(), config.Cache{Backend: "memory"}, nil).(*MemoryCache); !ok {
		t.Error("expected memory cache")
	}
	unreachable := config.Cache{Backend: "redis", Redis: config.Redis{Addr: "127.0.0.1:1"}}
	if _, ok := NewCache(context.Background(), unreachable, nil).(*MemoryCache); !ok {
		t.Error("expected memory fallback for unreachable redis")
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("PITCHRADAR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PITCHRADAR_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	c := NewRedisCache(client, time.Minute, nil)
	c.Set(context.Background(), "test:k", []byte("v"))
	if v, ok := c.Get(context.Background(), "test:k"); !ok || string(v) != "v" {
		t.Errorf("expected hit, got %q %v", v, ok)
	}
	if _, ok := c.Get(context.Background(), "test:missing"); ok {
		t.Error("expected miss")
	}
}
