// Package search wraps the external news and market-research lookups used
// to enrich an analysis. Every lookup degrades to an empty result with an
// error message rather than failing its caller.
package search

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/config"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
)

// NewsItem is one news hit. Ordering is whatever the provider returned.
type NewsItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Source  string `json:"source"`
	Date    string `json:"date"`
	Snippet string `json:"snippet,omitempty"`
}

// NewsResult is the outcome of a news lookup.
type NewsResult struct {
	Results []NewsItem `json:"results"`
	Error   string     `json:"error,omitempty"`
}

// MarketResult is the outcome of a market-research question.
type MarketResult struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// NewsSearcher finds recent news for a query.
type NewsSearcher interface {
	Search(ctx context.Context, query string, numResults int) NewsResult
}

// MarketResearcher answers free-text market questions.
type MarketResearcher interface {
	Search(ctx context.Context, prompt string) MarketResult
}

func failedNews(msg string) NewsResult {
	return NewsResult{Results: []NewsItem{}, Error: msg}
}

// NewNewsSearcher builds the configured news provider, falling back to the
// keyless Google News RSS feed when the chosen provider has no API key.
// cache may be nil.
func NewNewsSearcher(cfg config.NewsSearch, cache Cache, log logrus.FieldLogger) NewsSearcher {
	log = logger.OrDiscard(log)
	apiKey := config.APIKey(cfg.APIKeyEnv)

	var s NewsSearcher
	switch strings.ToLower(cfg.Provider) {
	case "serpapi":
		if apiKey != "" {
			s = NewSerpAPI(apiKey, cfg.Timeout)
		}
	case "newsapi":
		if apiKey != "" {
			s = NewNewsAPI(apiKey, cfg.Timeout)
		}
	case "rss", "":
	default:
		log.Warnf("Unknown news provider %q", cfg.Provider)
	}
	if s == nil {
		if cfg.Provider != "rss" && cfg.Provider != "" {
			log.Infof("News provider %q not configured (set %s), using Google News RSS", cfg.Provider, cfg.APIKeyEnv)
		}
		s = NewGoogleNewsRSS(cfg.RSSURL, cfg.Timeout)
	}
	return WithNewsCache(s, cache)
}

// NewMarketResearcher builds the configured research provider. Without an
// API key the returned researcher reports "market research provider not
// configured" on every call.
func NewMarketResearcher(ctx context.Context, cfg config.MarketSearch, cache Cache, log logrus.FieldLogger) MarketResearcher {
	log = logger.OrDiscard(log)
	apiKey := config.APIKey(cfg.APIKeyEnv)
	if apiKey == "" {
		log.Infof("Market research not configured (set %s)", cfg.APIKeyEnv)
		return unconfiguredResearcher{}
	}

	provider, err := llm.NewOpenAIProvider(ctx, cfg.Model, apiKey, cfg.BaseURL, 0, 0)
	if err != nil {
		log.Warnf("Market research provider unavailable: %v", err)
		return unconfiguredResearcher{}
	}
	return WithMarketCache(NewLLMResearcher(provider, cfg.Timeout), cache)
}

type unconfiguredResearcher struct{}

func (unconfiguredResearcher) Search(context.Context, string) MarketResult {
	return MarketResult{Error: "market research provider not configured"}
}
