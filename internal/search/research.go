package search

import (
	"context"
	"strings"
	"time"

	"github.com/TobiSchelling/PitchRadar/internal/llm"
)

const researchSystem = `You are a market research assistant with web access. Answer factually and concisely, naming concrete companies, products and figures where you can. If you are unsure, say so.`

// LLMResearcher answers market questions with a chat model, typically an
// online model such as Perplexity's sonar.
type LLMResearcher struct {
	provider llm.Provider
	timeout  time.Duration
}

// NewLLMResearcher wraps provider as a MarketResearcher.
func NewLLMResearcher(provider llm.Provider, timeout time.Duration) *LLMResearcher {
	return &LLMResearcher{provider: provider, timeout: timeout}
}

// Search asks one question.
func (r *LLMResearcher) Search(ctx context.Context, prompt string) MarketResult {
	if !r.provider.IsConfigured() {
		return MarketResult{Error: "market research provider not configured"}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	answer, err := r.provider.Predict(llm.WithTool(ctx, "market_research"), researchSystem, prompt)
	if err != nil {
		return MarketResult{Error: "market research error: " + err.Error()}
	}
	return MarketResult{Answer: strings.TrimSpace(answer)}
}
