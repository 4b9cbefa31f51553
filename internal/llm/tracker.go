package llm

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Pricing is USD per one million tokens.
type Pricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// ModelPricing holds list prices for the models PitchRadar is usually run
// against. Unknown models are tracked with zero cost.
var ModelPricing = map[string]Pricing{
	"gemini-2.5-flash": {Input: 0.075, Output: 0.30},
	"gemini-1.5-flash": {Input: 0.075, Output: 0.30},
	"gemini-1.5-pro":   {Input: 1.25, Output: 5.00},
	"gpt-4":            {Input: 30.0, Output: 60.0},
	"gpt-3.5-turbo":    {Input: 0.5, Output: 1.5},
}

// EstimateTokens approximates a token count as one token per four
// characters, with a floor of one for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Usage is a single tracked LLM call.
type Usage struct {
	Tool         string    `json:"tool"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Failed       bool      `json:"failed,omitempty"`
	At           time.Time `json:"at"`
}

// UsageTotals aggregates calls for one tool or model.
type UsageTotals struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

func (t *UsageTotals) add(u Usage) {
	t.Calls++
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
	t.Cost += u.Cost
}

// UsageSummary is the per-run token report.
type UsageSummary struct {
	Total   UsageTotals             `json:"total"`
	ByTool  map[string]*UsageTotals `json:"by_tool"`
	ByModel map[string]*UsageTotals `json:"by_model"`
	Tools   []string                `json:"tools"`
}

// Tracker accumulates estimated token usage. Safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	calls []Usage
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track records one call and returns the stored usage.
func (t *Tracker) Track(tool, model, input, output string, failed bool) Usage {
	u := Usage{
		Tool:         tool,
		Model:        model,
		InputTokens:  EstimateTokens(input),
		OutputTokens: EstimateTokens(output),
		Failed:       failed,
		At:           time.Now(),
	}
	if p, ok := ModelPricing[model]; ok {
		u.Cost = float64(u.InputTokens)/1e6*p.Input + float64(u.OutputTokens)/1e6*p.Output
	}

	t.mu.Lock()
	t.calls = append(t.calls, u)
	t.mu.Unlock()
	return u
}

// Summary aggregates everything tracked so far.
func (t *Tracker) Summary() UsageSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := UsageSummary{
		ByTool:  make(map[string]*UsageTotals),
		ByModel: make(map[string]*UsageTotals),
	}
	for _, u := range t.calls {
		s.Total.add(u)
		if s.ByTool[u.Tool] == nil {
			s.ByTool[u.Tool] = &UsageTotals{}
			s.Tools = append(s.Tools, u.Tool)
		}
		s.ByTool[u.Tool].add(u)
		if s.ByModel[u.Model] == nil {
			s.ByModel[u.Model] = &UsageTotals{}
		}
		s.ByModel[u.Model].add(u)
	}
	sort.Strings(s.Tools)
	return s
}

type toolKey struct{}

// WithTool tags ctx with the name of the tool making LLM calls.
func WithTool(ctx context.Context, tool string) context.Context {
	return context.WithValue(ctx, toolKey{}, tool)
}

// ToolFromContext returns the tool name set by WithTool, or "unknown".
func ToolFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(toolKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// TrackedProvider records every Predict call on a Tracker.
type TrackedProvider struct {
	Provider
	tracker *Tracker
}

// WithTracking wraps p so each call is recorded on tracker.
func WithTracking(p Provider, tracker *Tracker) Provider {
	if tracker == nil {
		return p
	}
	return &TrackedProvider{Provider: p, tracker: tracker}
}

// Predict delegates and tracks the call, including failed ones.
func (tp *TrackedProvider) Predict(ctx context.Context, systemMessage, userMessage string) (string, error) {
	out, err := tp.Provider.Predict(ctx, systemMessage, userMessage)
	tp.tracker.Track(ToolFromContext(ctx), ModelOf(tp.Provider), systemMessage+userMessage, out, err != nil)
	return out, err
}

// Model forwards to the wrapped provider.
func (tp *TrackedProvider) Model() string {
	return ModelOf(tp.Provider)
}
