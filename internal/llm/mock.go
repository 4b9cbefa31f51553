package llm

import (
	"context"
	"sync"
)

// MockResponse is the canned answer returned by MockProvider when no
// override is set. It is shaped like a risk analysis result.
const MockResponse = `<JSON>{"overall_risk_level": "Medium", "category_score": 5, "summary": "Mock analysis generated without a live model.", "key_findings": ["Mock finding"], "recommendations": ["Connect a real LLM provider for substantive analysis."]}</JSON>`

// MockProvider returns deterministic output. It is used for offline runs and
// as the fallback when no real provider is configured.
type MockProvider struct {
	// Respond, when set, produces the answer for each call.
	Respond func(systemMessage, userMessage string) (string, error)

	mu    sync.Mutex
	calls int
}

// NewMockProvider returns a mock that always answers with MockResponse.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Name() string       { return "mock" }
func (m *MockProvider) Model() string      { return "mock" }
func (m *MockProvider) IsConfigured() bool { return true }

// Predict returns the canned response, honoring context cancellation.
func (m *MockProvider) Predict(ctx context.Context, systemMessage, userMessage string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Respond != nil {
		return m.Respond(systemMessage, userMessage)
	}
	return MockResponse, nil
}

// Calls reports how many times Predict was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
