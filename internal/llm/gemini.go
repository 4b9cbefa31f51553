package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider calls the Gemini generateContent REST endpoint.
type GeminiProvider struct {
	model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	client      *http.Client
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(model, apiKey string, maxTokens int, temperature float32) *GeminiProvider {
	return &GeminiProvider{
		model:       model,
		APIKey:      apiKey,
		BaseURL:     defaultGeminiURL,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		client:      &http.Client{Timeout: 180 * time.Second},
	}
}

func (g *GeminiProvider) Name() string       { return "gemini" }
func (g *GeminiProvider) Model() string      { return g.model }
func (g *GeminiProvider) IsConfigured() bool { return g.APIKey != "" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// Predict sends the message pair to Gemini and returns the concatenated
// text parts of the first candidate.
func (g *GeminiProvider) Predict(ctx context.Context, systemMessage, userMessage string) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("Gemini API key not configured")
	}

	body := map[string]any{
		"contents": []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userMessage}}}},
		"generationConfig": map[string]any{
			"maxOutputTokens": g.MaxTokens,
			"temperature":     g.Temperature,
		},
	}
	if systemMessage != "" {
		body["systemInstruction"] = geminiContent{Parts: []geminiPart{{Text: systemMessage}}}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(g.BaseURL, "/"), url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Gemini API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Candidates) == 0 {
		if result.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("Gemini blocked the prompt: %s", result.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("no candidates in Gemini response")
	}

	var b strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
