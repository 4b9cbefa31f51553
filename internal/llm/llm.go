package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/config"
)

// Provider is the interface for LLM backends. Predict sends one
// system/user message pair and returns the raw response text, which may or
// may not contain JSON.
type Provider interface {
	Predict(ctx context.Context, systemMessage, userMessage string) (string, error)
	Name() string
	IsConfigured() bool
}

// Modeler is implemented by providers that know their model name.
type Modeler interface {
	Model() string
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	model     string
	BaseURL   string
	MaxTokens int
	client    *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, maxTokens int) *OllamaProvider {
	return &OllamaProvider{
		model:     model,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		MaxTokens: maxTokens,
		client:    &http.Client{Timeout: 180 * time.Second},
	}
}

func (o *OllamaProvider) Name() string  { return "ollama" }
func (o *OllamaProvider) Model() string { return o.model }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	return false
}

// Predict sends the message pair to Ollama and returns the response.
func (o *OllamaProvider) Predict(ctx context.Context, systemMessage, userMessage string) (string, error) {
	body := map[string]any{
		"model":    o.model,
		"messages": chatMessages(systemMessage, userMessage),
		"stream":   false,
		"options": map[string]any{
			"num_predict": o.MaxTokens,
			"temperature": 0.3,
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.BaseURL+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return result.Message.Content, nil
}

func chatMessages(systemMessage, userMessage string) []map[string]string {
	var msgs []map[string]string
	if systemMessage != "" {
		msgs = append(msgs, map[string]string{"role": "system", "content": systemMessage})
	}
	return append(msgs, map[string]string{"role": "user", "content": userMessage})
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint
// through an eino chat model.
type OpenAIProvider struct {
	model string
	chat  model.BaseChatModel
}

// NewOpenAIProvider creates an OpenAI-compatible provider. An empty apiKey
// yields an unconfigured provider rather than an error.
func NewOpenAIProvider(ctx context.Context, modelName, apiKey, baseURL string, maxTokens int, temperature float32) (*OpenAIProvider, error) {
	p := &OpenAIProvider{model: modelName}
	if apiKey == "" {
		return p, nil
	}

	cfg := &openai.ChatModelConfig{
		APIKey:  apiKey,
		Model:   modelName,
		Timeout: 180 * time.Second,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if maxTokens > 0 {
		cfg.MaxTokens = &maxTokens
	}
	if temperature > 0 {
		cfg.Temperature = &temperature
	}

	chat, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	p.chat = chat
	return p, nil
}

func (o *OpenAIProvider) Name() string       { return "openai" }
func (o *OpenAIProvider) Model() string      { return o.model }
func (o *OpenAIProvider) IsConfigured() bool { return o.chat != nil }

// Predict sends the message pair to the chat model.
func (o *OpenAIProvider) Predict(ctx context.Context, systemMessage, userMessage string) (string, error) {
	if o.chat == nil {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	var messages []*schema.Message
	if systemMessage != "" {
		messages = append(messages, schema.SystemMessage(systemMessage))
	}
	messages = append(messages, schema.UserMessage(userMessage))

	resp, err := o.chat.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	return resp.Content, nil
}

// CreateProvider picks the backend named in cfg. When useMock is set, or
// the configured backend is unavailable, the mock client is returned so
// offline runs still produce a report. The second return value is the
// client type reported to callers.
func CreateProvider(ctx context.Context, cfg config.LLM, useMock bool, log logrus.FieldLogger) (Provider, string) {
	if useMock {
		return NewMockProvider(), "mock"
	}

	apiKey := config.APIKey(cfg.APIKeyEnv)
	switch strings.ToLower(cfg.Provider) {
	case "mock":
		return NewMockProvider(), "mock"
	case "gemini":
		p := NewGeminiProvider(cfg.Model, apiKey, cfg.MaxTokens, cfg.Temperature)
		if p.IsConfigured() {
			log.Infof("Using Gemini with model: %s", cfg.Model)
			return p, "gemini"
		}
	case "openai":
		p, err := NewOpenAIProvider(ctx, cfg.Model, apiKey, cfg.BaseURL, cfg.MaxTokens, cfg.Temperature)
		if err != nil {
			log.Warnf("OpenAI provider unavailable: %v", err)
		} else if p.IsConfigured() {
			log.Infof("Using OpenAI-compatible model: %s", cfg.Model)
			return p, "openai"
		}
	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL, cfg.MaxTokens)
		if p.IsConfigured() {
			log.Infof("Using Ollama with model: %s", cfg.Model)
			return p, "ollama"
		}
	default:
		log.Warnf("Unknown LLM provider %q", cfg.Provider)
	}

	log.Warnf("LLM provider %q not available (check %s), using mock client", cfg.Provider, cfg.APIKeyEnv)
	return NewMockProvider(), "mock"
}
