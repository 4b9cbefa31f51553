// Package analysis runs one risk-category analysis of a startup description
// through an LLM and normalizes the model's answer.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/TobiSchelling/PitchRadar/internal/llm"
)

var (
	// ErrInvalidRequest marks malformed input caught at the boundary.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrProvider marks a failed call to the LLM backend.
	ErrProvider = errors.New("provider error")
	// ErrResponseParse marks a provider answer with no recoverable JSON.
	ErrResponseParse = errors.New("no JSON object in model response")
)

const truncationMarker = "\n[truncated]"

// Result is the normalized outcome of one category analysis. Fields keeps
// every other key the model returned so nothing it said is lost.
type Result struct {
	OverallRiskLevel string
	CategoryScore    *float64
	Summary          string
	Fields           map[string]any
}

// MarshalJSON flattens Fields next to the three normalized keys.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["overall_risk_level"] = r.OverallRiskLevel
	out["summary"] = r.Summary
	if r.CategoryScore != nil {
		out["category_score"] = *r.CategoryScore
	} else {
		delete(out, "category_score")
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON, used when reading stored runs.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Normalize(raw)
	return nil
}

// Normalize fills the required fields with defaults. A missing or
// non-numeric category_score stays nil; numeric scores are clamped to
// [0, 10].
func Normalize(raw map[string]any) Result {
	r := Result{
		OverallRiskLevel: "Unknown",
		Fields:           make(map[string]any, len(raw)),
	}
	for k, v := range raw {
		switch k {
		case "overall_risk_level":
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				r.OverallRiskLevel = strings.TrimSpace(s)
			}
		case "summary":
			if s, ok := v.(string); ok {
				r.Summary = s
			}
		case "category_score":
			r.CategoryScore = parseScore(v)
		default:
			r.Fields[k] = v
		}
	}
	return r
}

func parseScore(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if i := strings.Index(s, "/"); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f = math.Max(0, math.Min(10, f))
	return &f
}

// Tool analyzes a startup description for one category.
type Tool interface {
	Name() string
	Analyze(ctx context.Context, text string) (Result, error)
}

// PromptTool is a Tool driven by a system message and a user prompt
// template with a single %s verb for the startup text.
type PromptTool struct {
	name          string
	systemMessage string
	promptFormat  string
	llm           llm.Provider
	maxInputChars int
}

// NewPromptTool creates a prompt-driven tool. maxInputChars <= 0 disables
// truncation.
func NewPromptTool(name, systemMessage, promptFormat string, provider llm.Provider, maxInputChars int) *PromptTool {
	return &PromptTool{
		name:          name,
		systemMessage: systemMessage,
		promptFormat:  promptFormat,
		llm:           provider,
		maxInputChars: maxInputChars,
	}
}

func (t *PromptTool) Name() string { return t.name }

// Analyze makes exactly one provider call. Provider failures wrap
// ErrProvider and unparseable answers wrap ErrResponseParse.
func (t *PromptTool) Analyze(ctx context.Context, text string) (Result, error) {
	prompt := fmt.Sprintf(t.promptFormat, Truncate(text, t.maxInputChars))

	response, err := t.llm.Predict(llm.WithTool(ctx, t.name), t.systemMessage, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w: %w", t.name, ErrProvider, err)
	}

	obj := llm.ExtractObject(response)
	if obj == nil {
		return Result{}, fmt.Errorf("%s: %w", t.name, ErrResponseParse)
	}
	return Normalize(obj), nil
}

// Truncate cuts text to at most max runes, appending a marker when cut.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + truncationMarker
}

// FuncTool adapts a plain function to Tool.
type FuncTool struct {
	name string
	fn   func(ctx context.Context, text string) (Result, error)
}

// NewFuncTool creates a Tool named name backed by fn.
func NewFuncTool(name string, fn func(ctx context.Context, text string) (Result, error)) *FuncTool {
	return &FuncTool{name: name, fn: fn}
}

func (f *FuncTool) Name() string { return f.name }

func (f *FuncTool) Analyze(ctx context.Context, text string) (Result, error) {
	return f.fn(ctx, text)
}
