// Package market estimates the addressable market of a startup from live
// market research.
package market

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
	"github.com/TobiSchelling/PitchRadar/internal/search"
)

const researchPrompt = `Estimate the market for the startup described below. Give the total addressable market (TAM), serviceable addressable market (SAM) and serviceable obtainable market (SOM) in US dollars, the annual growth rate, and the main growth drivers. Cite the sources or reports the figures come from.

Startup description:
%s`

const structurePrompt = `Structure the market research notes below.

Notes:
%s

Respond with ONLY this JSON, wrapped in <JSON></JSON> tags:
{"tam": "$X", "sam": "$X", "som": "$X", "growth_rate": "X%% CAGR", "key_drivers": ["driver"], "summary": "Two sentences", "sources": ["source"]}`

// Estimate is a market-size estimate. When no model is available to
// structure the research, only RawAnswer is set.
type Estimate struct {
	TAM        string   `json:"tam,omitempty"`
	SAM        string   `json:"sam,omitempty"`
	SOM        string   `json:"som,omitempty"`
	GrowthRate string   `json:"growth_rate,omitempty"`
	KeyDrivers []string `json:"key_drivers,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	RawAnswer  string   `json:"raw_answer,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Estimator produces market estimates.
type Estimator struct {
	research search.MarketResearcher
	llm      llm.Provider
	maxInput int
	log      logrus.FieldLogger
}

// NewEstimator creates an Estimator. provider may be nil.
func NewEstimator(research search.MarketResearcher, provider llm.Provider, maxInputChars int, log logrus.FieldLogger) *Estimator {
	return &Estimator{research: research, llm: provider, maxInput: maxInputChars, log: logger.OrDiscard(log)}
}

// Estimate researches and structures the market for startupText. Failures
// are reported in Estimate.Error.
func (e *Estimator) Estimate(ctx context.Context, startupText string) Estimate {
	if strings.TrimSpace(startupText) == "" {
		return Estimate{Error: "empty startup text"}
	}
	if e.research == nil {
		return Estimate{Error: "market research provider not configured"}
	}

	ctx = llm.WithTool(ctx, "market_estimate")
	result := e.research.Search(ctx, fmt.Sprintf(researchPrompt, analysis.Truncate(startupText, e.maxInput)))
	if result.Error != "" {
		return Estimate{Error: result.Error}
	}

	est := Estimate{RawAnswer: result.Answer}
	if e.llm == nil || !e.llm.IsConfigured() {
		return est
	}

	resp, err := e.llm.Predict(ctx, "", fmt.Sprintf(structurePrompt, result.Answer))
	if err != nil {
		e.log.Warnf("Market estimate structuring failed: %v", err)
		return est
	}
	obj := llm.ExtractObject(resp)
	if obj == nil {
		e.log.Warn("Market estimate structuring returned no JSON")
		return est
	}

	est.TAM = getString(obj, "tam")
	est.SAM = getString(obj, "sam")
	est.SOM = getString(obj, "som")
	est.GrowthRate = getString(obj, "growth_rate")
	est.Summary = getString(obj, "summary")
	est.KeyDrivers = getStrings(obj, "key_drivers")
	est.Sources = getStrings(obj, "sources")
	return est
}

func getString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%g", v)
	}
	return ""
}

func getStrings(m map[string]any, key string) []string {
	arr, _ := m[key].([]any)
	var out []string
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
