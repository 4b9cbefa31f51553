// Package report defines the run document returned to callers and renders
// it as Markdown or HTML.
package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/graph"
	"github.com/TobiSchelling/PitchRadar/internal/linkedin"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/market"
	"github.com/TobiSchelling/PitchRadar/internal/moderation"
	"github.com/TobiSchelling/PitchRadar/internal/orchestrator"
	"github.com/TobiSchelling/PitchRadar/internal/search"
)

// StorageErrorKey is the errors entry set when persisting a run fails.
const StorageErrorKey = "gcs_write_error"

// StartupAnalysis is the category analysis section of a run.
type StartupAnalysis struct {
	AnalysisTimestamp time.Time                  `json:"analysis_timestamp"`
	LLMClientType     string                     `json:"llm_client_type"`
	TotalAnalyses     int                        `json:"total_analyses"`
	Analyses          map[string]analysis.Result `json:"analyses"`
	RadarChart        orchestrator.Radar         `json:"radar_chart"`
}

// GraphSection is the knowledge graph, or only Error when it could not be
// built.
type GraphSection struct {
	*graph.Document
	Error string `json:"error,omitempty"`
}

// Document is the complete output of one run.
type Document struct {
	RunID             string             `json:"run_id"`
	CompanyName       string             `json:"company_name,omitempty"`
	StartupAnalysis   StartupAnalysis    `json:"startup_analysis"`
	TLDR              string             `json:"tldr,omitempty"`
	KnowledgeGraph    *GraphSection      `json:"knowledge_graph,omitempty"`
	News              *search.NewsResult `json:"news,omitempty"`
	MarketEstimate    *market.Estimate   `json:"market_estimate,omitempty"`
	LinkedInAnalysis  []linkedin.Profile `json:"linkedin_analysis,omitempty"`
	ContentModeration *moderation.Result `json:"content_moderation,omitempty"`
	TokenUsage        *llm.UsageSummary  `json:"token_usage,omitempty"`
	Errors            map[string]string  `json:"errors"`
}

// New builds a document from an orchestrator report. Category errors are
// copied into Errors.
func New(runID, clientType string, rep *orchestrator.Report) *Document {
	doc := &Document{
		RunID: runID,
		StartupAnalysis: StartupAnalysis{
			AnalysisTimestamp: time.Now().UTC(),
			LLMClientType:     clientType,
			Analyses:          map[string]analysis.Result{},
			RadarChart:        orchestrator.Radar{Dimensions: []string{}, Scores: []float64{}, Scale: orchestrator.RadarScale},
		},
		Errors: map[string]string{},
	}
	if rep == nil {
		return doc
	}

	doc.StartupAnalysis.AnalysisTimestamp = rep.StartedAt.UTC()
	doc.StartupAnalysis.Analyses = rep.Results
	doc.StartupAnalysis.TotalAnalyses = len(rep.Results)
	doc.StartupAnalysis.RadarChart = rep.Radar
	for k, v := range rep.Errors {
		doc.Errors[k] = v
	}
	return doc
}

// Category returns the analysis for name with its error, if any.
func (d *Document) Category(name string) (analysis.Result, string, bool) {
	if r, ok := d.StartupAnalysis.Analyses[name]; ok {
		return r, "", true
	}
	if e, ok := d.Errors[name]; ok {
		return analysis.Result{}, e, true
	}
	return analysis.Result{}, "", false
}

// Marshal encodes the document as indented JSON.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding run %s: %w", d.RunID, err)
	}
	return data, nil
}

// Unmarshal decodes a stored document.
func Unmarshal(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding run: %w", err)
	}
	if d.Errors == nil {
		d.Errors = map[string]string{}
	}
	return &d, nil
}
