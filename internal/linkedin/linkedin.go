// Package linkedin scores founder LinkedIn profiles for investment
// readiness.
package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
)

const analysisPrompt = `You are an elite venture capital analyst evaluating a startup founder from their LinkedIn profile. Assess their experience, leadership, domain expertise, execution record and network, and how these translate into founder-market fit.

Return ONLY a JSON object matching this JSON Schema, wrapped in <JSON></JSON> tags:
{
  "overallScore": "number 0-100",
  "overallRating": "string, e.g. Exceptional Founder, Strong Founder, Promising Founder, Needs Development",
  "overallSummary": "string, one paragraph",
  "summary": "string, two sentences",
  "scores": [{"competency": "string", "score": "number 0-100", "justification": "string"}],
  "detailedKPIs": [{"icon": "single emoji", "metric": "string", "value": "string", "description": "string"}],
  "keyStrengths": ["string"],
  "potentialRisks": ["string"],
  "investmentRecommendation": "string"
}

Score at least these competencies: Technical Expertise, Leadership, Industry Experience, Execution Track Record, Network and Influence.

LinkedIn profile:
%s`

// CompetencyScore rates one founder competency.
type CompetencyScore struct {
	Competency    string  `json:"competency"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// KPI is a headline profile metric.
type KPI struct {
	Icon        string `json:"icon"`
	Metric      string `json:"metric"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Profile is the scored profile, or only Error when analysis failed.
type Profile struct {
	Source                   string            `json:"source,omitempty"`
	OverallScore             float64           `json:"overallScore"`
	OverallRating            string            `json:"overallRating"`
	OverallSummary           string            `json:"overallSummary"`
	Summary                  string            `json:"summary"`
	Scores                   []CompetencyScore `json:"scores"`
	DetailedKPIs             []KPI             `json:"detailedKPIs"`
	KeyStrengths             []string          `json:"keyStrengths"`
	PotentialRisks           []string          `json:"potentialRisks"`
	InvestmentRecommendation string            `json:"investmentRecommendation"`
	Error                    string            `json:"error,omitempty"`
}

// MarshalJSON emits only source and error for failed analyses.
func (p Profile) MarshalJSON() ([]byte, error) {
	if p.Error != "" {
		return json.Marshal(struct {
			Source string `json:"source,omitempty"`
			Error  string `json:"error"`
		}{p.Source, p.Error})
	}
	type plain Profile
	return json.Marshal(plain(p))
}

// Loader returns the text of a stored profile document.
type Loader func(ctx context.Context, path string) (string, error)

// Analyzer scores profiles with an LLM.
type Analyzer struct {
	llm     llm.Provider
	load    Loader
	workers int
	log     logrus.FieldLogger
}

// NewAnalyzer creates an Analyzer. load may be nil when only raw text is
// analyzed; workers <= 0 selects 4.
func NewAnalyzer(provider llm.Provider, load Loader, workers int, log logrus.FieldLogger) *Analyzer {
	if workers <= 0 {
		workers = 4
	}
	return &Analyzer{llm: provider, load: load, workers: workers, log: logger.OrDiscard(log)}
}

// Analyze scores profile text.
func (a *Analyzer) Analyze(ctx context.Context, profileText string) Profile {
	if a.llm == nil {
		return Profile{Error: "LLM client not configured"}
	}
	if strings.TrimSpace(profileText) == "" {
		return Profile{Error: "LinkedIn analysis error: empty profile text"}
	}

	resp, err := a.llm.Predict(llm.WithTool(ctx, "linkedin_analyzer"), "", fmt.Sprintf(analysisPrompt, profileText))
	if err != nil {
		return Profile{Error: fmt.Sprintf("LinkedIn analysis error: %v", err)}
	}

	obj := llm.ExtractObject(resp)
	if obj == nil {
		return Profile{Error: "Failed to parse analysis JSON"}
	}
	return profileFromMap(obj)
}

// AnalyzeDocument loads a stored profile and scores it.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, path string) Profile {
	if a.llm == nil {
		return Profile{Source: path, Error: "LLM client not configured"}
	}
	if a.load == nil {
		return Profile{Source: path, Error: "LinkedIn analysis error: no document loader configured"}
	}

	text, err := a.load(ctx, path)
	if err != nil {
		return Profile{Source: path, Error: fmt.Sprintf("LinkedIn analysis error: %v", err)}
	}
	p := a.Analyze(ctx, text)
	p.Source = path
	return p
}

// AnalyzeFiles scores several stored profiles in parallel. Results keep
// the order of paths.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths []string) []Profile {
	profiles := make([]Profile, len(paths))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, path := range paths {
		g.Go(func() error {
			profiles[i] = a.AnalyzeDocument(ctx, path)
			if profiles[i].Error != "" {
				a.log.WithField("source", path).Warnf("LinkedIn analysis failed: %s", profiles[i].Error)
			}
			return nil
		})
	}
	g.Wait()

	return profiles
}

func profileFromMap(m map[string]any) Profile {
	p := Profile{
		OverallScore:             getFloat(m, "overallScore"),
		OverallRating:            getString(m, "overallRating"),
		OverallSummary:           getString(m, "overallSummary"),
		Summary:                  getString(m, "summary"),
		KeyStrengths:             getStrings(m, "keyStrengths"),
		PotentialRisks:           getStrings(m, "potentialRisks"),
		InvestmentRecommendation: getString(m, "investmentRecommendation"),
		Scores:                   []CompetencyScore{},
		DetailedKPIs:             []KPI{},
	}
	for _, item := range objects(m, "scores") {
		p.Scores = append(p.Scores, CompetencyScore{
			Competency:    getString(item, "competency"),
			Score:         getFloat(item, "score"),
			Justification: getString(item, "justification"),
		})
	}
	for _, item := range objects(m, "detailedKPIs") {
		p.DetailedKPIs = append(p.DetailedKPIs, KPI{
			Icon:        getString(item, "icon"),
			Metric:      getString(item, "metric"),
			Value:       getString(item, "value"),
			Description: getString(item, "description"),
		})
	}
	return p
}

func objects(m map[string]any, key string) []map[string]any {
	arr, _ := m[key].([]any)
	var out []map[string]any
	for _, item := range arr {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func getString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func getFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f
	}
	return 0
}

func getStrings(m map[string]any, key string) []string {
	arr, _ := m[key].([]any)
	out := []string{}
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
