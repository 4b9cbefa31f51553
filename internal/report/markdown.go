package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
)

const tldrPrompt = `You are writing the TL;DR of a startup due-diligence report for an investment committee.

Here are the category risk analyses:

%s

Write 3-5 bullet points that capture the most important risks and strengths across ALL categories. Each bullet is one sentence.

Respond with ONLY this JSON:
{
    "tldr_bullets": [
        "First key takeaway",
        "Second key takeaway",
        "Third key takeaway"
    ]
}`

// Composer writes the TL;DR that heads a Markdown report.
type Composer struct {
	provider llm.Provider
	log      logrus.FieldLogger
}

// NewComposer creates a Composer. A nil provider always uses the
// deterministic TL;DR.
func NewComposer(provider llm.Provider, log logrus.FieldLogger) *Composer {
	return &Composer{provider: provider, log: logger.OrDiscard(log)}
}

// TLDR returns Markdown bullets summarizing the analyses.
func (c *Composer) TLDR(ctx context.Context, doc *Document) string {
	names := orderedCategories(doc)
	if c.provider == nil || len(doc.StartupAnalysis.Analyses) == 0 {
		return fallbackTLDR(doc, names)
	}

	var parts []string
	for _, name := range names {
		if r, ok := doc.StartupAnalysis.Analyses[name]; ok {
			parts = append(parts, fmt.Sprintf("## %s (%s)\n%s", name, r.OverallRiskLevel, r.Summary))
		}
	}

	resp, err := c.provider.Predict(llm.WithTool(ctx, "report_tldr"), "", fmt.Sprintf(tldrPrompt, strings.Join(parts, "\n\n")))
	if err != nil {
		c.log.Warnf("TL;DR generation failed: %v", err)
		return fallbackTLDR(doc, names)
	}

	var lines []string
	if parsed := llm.ExtractObject(resp); parsed != nil {
		if arr, ok := parsed["tldr_bullets"].([]any); ok {
			for _, b := range arr {
				if s, ok := b.(string); ok && strings.TrimSpace(s) != "" {
					lines = append(lines, "- "+strings.TrimSpace(s))
				}
			}
		}
	}
	if len(lines) == 0 {
		return fallbackTLDR(doc, names)
	}
	return strings.Join(lines, "\n")
}

func fallbackTLDR(doc *Document, names []string) string {
	var bullets []string
	for _, name := range names {
		r, ok := doc.StartupAnalysis.Analyses[name]
		if !ok {
			continue
		}
		line := fmt.Sprintf("- **%s**: %s risk", name, r.OverallRiskLevel)
		if r.CategoryScore != nil {
			line += fmt.Sprintf(" (%s/10)", formatScore(*r.CategoryScore))
		}
		bullets = append(bullets, line)
	}
	if len(bullets) == 0 {
		return "- No category analyses completed."
	}
	return strings.Join(bullets, "\n")
}

// Markdown renders the document. tldr is placed at the top when non-empty.
func Markdown(doc *Document, tldr string) string {
	var b strings.Builder
	sa := doc.StartupAnalysis

	title := "Startup analysis"
	if doc.CompanyName != "" {
		title += ": " + doc.CompanyName
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Run `%s` at %s using `%s`, %d of %d categories completed.\n\n",
		doc.RunID, sa.AnalysisTimestamp.Format("2006-01-02 15:04 MST"), sa.LLMClientType,
		sa.TotalAnalyses, sa.TotalAnalyses+categoryErrors(doc))

	if tldr != "" {
		fmt.Fprintf(&b, "## TL;DR\n\n%s\n\n", tldr)
	}

	if len(sa.RadarChart.Dimensions) > 0 {
		b.WriteString("## Risk radar\n\n| Category | Score |\n|---|---|\n")
		for i, dim := range sa.RadarChart.Dimensions {
			fmt.Fprintf(&b, "| %s | %s/%d |\n", dim, formatScore(sa.RadarChart.Scores[i]), sa.RadarChart.Scale)
		}
		b.WriteString("\n")
	}

	for _, name := range orderedCategories(doc) {
		r, errMsg, _ := doc.Category(name)
		fmt.Fprintf(&b, "## %s\n\n", name)
		if errMsg != "" {
			fmt.Fprintf(&b, "**Failed:** %s\n\n", errMsg)
			continue
		}
		fmt.Fprintf(&b, "**Risk level:** %s", r.OverallRiskLevel)
		if r.CategoryScore != nil {
			fmt.Fprintf(&b, " · **Score:** %s/10", formatScore(*r.CategoryScore))
		}
		b.WriteString("\n\n")
		if r.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", r.Summary)
		}
	}

	if m := doc.MarketEstimate; m != nil {
		b.WriteString("## Market estimate\n\n")
		switch {
		case m.Error != "":
			fmt.Fprintf(&b, "**Failed:** %s\n\n", m.Error)
		case m.TAM == "" && m.RawAnswer != "":
			fmt.Fprintf(&b, "%s\n\n", m.RawAnswer)
		default:
			fmt.Fprintf(&b, "- TAM: %s\n- SAM: %s\n- SOM: %s\n- Growth: %s\n\n", m.TAM, m.SAM, m.SOM, m.GrowthRate)
			if m.Summary != "" {
				fmt.Fprintf(&b, "%s\n\n", m.Summary)
			}
		}
	}

	if g := doc.KnowledgeGraph; g != nil {
		b.WriteString("## Knowledge graph\n\n")
		if g.Error != "" || g.Document == nil {
			fmt.Fprintf(&b, "**Failed:** %s\n\n", g.Error)
		} else {
			fmt.Fprintf(&b, "%d dependencies, %d dependents.\n\n", len(g.Dependencies), len(g.Dependents))
			for _, e := range g.Dependencies {
				fmt.Fprintf(&b, "- ← %s (%s)\n", e.Name, e.Type)
			}
			for _, e := range g.Dependents {
				fmt.Fprintf(&b, "- → %s (%s)\n", e.Name, e.Type)
			}
			b.WriteString("\n")
		}
	}

	if n := doc.News; n != nil {
		b.WriteString("## News\n\n")
		if n.Error != "" {
			fmt.Fprintf(&b, "**Failed:** %s\n\n", n.Error)
		}
		for _, item := range n.Results {
			fmt.Fprintf(&b, "- [%s](%s)", item.Title, item.Link)
			if item.Source != "" {
				fmt.Fprintf(&b, " (%s)", item.Source)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(doc.LinkedInAnalysis) > 0 {
		b.WriteString("## Founders\n\n")
		for _, p := range doc.LinkedInAnalysis {
			if p.Error != "" {
				fmt.Fprintf(&b, "- %s: **failed** %s\n", sourceLabel(p.Source), p.Error)
				continue
			}
			fmt.Fprintf(&b, "- %s: %s/100, %s. %s\n", sourceLabel(p.Source), formatScore(p.OverallScore), p.OverallRating, p.Summary)
		}
		b.WriteString("\n")
	}

	if m := doc.ContentModeration; m != nil && m.ModerationRequired {
		fmt.Fprintf(&b, "## Content moderation\n\n%s\n\n", m.Message)
	}

	if other := otherErrors(doc); len(other) > 0 {
		b.WriteString("## Errors\n\n")
		for _, k := range other {
			fmt.Fprintf(&b, "- `%s`: %s\n", k, doc.Errors[k])
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// orderedCategories lists analysed and failed categories in registry order,
// followed by any unknown names alphabetically.
func orderedCategories(doc *Document) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range analysis.CategoryNames() {
		if _, _, ok := doc.Category(name); ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range doc.StartupAnalysis.Analyses {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func categoryErrors(doc *Document) int {
	n := 0
	for _, name := range analysis.CategoryNames() {
		if _, ok := doc.Errors[name]; ok {
			n++
		}
	}
	return n
}

func otherErrors(doc *Document) []string {
	known := make(map[string]bool)
	for _, name := range analysis.CategoryNames() {
		known[name] = true
	}
	var out []string
	for k := range doc.Errors {
		if !known[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func formatScore(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", f), "0"), ".")
}

func sourceLabel(s string) string {
	if s == "" {
		return "Profile"
	}
	return s
}
