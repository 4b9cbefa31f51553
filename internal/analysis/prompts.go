package analysis

import "strings"

const systemMessage = `You are a venture capital analyst performing due diligence on early-stage startups. You are skeptical, specific and concise. You always answer with a single JSON object wrapped in <JSON></JSON> tags and nothing else.`

const promptTemplate = `Perform a {{CATEGORY}} of the startup described below.

Focus on:
{{FOCUS}}

Score the category from 0 to 10, where 0 means negligible risk and 10 means critical risk.

Startup description:
%s

Respond with ONLY this JSON, wrapped in <JSON></JSON> tags:
{
    "startup_name": "Name of the startup, or empty if unknown",
    "overall_risk_level": "Low" | "Medium" | "High" | "Critical",
    "category_score": 0-10,
    "summary": "Two or three sentences summarizing the assessment",
    "indicators": [
        {"indicator": "Short name", "risk_level": "Low" | "Medium" | "High" | "Critical", "score": 0-10, "description": "What the text shows", "recommendation": "What to verify or change"}
    ],
    "key_concerns": ["concern 1", "concern 2"],
    "recommendations": ["recommendation 1", "recommendation 2"]
}`

type category struct {
	name  string
	focus []string
}

// categories is the fixed registry order.
var categories = []category{
	{"Customer Risk Analysis", []string{
		"customer traction, paying customers and retention",
		"customer concentration and dependence on a few accounts",
		"acquisition cost versus lifetime value",
		"evidence of product-market fit",
	}},
	{"Financial Risk Analysis", []string{
		"revenue, burn rate and runway",
		"unit economics and margin structure",
		"funding history, valuation and dilution",
		"consistency and credibility of projections",
	}},
	{"Market Risk Analysis", []string{
		"market size (TAM, SAM, SOM) and growth rate",
		"market timing and adoption barriers",
		"regulatory or macro headwinds",
		"niche viability and expansion paths",
	}},
	{"Team Risk Analysis", []string{
		"founder experience and domain expertise",
		"completeness of the leadership team",
		"key-person dependence and founder dynamics",
		"hiring plan and advisory support",
	}},
	{"Operational Risk Analysis", []string{
		"supply chain and vendor dependencies",
		"scalability of operations and infrastructure",
		"execution track record against milestones",
		"process maturity and operational efficiency",
	}},
	{"Competitive Risk Analysis", []string{
		"direct and indirect competitors",
		"defensibility, moats and switching costs",
		"intellectual property and differentiation",
		"threat of incumbents entering the space",
	}},
	{"Exit Risk Analysis", []string{
		"plausible acquirers and strategic fit",
		"comparable exits and IPO viability",
		"time to liquidity",
		"investor alignment on exit expectations",
	}},
	{"Legal Risk Analysis", []string{
		"regulatory compliance obligations",
		"intellectual property ownership and infringement exposure",
		"corporate structure, cap table and contracts",
		"pending or likely litigation and data privacy",
	}},
	{"Product Risk Analysis", []string{
		"product maturity and technical feasibility",
		"roadmap realism and development velocity",
		"technology dependencies and technical debt",
		"user experience and product differentiation",
	}},
	{"Peer Benchmarking", []string{
		"growth and revenue metrics against stage peers",
		"valuation multiples relative to comparable startups",
		"funding pace compared with sector benchmarks",
		"team size and efficiency against peers",
	}},
}

// CategoryNames returns the built-in category names in registry order.
func CategoryNames() []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.name
	}
	return names
}

func categoryPrompt(c category) string {
	var focus strings.Builder
	for _, f := range c.focus {
		focus.WriteString("- ")
		focus.WriteString(f)
		focus.WriteByte('\n')
	}
	return strings.NewReplacer(
		"{{CATEGORY}}", strings.ToLower(c.name),
		"{{FOCUS}}", strings.TrimRight(focus.String(), "\n"),
	).Replace(promptTemplate)
}
