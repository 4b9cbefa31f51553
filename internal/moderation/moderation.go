// Package moderation screens submitted text for unsafe content before it is
// sent to any model.
package moderation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Category is one kind of flagged content with the terms that matched.
type Category struct {
	Name    string   `json:"name"`
	Matches []string `json:"matches"`
}

// Details summarizes the screening.
type Details struct {
	TextLength     int  `json:"text_length"`
	IssuesFound    int  `json:"issues_found"`
	RequiresReview bool `json:"requires_review"`
}

// Result is the moderation verdict.
type Result struct {
	Safe               bool       `json:"safe"`
	ModerationRequired bool       `json:"moderation_required"`
	Confidence         float64    `json:"confidence"`
	Categories         []Category `json:"categories"`
	ProfanityDetected  bool       `json:"profanity_detected"`
	Message            string     `json:"message"`
	AnalysisDetails    Details    `json:"analysis_details"`
	Error              string     `json:"error,omitempty"`
}

type rule struct {
	name    string
	pattern *regexp.Regexp
}

func wordsPattern(fragments ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(fragments, "|") + `)\b`)
}

var rules = []rule{
	{"hate_speech", wordsPattern(`hate speech`, `hateful`, `racis[mt]\w*`, `bigot\w*`, `slurs?`, `supremacis[mt]\w*`, `xenophob\w*`)},
	{"violence", wordsPattern(`violen(?:ce|t)`, `kill(?:s|ed|ing)?`, `murder\w*`, `assault\w*`, `weapons?`, `terroris[mt]\w*`, `bomb(?:s|ing)?`)},
	{"harassment", wordsPattern(`harass\w*`, `bully\w*`, `bullied`, `threaten\w*`, `stalk\w*`, `intimidat\w*`)},
	{"sexual_content", wordsPattern(`sexually explicit`, `pornograph\w*`, `porn`, `nsfw`, `nude\w*`)},
	{"self_harm", wordsPattern(`suicid\w*`, `self[- ]harm\w*`)},
	{"inappropriate", wordsPattern(`inappropriate\w*`, `offensive`, `obscen\w*`, `vulgar\w*`)},
}

var profanityWords = wordsPattern(`fuck\w*`, `shit\w*`, `bitch\w*`, `asshole\w*`, `bastard\w*`, `damn\w*`, `crap`)

// maskedProfanity matches three or more stars after a letter, or stars
// followed by more letters ("s**t"). Two stars after a single letter close
// Markdown bold.
var maskedProfanity = regexp.MustCompile(`\b[a-zA-Z]\*{3,}|\b[a-zA-Z]\*{2,}[a-zA-Z]+`)

// Moderator screens text. The zero value is not usable; call New.
type Moderator struct {
	analyze func(text string) (Result, error)
}

// New returns a keyword and profanity heuristic moderator.
func New() *Moderator {
	return &Moderator{analyze: heuristic}
}

// NewWithAnalyzer returns a moderator backed by a custom analysis function.
func NewWithAnalyzer(analyze func(text string) (Result, error)) *Moderator {
	return &Moderator{analyze: analyze}
}

// Moderate screens text. It never panics; analysis failures are reported
// in Result.Error with the content treated as needing review.
func (m *Moderator) Moderate(text string) (result Result) {
	if strings.TrimSpace(text) == "" {
		return Result{
			Safe:       true,
			Confidence: 1.0,
			Categories: []Category{},
			Message:    "Empty or null text - no moderation needed",
			AnalysisDetails: Details{
				TextLength: utf8.RuneCountInString(text),
			},
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result = failed(text, fmt.Errorf("%v", r))
		}
	}()

	res, err := m.analyze(text)
	if err != nil {
		return failed(text, err)
	}
	return res
}

// IsSafe reports whether text passed moderation.
func (m *Moderator) IsSafe(text string) bool {
	r := m.Moderate(text)
	return r.Safe && r.Error == ""
}

func failed(text string, err error) Result {
	return Result{
		ModerationRequired: true,
		Categories:         []Category{},
		Message:            "Moderation could not be completed",
		AnalysisDetails: Details{
			TextLength:     utf8.RuneCountInString(text),
			RequiresReview: true,
		},
		Error: fmt.Sprintf("Content moderation error: %v", err),
	}
}

func heuristic(text string) (Result, error) {
	categories := []Category{}
	for _, r := range rules {
		if matches := uniqueLower(r.pattern.FindAllString(text, -1)); len(matches) > 0 {
			categories = append(categories, Category{Name: r.name, Matches: matches})
		}
	}

	profanity := uniqueLower(append(profanityWords.FindAllString(text, -1), maskedProfanity.FindAllString(text, -1)...))
	if len(profanity) > 0 {
		categories = append(categories, Category{Name: "profanity", Matches: profanity})
	}

	issues := len(categories)
	res := Result{
		Safe:               issues == 0,
		ModerationRequired: issues > 0,
		Categories:         categories,
		ProfanityDetected:  len(profanity) > 0,
		AnalysisDetails: Details{
			TextLength:     utf8.RuneCountInString(text),
			IssuesFound:    issues,
			RequiresReview: issues > 0,
		},
	}

	if issues == 0 {
		res.Confidence = 0.95
		res.Message = "Content appears safe"
		return res, nil
	}

	res.Confidence = min(0.95, 0.6+0.1*float64(issues))
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	res.Message = "Content flagged for review: " + strings.Join(names, ", ")
	return res, nil
}

func uniqueLower(matches []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range matches {
		m = strings.ToLower(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
