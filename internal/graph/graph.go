// Package graph assembles a dependency knowledge graph around a startup:
// what it depends on (left), what depends on it (right), with news and
// market context for every related entity.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
	"github.com/TobiSchelling/PitchRadar/internal/metrics"
	"github.com/TobiSchelling/PitchRadar/internal/search"
)

// ErrEmptyInput is returned when there is no startup text to work from.
var ErrEmptyInput = errors.New("startup text is empty")

const (
	// RootID is the id of the company node.
	RootID = "company_root"

	PositionLeft   = "left"
	PositionRight  = "right"
	PositionCenter = "center"
)

// Entity is a node related to the company.
type Entity struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Relationship string            `json:"relationship,omitempty"`
	Category     string            `json:"category,omitempty"`
	Position     string            `json:"position"`
	News         []search.NewsItem `json:"news"`
	MarketInfo   string            `json:"market_info"`
}

// Metadata describes how a document was produced.
type Metadata struct {
	CompanyName     string    `json:"company_name"`
	Domain          string    `json:"domain"`
	Area            string    `json:"area"`
	LLMProcessed    bool      `json:"llm_processed"`
	GeneratedAt     time.Time `json:"generated_at"`
	DependencyCount int       `json:"dependency_count"`
	DependentCount  int       `json:"dependent_count"`
}

// Document is a knowledge graph. Root and Metadata are always set; Nodes
// and Edges are only present when a model structured the graph.
type Document struct {
	Root         Entity           `json:"root"`
	Dependencies []Entity         `json:"dependencies"`
	Dependents   []Entity         `json:"dependents"`
	Nodes        []map[string]any `json:"nodes,omitempty"`
	Edges        []map[string]any `json:"edges,omitempty"`
	Metadata     Metadata         `json:"metadata"`
}

// Finalize assigns unique ids and recomputes positions from list
// membership and the dependency/dependent counts.
func (d *Document) Finalize() {
	d.Root.ID = RootID
	d.Root.Position = PositionCenter
	if d.Root.News == nil {
		d.Root.News = []search.NewsItem{}
	}
	if d.Dependencies == nil {
		d.Dependencies = []Entity{}
	}
	if d.Dependents == nil {
		d.Dependents = []Entity{}
	}

	used := map[string]bool{RootID: true}
	for i := range d.Dependencies {
		d.Dependencies[i].ID = uniqueID(slugify(d.Dependencies[i].Name), used)
		d.Dependencies[i].Position = PositionLeft
	}
	for i := range d.Dependents {
		d.Dependents[i].ID = uniqueID(slugify(d.Dependents[i].Name), used)
		d.Dependents[i].Position = PositionRight
	}
	d.Metadata.DependencyCount = len(d.Dependencies)
	d.Metadata.DependentCount = len(d.Dependents)
}

func slugify(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
		} else if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	s := strings.TrimRight(b.String(), "_")
	if s == "" {
		return "entity"
	}
	return s
}

func uniqueID(base string, used map[string]bool) string {
	id := base
	for n := 2; used[id]; n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	used[id] = true
	return id
}

// Options tunes a Builder.
type Options struct {
	NewsPerEntity int
	Workers       int
	MaxInputChars int
	Logger        logrus.FieldLogger
	Metrics       *metrics.Metrics
}

// Builder builds knowledge graphs. Any collaborator may be nil; the graph
// is then built with whatever remains.
type Builder struct {
	llm       llm.Provider
	research  search.MarketResearcher
	news      search.NewsSearcher
	newsLimit int
	workers   int
	maxInput  int
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

// NewBuilder creates a Builder.
func NewBuilder(provider llm.Provider, research search.MarketResearcher, news search.NewsSearcher, opts Options) *Builder {
	if opts.NewsPerEntity <= 0 {
		opts.NewsPerEntity = 3
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Builder{
		llm:       provider,
		research:  research,
		news:      news,
		newsLimit: opts.NewsPerEntity,
		workers:   opts.Workers,
		maxInput:  opts.MaxInputChars,
		log:       logger.OrDiscard(opts.Logger),
		metrics:   opts.Metrics,
	}
}

func (b *Builder) hasLLM() bool {
	return b.llm != nil && b.llm.IsConfigured()
}

// Build runs the full assembly. Only empty text is an error; every other
// failure degrades the document instead.
func (b *Builder) Build(ctx context.Context, startupText, companyName string) (*Document, error) {
	if strings.TrimSpace(startupText) == "" {
		return nil, ErrEmptyInput
	}
	text := analysis.Truncate(startupText, b.maxInput)
	ctx = llm.WithTool(ctx, "knowledge_graph")

	meta := Metadata{CompanyName: strings.TrimSpace(companyName)}
	if meta.CompanyName == "" {
		meta = b.extractMetadata(ctx, text)
	}
	b.log.WithField("company", meta.CompanyName).Info("Building knowledge graph")

	depAnswer := b.ask(ctx, fmt.Sprintf(dependencyPrompt, companyLabel(meta.CompanyName), text))
	dependentAnswer := b.ask(ctx, fmt.Sprintf(dependentPrompt, companyLabel(meta.CompanyName), text))

	doc := &Document{
		Root: Entity{
			Name: meta.CompanyName,
			Type: "company",
		},
		Dependencies: b.parseEntities(ctx, depAnswer, true),
		Dependents:   b.parseEntities(ctx, dependentAnswer, false),
	}
	if doc.Root.Name == "" {
		doc.Root.Name = "Unknown Company"
	}

	b.enrich(ctx, doc)
	b.structure(ctx, doc, text)

	doc.Metadata.CompanyName = meta.CompanyName
	doc.Metadata.Domain = meta.Domain
	doc.Metadata.Area = meta.Area
	doc.Metadata.GeneratedAt = time.Now().UTC()
	doc.Finalize()

	b.log.Infof("Knowledge graph: %d dependencies, %d dependents (llm_processed=%v)",
		doc.Metadata.DependencyCount, doc.Metadata.DependentCount, doc.Metadata.LLMProcessed)
	return doc, nil
}

func companyLabel(name string) string {
	if name == "" {
		return "the startup"
	}
	return name
}

func (b *Builder) extractMetadata(ctx context.Context, text string) Metadata {
	if !b.hasLLM() {
		return Metadata{}
	}
	resp, err := b.llm.Predict(ctx, graphSystem, fmt.Sprintf(metadataPrompt, text))
	if err != nil {
		b.log.Warnf("Company metadata extraction failed: %v", err)
		return Metadata{}
	}
	obj := llm.ExtractObject(resp)
	return Metadata{
		CompanyName: getString(obj, "company_name"),
		Domain:      getString(obj, "domain"),
		Area:        getString(obj, "area"),
	}
}

func (b *Builder) ask(ctx context.Context, prompt string) string {
	if b.research == nil {
		return ""
	}
	result := b.research.Search(ctx, prompt)
	if result.Error != "" {
		b.log.Warnf("Market research failed: %s", result.Error)
		return ""
	}
	return result.Answer
}

// parseEntities structures a free-text research answer. Without a model
// this yields no entities.
func (b *Builder) parseEntities(ctx context.Context, answer string, dependency bool) []Entity {
	if strings.TrimSpace(answer) == "" || !b.hasLLM() {
		return []Entity{}
	}

	kind := "dependents (customers, sectors or partners that rely on the company)"
	if dependency {
		kind = "dependencies (suppliers, platforms, resources the company relies on)"
	}
	resp, err := b.llm.Predict(ctx, graphSystem, fmt.Sprintf(entityPrompt, kind, answer))
	if err != nil {
		b.log.Warnf("Entity parsing failed: %v", err)
		return []Entity{}
	}

	entities := []Entity{}
	for _, raw := range llm.ExtractArray(resp) {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := getString(obj, "entity_name")
		if name == "" {
			name = getString(obj, "name")
		}
		if name == "" {
			continue
		}
		entities = append(entities, Entity{
			Name:         name,
			Type:         getStringOr(obj, "entity_type", "company"),
			Relationship: getString(obj, "relationship"),
			Category:     getString(obj, "category"),
		})
	}
	return entities
}

// enrich fetches news and market info for every entity in parallel. Each
// goroutine writes only its own slot.
func (b *Builder) enrich(ctx context.Context, doc *Document) {
	targets := make([]*Entity, 0, len(doc.Dependencies)+len(doc.Dependents))
	for i := range doc.Dependencies {
		targets = append(targets, &doc.Dependencies[i])
	}
	for i := range doc.Dependents {
		targets = append(targets, &doc.Dependents[i])
	}

	var g errgroup.Group
	g.SetLimit(b.workers)
	for _, e := range targets {
		g.Go(func() error {
			e.News = []search.NewsItem{}
			if b.news != nil {
				result := b.news.Search(ctx, e.Name, b.newsLimit)
				if result.Error != "" {
					b.log.WithField("entity", e.Name).Debugf("News lookup failed: %s", result.Error)
					b.metrics.ObserveEnrichment("graph_news", errors.New(result.Error))
				} else {
					e.News = result.Results
					b.metrics.ObserveEnrichment("graph_news", nil)
				}
			}
			if b.research != nil {
				result := b.research.Search(ctx, fmt.Sprintf(marketInfoPrompt, e.Name, e.Type))
				if result.Error == "" {
					e.MarketInfo = result.Answer
				}
			}
			return nil
		})
	}
	g.Wait()
}

// structure asks the model for root/nodes/edges, or leaves the
// deterministic two-list layout with llm_processed=false.
func (b *Builder) structure(ctx context.Context, doc *Document, text string) {
	doc.Metadata.LLMProcessed = false
	if !b.hasLLM() {
		return
	}

	gathered, err := json.Marshal(map[string]any{
		"company":      doc.Root.Name,
		"dependencies": doc.Dependencies,
		"dependents":   doc.Dependents,
	})
	if err != nil {
		return
	}

	resp, err := b.llm.Predict(ctx, graphSystem, fmt.Sprintf(structurePrompt, text, string(gathered)))
	if err != nil {
		b.log.Warnf("Graph structuring failed, using fallback layout: %v", err)
		return
	}
	obj := llm.ExtractObject(resp)
	root, ok := obj["root"].(map[string]any)
	if !ok {
		b.log.Warn("Graph structuring returned no root, using fallback layout")
		return
	}

	if name := getString(root, "name"); name != "" {
		doc.Root.Name = name
	}
	if typ := getString(root, "type"); typ != "" {
		doc.Root.Type = typ
	}
	doc.Nodes = objects(obj["nodes"])
	doc.Edges = objects(obj["edges"])
	doc.Metadata.LLMProcessed = true
}

func objects(v any) []map[string]any {
	arr, _ := v.([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func getString(m map[string]any, key string) string {
	return getStringOr(m, key, "")
}

func getStringOr(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
