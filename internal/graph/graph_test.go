package graph

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/search"
)

type fakeResearch struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeResearch) Search(ctx context.Context, prompt string) search.MarketResult {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	switch {
	case strings.HasPrefix(prompt, "List the key dependencies"):
		return search.MarketResult{Answer: "Dependencies: NVIDIA (GPU), AWS (Cloud Infrastructure)"}
	case strings.HasPrefix(prompt, "List who depends"):
		return search.MarketResult{Answer: "Dependents: Healthcare Industry, Finance Sector"}
	case strings.Contains(prompt, "NVIDIA"):
		return search.MarketResult{Answer: "Stock price: $450.25, Ticker: NVDA"}
	}
	return search.MarketResult{Error: "no data"}
}

type fakeNews struct{}

func (fakeNews) Search(ctx context.Context, query string, n int) search.NewsResult {
	if query == "AWS" {
		return search.NewsResult{Results: []search.NewsItem{}, Error: "quota exceeded"}
	}
	return search.NewsResult{Results: []search.NewsItem{{Title: query + " Q3 Earnings", Link: "https://example.com", Source: "Reuters", Date: "2024-10-14"}}}
}

func graphLLM(structureAnswer string) *llm.MockProvider {
	m := llm.NewMockProvider()
	m.Respond = func(system, user string) (string, error) {
		switch {
		case strings.HasPrefix(user, "Identify the company"):
			return `<JSON>{"company_name": "NeuralTech AI", "domain": "AI", "area": "Enterprise LLMs"}</JSON>`, nil
		case strings.HasPrefix(user, "Extract the dependencies"):
			return `<JSON>[
				{"entity_name": "NVIDIA", "entity_type": "company", "relationship": "provides GPU infrastructure", "category": "Hardware"},
				{"entity_name": "AWS", "entity_type": "company", "relationship": "hosts training"},
				{"entity_name": "Nvidia", "entity_type": "company", "relationship": "duplicate spelling"}
			]</JSON>`, nil
		case strings.HasPrefix(user, "Extract the dependents"):
			return `<JSON>[{"entity_name": "Healthcare", "entity_type": "sector", "relationship": "automates customer service"}]</JSON>`, nil
		case strings.HasPrefix(user, "Build a knowledge graph"):
			return structureAnswer, nil
		}
		return "", errors.New("unexpected prompt")
	}
	return m
}

const structured = `<JSON>{
	"root": {"id": "company_root", "name": "NeuralTech AI", "type": "company"},
	"nodes": [{"id": "node_1", "name": "NVIDIA", "type": "dependency"}],
	"edges": [{"source": "node_1", "target": "company_root"}]
}</JSON>`

func TestBuildWithoutLLM(t *testing.T) {
	b := NewBuilder(nil, nil, nil, Options{})
	doc, err := b.Build(context.Background(), "TestCo is an AI company", "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if doc.Root.ID != RootID || doc.Root.Name == "" {
		t.Errorf("expected a root entity, got %+v", doc.Root)
	}
	if doc.Metadata.LLMProcessed {
		t.Error("expected llm_processed=false without a model")
	}
	if len(doc.Dependencies) != 0 || len(doc.Dependents) != 0 {
		t.Error("expected no entities without a model")
	}

	data, _ := json.Marshal(doc)
	var m map[string]any
	json.Unmarshal(data, &m)
	if _, ok := m["root"]; !ok {
		t.Error("expected root key in JSON")
	}
	if meta, _ := m["metadata"].(map[string]any); meta["llm_processed"] != false {
		t.Errorf("expected metadata.llm_processed=false, got %v", meta)
	}
}

func TestBuildWithCompanyNameAndResearchOnly(t *testing.T) {
	research := &fakeResearch{}
	b := NewBuilder(nil, research, fakeNews{}, Options{})
	doc, err := b.Build(context.Background(), "AI company using GPUs", "TestCo")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if doc.Root.Name != "TestCo" || doc.Metadata.CompanyName != "TestCo" {
		t.Errorf("expected supplied company name, got %q", doc.Root.Name)
	}
	if doc.Metadata.LLMProcessed {
		t.Error("expected fallback layout")
	}
	if len(research.prompts) != 2 || !strings.Contains(research.prompts[0], "TestCo") {
		t.Errorf("expected two discovery questions naming the company, got %v", research.prompts)
	}
}

func TestBuildEmptyText(t *testing.T) {
	b := NewBuilder(llm.NewMockProvider(), nil, nil, Options{})
	for _, text := range []string{"", "   \n"} {
		doc, err := b.Build(context.Background(), text, "")
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("expected ErrEmptyInput, got %v", err)
		}
		if doc != nil {
			t.Error("expected no document")
		}
	}
}

func TestBuildFullFlow(t *testing.T) {
	b := NewBuilder(graphLLM(structured), &fakeResearch{}, fakeNews{}, Options{Workers: 2})
	doc, err := b.Build(context.Background(), "NeuralTech AI trains LLMs on NVIDIA GPUs hosted on AWS.", "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if doc.Metadata.CompanyName != "NeuralTech AI" || doc.Metadata.Domain != "AI" || doc.Metadata.Area != "Enterprise LLMs" {
		t.Errorf("unexpected metadata %+v", doc.Metadata)
	}
	if !doc.Metadata.LLMProcessed {
		t.Error("expected llm_processed=true")
	}
	if len(doc.Nodes) != 1 || len(doc.Edges) != 1 {
		t.Errorf("expected structured nodes and edges, got %d/%d", len(doc.Nodes), len(doc.Edges))
	}
	if doc.Metadata.DependencyCount != 3 || doc.Metadata.DependentCount != 1 {
		t.Errorf("unexpected counts %d/%d", doc.Metadata.DependencyCount, doc.Metadata.DependentCount)
	}

	nvidia := doc.Dependencies[0]
	if nvidia.Position != PositionLeft || nvidia.Category != "Hardware" {
		t.Errorf("unexpected dependency %+v", nvidia)
	}
	if len(nvidia.News) != 1 || nvidia.News[0].Source != "Reuters" {
		t.Errorf("expected news on NVIDIA, got %v", nvidia.News)
	}
	if !strings.Contains(nvidia.MarketInfo, "NVDA") {
		t.Errorf("expected market info, got %q", nvidia.MarketInfo)
	}

	aws := doc.Dependencies[1]
	if aws.News == nil || len(aws.News) != 0 {
		t.Errorf("expected empty news after failed lookup, got %v", aws.News)
	}
	if doc.Dependents[0].Position != PositionRight || doc.Dependents[0].Type != "sector" {
		t.Errorf("unexpected dependent %+v", doc.Dependents[0])
	}

	seen := map[string]bool{doc.Root.ID: true}
	for _, e := range append(append([]Entity{}, doc.Dependencies...), doc.Dependents...) {
		if seen[e.ID] {
			t.Errorf("duplicate id %q", e.ID)
		}
		seen[e.ID] = true
	}
	if doc.Dependencies[2].ID != "nvidia_2" {
		t.Errorf("expected suffixed duplicate id, got %q", doc.Dependencies[2].ID)
	}
}

func TestBuildStructureFailureFallsBack(t *testing.T) {
	b := NewBuilder(graphLLM("I could not build it."), &fakeResearch{}, nil, Options{})
	doc, err := b.Build(context.Background(), "NeuralTech AI", "NeuralTech AI")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if doc.Metadata.LLMProcessed {
		t.Error("expected fallback when structuring yields no root")
	}
	if len(doc.Dependencies) != 3 {
		t.Errorf("expected parsed dependencies to survive, got %d", len(doc.Dependencies))
	}
	if doc.Nodes != nil {
		t.Error("expected no nodes in fallback layout")
	}
}

func TestFinalizeRecomputesPositions(t *testing.T) {
	doc := &Document{
		Root:         Entity{Name: "Acme"},
		Dependencies: []Entity{{Name: "Stripe", Position: PositionRight}, {Name: "Company Root"}},
		Dependents:   []Entity{{Name: "Stripe", Position: PositionLeft}},
	}
	doc.Finalize()

	if doc.Root.Position != PositionCenter || doc.Root.ID != RootID {
		t.Errorf("unexpected root %+v", doc.Root)
	}
	if doc.Dependencies[0].Position != PositionLeft || doc.Dependents[0].Position != PositionRight {
		t.Error("expected positions derived from list membership")
	}
	if doc.Dependencies[0].ID != "stripe" || doc.Dependents[0].ID != "stripe_2" {
		t.Errorf("unexpected ids %q %q", doc.Dependencies[0].ID, doc.Dependents[0].ID)
	}
	if doc.Dependencies[1].ID != "company_root_2" {
		t.Errorf("expected root id to stay reserved, got %q", doc.Dependencies[1].ID)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Amazon Web Services": "amazon_web_services",
		"  C3.ai!! ":          "c3_ai",
		"***":                 "entity",
	}
	for in, want := range tests {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
