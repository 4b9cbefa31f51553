package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/config"
	"github.com/TobiSchelling/PitchRadar/internal/extract"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/report"
	"github.com/TobiSchelling/PitchRadar/internal/search"
	"github.com/TobiSchelling/PitchRadar/internal/storage"
)

const acmeText = "Name: AcmeAI\nIndustry: Fintech\nStage: Seed\nAcmeAI automates invoice reconciliation."

type stubNews struct {
	mu      sync.Mutex
	queries []string
}

func (s *stubNews) Search(_ context.Context, query string, n int) search.NewsResult {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	return search.NewsResult{Results: []search.NewsItem{{Title: query + " raises seed", Link: "https://example.com/a"}}}
}

type stubResearch struct{}

func (stubResearch) Search(context.Context, string) search.MarketResult {
	return search.MarketResult{Answer: "Payments TAM is $2T."}
}

type testEnv struct {
	pipe     *Pipeline
	fileRoot string
	news     *stubNews
	runs     *storage.SQLiteStore
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	cfg.Output.DataDir = t.TempDir()
	cfg.Graph.Enabled = false
	cfg.LLM.RateLimitRPM = 0
	if mutate != nil {
		mutate(cfg)
	}

	runs, err := storage.OpenSQLite(filepath.Join(cfg.Output.DataDir, DatabaseFile))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { runs.Close() })

	fileRoot := t.TempDir()
	mux := storage.NewMux()
	mux.Handle("file", storage.NewFileStore(fileRoot))
	mux.Handle("sqlite", runs)

	news := &stubNews{}
	mock := llm.NewMockProvider()
	mock.Respond = func(_, user string) (string, error) {
		if strings.Contains(user, "LinkedIn profile") {
			return `{"overallScore": 80, "overallRating": "Strong Founder", "summary": "Solid."}`, nil
		}
		if strings.Contains(user, "tldr_bullets") {
			return `{"tldr_bullets": ["Customers are sticky"]}`, nil
		}
		return `<JSON>{"overall_risk_level": "Medium", "category_score": 6, "summary": "ok"}</JSON>`, nil
	}

	p := New(context.Background(), cfg, Deps{
		Provider:   mock,
		ClientType: "gemini",
		News:       news,
		Research:   stubResearch{},
		Store:      mux,
		Runs:       runs,
	})
	return &testEnv{pipe: p, fileRoot: fileRoot, news: news, runs: runs}
}

func (e *testEnv) upload(t *testing.T, bucket, name, content string) string {
	t.Helper()
	dir := filepath.Join(e.fileRoot, bucket)
	os.MkdirAll(dir, 0o755)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing upload: %v", err)
	}
	return "file://" + bucket + "/" + name
}

func TestRunText(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc := res.Document
	if doc.RunID != res.RunID || res.RunID == "" {
		t.Errorf("expected run id on document, got %q / %q", doc.RunID, res.RunID)
	}
	sa := doc.StartupAnalysis
	if sa.TotalAnalyses != 10 || sa.LLMClientType != "gemini" {
		t.Errorf("unexpected startup analysis: total=%d client=%q", sa.TotalAnalyses, sa.LLMClientType)
	}
	if len(sa.RadarChart.Dimensions) != 10 || len(sa.RadarChart.Scores) != 10 {
		t.Errorf("expected full radar, got %+v", sa.RadarChart)
	}
	if doc.CompanyName != "AcmeAI" {
		t.Errorf("expected company from text, got %q", doc.CompanyName)
	}
	if doc.News == nil || len(doc.News.Results) != 1 || env.news.queries[0] != "AcmeAI" {
		t.Errorf("expected news for AcmeAI, got %+v", doc.News)
	}
	if doc.MarketEstimate == nil || doc.MarketEstimate.RawAnswer == "" {
		t.Errorf("expected market estimate, got %+v", doc.MarketEstimate)
	}
	if doc.ContentModeration == nil || !doc.ContentModeration.Safe {
		t.Errorf("expected safe moderation result, got %+v", doc.ContentModeration)
	}
	if doc.TokenUsage == nil || doc.TokenUsage.Total.Calls < 10 {
		t.Errorf("expected token usage for every call, got %+v", doc.TokenUsage)
	}
	if doc.KnowledgeGraph != nil {
		t.Error("expected no graph when disabled")
	}
	if len(doc.Errors) != 0 {
		t.Errorf("expected no errors, got %v", doc.Errors)
	}

	stored, err := env.pipe.LoadRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if stored.StartupAnalysis.TotalAnalyses != 10 {
		t.Errorf("expected stored run, got %+v", stored.StartupAnalysis)
	}
	list, _ := env.pipe.ListRuns(context.Background(), 10)
	if len(list) != 1 || list[0].Path != res.RunID+".json" {
		t.Errorf("unexpected run list %+v", list)
	}
}

func TestRunCategorySubsetAndMock(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.pipe.Run(context.Background(), Request{
		StartupText: acmeText,
		UseMock:     true,
		Categories:  []string{"Team Risk Analysis", "Unknown Category", "Market Risk Analysis"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sa := res.Document.StartupAnalysis
	if sa.LLMClientType != "mock" || sa.TotalAnalyses != 2 {
		t.Errorf("unexpected analysis: client=%q total=%d", sa.LLMClientType, sa.TotalAnalyses)
	}
	if dims := sa.RadarChart.Dimensions; len(dims) != 2 || dims[0] != "Market Risk Analysis" || dims[1] != "Team Risk Analysis" {
		t.Errorf("expected radar in registry order, got %v", dims)
	}
}

func TestRunInvalidRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name string
		req  Request
	}{
		{"empty", Request{}},
		{"blank text", Request{StartupText: "   "}},
		{"text and uploads", Request{StartupText: acmeText, Uploads: []extract.Upload{{FilePath: "file://u/a.txt"}}}},
		{"no valid categories", Request{StartupText: acmeText, Categories: []string{"Vibes"}}},
		{"bad destination", Request{StartupText: acmeText, Destination: "runs.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.pipe.Run(context.Background(), tt.req); !errors.Is(err, analysis.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRunUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	deck := env.upload(t, "uploads", "deck.txt", acmeText)
	profile := env.upload(t, "uploads", "founder.txt", "Jane Doe, CTO, 10 years in payments")

	res, err := env.pipe.Run(context.Background(), Request{Uploads: []extract.Upload{
		{FileType: "pitch deck", FileName: "deck.txt", FilePath: deck},
		{FileType: "linkedin", FileName: "founder.txt", FilePath: profile},
		{FileType: "financials", FileName: "missing.txt", FilePath: "file://uploads/missing.txt"},
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc := res.Document
	if doc.StartupAnalysis.TotalAnalyses != 10 {
		t.Errorf("expected analyses from the deck, got %d", doc.StartupAnalysis.TotalAnalyses)
	}
	if len(doc.LinkedInAnalysis) != 1 || doc.LinkedInAnalysis[0].OverallScore != 80 {
		t.Fatalf("expected one scored profile, got %+v", doc.LinkedInAnalysis)
	}
	if doc.LinkedInAnalysis[0].Source != profile {
		t.Errorf("expected profile source %q, got %q", profile, doc.LinkedInAnalysis[0].Source)
	}
	if doc.Errors["upload:missing.txt"] == "" {
		t.Errorf("expected unreadable upload error, got %v", doc.Errors)
	}
}

func TestRunUploadsWithoutText(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.pipe.Run(context.Background(), Request{Uploads: []extract.Upload{
		{FileName: "missing.txt", FilePath: "file://uploads/missing.txt"},
	}})
	if !errors.Is(err, analysis.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRunLinkedInOnlyUploads(t *testing.T) {
	env := newTestEnv(t, nil)
	profile := env.upload(t, "uploads", "founder.txt", "Jane Doe, CTO, 10 years in payments")

	res, err := env.pipe.Run(context.Background(), Request{Uploads: []extract.Upload{
		{FileType: "LinkedIn Profile", FileName: "founder.txt", FilePath: profile},
	}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc := res.Document
	if len(doc.LinkedInAnalysis) != 1 || doc.LinkedInAnalysis[0].OverallScore != 80 {
		t.Fatalf("expected one scored profile, got %+v", doc.LinkedInAnalysis)
	}
	if doc.StartupAnalysis.TotalAnalyses != 0 || len(doc.StartupAnalysis.RadarChart.Dimensions) != 0 {
		t.Errorf("expected no category analyses, got %+v", doc.StartupAnalysis)
	}
	if doc.Errors[StartupAnalysisErrorKey] != "no startup text" {
		t.Errorf("expected missing text reported, got %v", doc.Errors)
	}
	if doc.MarketEstimate != nil || doc.KnowledgeGraph != nil {
		t.Error("expected text enrichers skipped")
	}

	if _, err := env.pipe.LoadRun(context.Background(), res.RunID); err != nil {
		t.Errorf("expected profiles-only run stored: %v", err)
	}
}

func TestRunSummarizeIsTracked(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText, Summarize: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc := res.Document
	if doc.TLDR != "- Customers are sticky" {
		t.Errorf("unexpected TL;DR %q", doc.TLDR)
	}
	if doc.TokenUsage == nil || doc.TokenUsage.ByTool["report_tldr"] == nil || doc.TokenUsage.ByTool["report_tldr"].Calls != 1 {
		t.Errorf("expected TL;DR call in token usage, got %+v", doc.TokenUsage)
	}

	plain, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plain.Document.TLDR != "" {
		t.Errorf("expected no TL;DR unless requested, got %q", plain.Document.TLDR)
	}
}

func TestRunDestination(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText, Destination: "file://runs/out.json"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(env.fileRoot, "runs", "out.json"))
	if err != nil {
		t.Fatalf("expected destination file: %v", err)
	}
	doc, err := report.Unmarshal(data)
	if err != nil || doc.RunID != res.RunID {
		t.Errorf("unexpected destination document %v %v", doc, err)
	}
}

func TestRunDestinationFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText, Destination: "s3://bucket/out.json"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(res.Document.Errors[report.StorageErrorKey], "unsupported storage scheme") {
		t.Errorf("expected storage error, got %v", res.Document.Errors)
	}

	stored, err := env.pipe.LoadRun(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if stored.Errors[report.StorageErrorKey] == "" {
		t.Error("expected stored run to carry the storage error")
	}
}

func TestRunModerationBlocking(t *testing.T) {
	unsafe := acmeText + "\nThis contains hate speech and violence."

	permissive := newTestEnv(t, nil)
	res, err := permissive.pipe.Run(context.Background(), Request{StartupText: unsafe})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Document.ContentModeration.ModerationRequired {
		t.Error("expected moderation to be required")
	}

	strict := newTestEnv(t, func(c *config.Config) { c.Moderation.BlockUnsafe = true })
	if _, err := strict.pipe.Run(context.Background(), Request{StartupText: unsafe}); !errors.Is(err, ErrContentBlocked) {
		t.Errorf("expected ErrContentBlocked, got %v", err)
	}
}

func TestRunKnowledgeGraph(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Graph.Enabled = true })

	res, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	kg := res.Document.KnowledgeGraph
	if kg == nil || kg.Document == nil {
		t.Fatalf("expected knowledge graph, got %+v", kg)
	}
	if kg.Root.Name != "AcmeAI" {
		t.Errorf("expected root AcmeAI, got %q", kg.Root.Name)
	}

	skipped, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText, SkipKnowledgeGraph: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if skipped.Document.KnowledgeGraph != nil {
		t.Error("expected graph to be skipped")
	}
}

func TestStoreRunsDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Output.StoreRuns = false })
	res, err := env.pipe.Run(context.Background(), Request{StartupText: acmeText})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := env.pipe.LoadRun(context.Background(), res.RunID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected run not stored, got %v", err)
	}
}

func TestLoadRunRejectsBadID(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.pipe.LoadRun(context.Background(), "../etc"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCompanyFromText(t *testing.T) {
	tests := []struct{ text, want string }{
		{"Name: AcmeAI\nIndustry: Fintech", "AcmeAI"},
		{"Overview\nCompany Name - \"PayFlow\"\n", "PayFlow"},
		{"startup: Beta Labs", "Beta Labs"},
		{"We build payments software.", ""},
	}
	for _, tt := range tests {
		if got := companyFromText(tt.text); got != tt.want {
			t.Errorf("companyFromText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
