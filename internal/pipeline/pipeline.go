// Package pipeline runs one end-to-end analysis: uploads to text,
// moderation, category analyses with enrichers, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/config"
	"github.com/TobiSchelling/PitchRadar/internal/extract"
	"github.com/TobiSchelling/PitchRadar/internal/graph"
	"github.com/TobiSchelling/PitchRadar/internal/linkedin"
	"github.com/TobiSchelling/PitchRadar/internal/llm"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
	"github.com/TobiSchelling/PitchRadar/internal/market"
	"github.com/TobiSchelling/PitchRadar/internal/metrics"
	"github.com/TobiSchelling/PitchRadar/internal/moderation"
	"github.com/TobiSchelling/PitchRadar/internal/orchestrator"
	"github.com/TobiSchelling/PitchRadar/internal/report"
	"github.com/TobiSchelling/PitchRadar/internal/search"
	"github.com/TobiSchelling/PitchRadar/internal/storage"
)

// RunsBucket is the sqlite:// bucket holding stored runs.
const RunsBucket = "runs"

// StartupAnalysisErrorKey reports a run that had founder profiles but no
// startup text to analyse.
const StartupAnalysisErrorKey = "startup_analysis"

// ErrContentBlocked is returned when moderation rejects the startup text.
var ErrContentBlocked = fmt.Errorf("%w: content flagged by moderation", analysis.ErrInvalidRequest)

var companyLine = regexp.MustCompile(`(?im)^\s*(?:company(?:\s+name)?|name|startup)\s*[:\-]\s*(.+?)\s*$`)

// Request is one analysis job. Exactly one of StartupText and Uploads must
// be set.
type Request struct {
	StartupText        string           `json:"startup_text"`
	Uploads            []extract.Upload `json:"uploads"`
	UseMock            bool             `json:"use_mock"`
	Categories         []string         `json:"categories"`
	Destination        string           `json:"destination_gcs"`
	CompanyName        string           `json:"company_name"`
	SkipKnowledgeGraph bool             `json:"skip_knowledge_graph"`
	Summarize          bool             `json:"summarize"`
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID    string
	Document *report.Document
	Steps    []StepResult
}

// Deps are the collaborators of a Pipeline. Nil fields are replaced by
// defaults or disable the feature they serve.
type Deps struct {
	// Provider is the configured LLM. Nil selects llm.CreateProvider.
	Provider   llm.Provider
	ClientType string
	News       search.NewsSearcher
	Research   search.MarketResearcher
	Store      storage.Store
	Runs       *storage.SQLiteStore
	Moderator  *moderation.Moderator
	Metrics    *metrics.Metrics
	Logger     logrus.FieldLogger
}

// Pipeline runs analyses. Safe for concurrent Runs.
type Pipeline struct {
	cfg        *config.Config
	provider   llm.Provider
	clientType string
	mock       llm.Provider
	news       search.NewsSearcher
	research   search.MarketResearcher
	store      storage.Store
	runs       *storage.SQLiteStore
	moderator  *moderation.Moderator
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
}

// New creates a pipeline from cfg and deps.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Pipeline {
	log := logger.OrDiscard(deps.Logger)

	provider, clientType := deps.Provider, deps.ClientType
	if provider == nil {
		provider, clientType = llm.CreateProvider(ctx, cfg.LLM, false, log)
	}
	if clientType == "" {
		clientType = provider.Name()
	}
	if clientType != "mock" {
		provider = llm.NewLimited(provider, cfg.LLM.RateLimitRPM, cfg.LLM.Burst)
	}

	moderator := deps.Moderator
	if moderator == nil {
		moderator = moderation.New()
	}

	return &Pipeline{
		cfg:        cfg,
		provider:   provider,
		clientType: clientType,
		mock:       llm.NewMockProvider(),
		news:       deps.News,
		research:   deps.Research,
		store:      deps.Store,
		runs:       deps.Runs,
		moderator:  moderator,
		metrics:    deps.Metrics,
		log:        log,
	}
}

// ClientType reports the LLM backend used for non-mock runs.
func (p *Pipeline) ClientType() string { return p.clientType }

// Runs returns the local run store, or nil when runs are not kept.
func (p *Pipeline) Runs() *storage.SQLiteStore { return p.runs }

// Store returns the object store used for uploads and destinations.
func (p *Pipeline) Store() storage.Store { return p.store }

// Moderator returns the content moderator.
func (p *Pipeline) Moderator() *moderation.Moderator { return p.moderator }

// Validate checks a request before any work is done.
func (p *Pipeline) Validate(req Request) error {
	hasText := strings.TrimSpace(req.StartupText) != ""
	hasUploads := len(req.Uploads) > 0
	switch {
	case hasText && hasUploads:
		return fmt.Errorf("%w: provide either 'startup_text' or 'uploads', not both", analysis.ErrInvalidRequest)
	case !hasText && !hasUploads:
		return fmt.Errorf("%w: Missing 'startup_text' in request body", analysis.ErrInvalidRequest)
	}
	if req.Destination != "" {
		if _, err := storage.ParseURI(req.Destination); err != nil {
			return fmt.Errorf("%w: %v", analysis.ErrInvalidRequest, err)
		}
	}
	_, err := analysis.DefaultRegistry(p.mock, 0).Select(p.categories(req))
	return err
}

func (p *Pipeline) categories(req Request) []string {
	if len(req.Categories) > 0 {
		return req.Categories
	}
	return p.cfg.Analysis.Categories
}

// Run executes a request. It returns an error only for invalid requests;
// every downstream failure is reported inside the document.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := p.Validate(req); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := p.log.WithField("run", runID)
	res := &Result{RunID: runID}
	errs := map[string]string{}

	text, profiles, step := p.resolveText(ctx, req, errs)
	res.Steps = append(res.Steps, step)
	hasText := strings.TrimSpace(text) != ""
	if !hasText && len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no readable text in uploads", analysis.ErrInvalidRequest)
	}
	if !hasText {
		errs[StartupAnalysisErrorKey] = "no startup text"
	}

	mod := p.moderator.Moderate(text)
	res.Steps = append(res.Steps, StepResult{Name: "Moderate", Summary: mod.Message})
	if mod.Error != "" {
		log.Warn(mod.Error)
	}
	if p.cfg.Moderation.BlockUnsafe && !mod.Safe && mod.Error == "" {
		return nil, ErrContentBlocked
	}

	tracker := llm.NewTracker()
	provider, clientType := p.provider, p.clientType
	if req.UseMock {
		provider, clientType = p.mock, "mock"
	}
	provider = llm.WithTracking(provider, tracker)

	company := strings.TrimSpace(req.CompanyName)
	if company == "" {
		company = companyFromText(text)
	}
	log.WithFields(logrus.Fields{"client": clientType, "company": company}).Info("Starting analysis run")

	var (
		wg       sync.WaitGroup
		rep      *orchestrator.Report
		runErr   error
		kg       *report.GraphSection
		news     *search.NewsResult
		estimate *market.Estimate
		founders []linkedin.Profile
	)

	if hasText {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg := analysis.DefaultRegistry(provider, p.cfg.Analysis.MaxInputChars)
			orch := orchestrator.New(reg, orchestrator.Options{
				Workers:     p.cfg.Orchestrator.Workers,
				RunTimeout:  p.cfg.Orchestrator.RunTimeout,
				TaskTimeout: p.cfg.Orchestrator.TaskTimeout,
				Logger:      log,
				Metrics:     p.metrics,
			})
			rep, runErr = orch.Run(ctx, text, p.categories(req))
		}()
	}

	if hasText && p.cfg.Graph.Enabled && !req.SkipKnowledgeGraph {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := graph.NewBuilder(provider, p.research, p.news, graph.Options{
				NewsPerEntity: p.cfg.Graph.NewsPerEntity,
				Workers:       p.cfg.Graph.Workers,
				MaxInputChars: p.cfg.Analysis.MaxInputChars,
				Logger:        log,
				Metrics:       p.metrics,
			})
			doc, err := b.Build(ctx, text, company)
			if err != nil {
				kg = &report.GraphSection{Error: err.Error()}
				return
			}
			kg = &report.GraphSection{Document: doc}
		}()
	}

	if p.news != nil && company != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := p.news.Search(ctx, company, p.cfg.Search.News.NumResults)
			p.metrics.ObserveEnrichment("news", errorOf(r.Error))
			news = &r
		}()
	}

	if hasText && p.research != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := market.NewEstimator(p.research, provider, p.cfg.Analysis.MaxInputChars, log).Estimate(ctx, text)
			p.metrics.ObserveEnrichment("market", errorOf(e.Error))
			estimate = &e
		}()
	}

	if len(profiles) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := linkedin.NewAnalyzer(provider, p.loadUpload, p.cfg.LinkedIn.Workers, log)
			founders = a.AnalyzeFiles(ctx, profiles)
			for _, f := range founders {
				p.metrics.ObserveEnrichment("linkedin", errorOf(f.Error))
			}
		}()
	}

	wg.Wait()

	if runErr != nil {
		return nil, runErr
	}
	if rep != nil {
		res.Steps = append(res.Steps, StepResult{
			Name:    "Analyze",
			Summary: fmt.Sprintf("%d categories analysed, %d failed", len(rep.Results), len(rep.Errors)),
		})
	} else {
		res.Steps = append(res.Steps, StepResult{Name: "Analyze", Summary: "Skipped: no startup text"})
	}

	doc := report.New(runID, clientType, rep)
	doc.CompanyName = company
	doc.KnowledgeGraph = kg
	doc.News = news
	doc.MarketEstimate = estimate
	doc.LinkedInAnalysis = founders
	doc.ContentModeration = &mod
	for k, v := range errs {
		doc.Errors[k] = v
	}
	if req.Summarize {
		doc.TLDR = report.NewComposer(provider, log).TLDR(ctx, doc)
	}
	usage := tracker.Summary()
	doc.TokenUsage = &usage
	res.Document = doc

	if kg != nil {
		res.Steps = append(res.Steps, graphStep(kg))
	}

	res.Steps = append(res.Steps, p.persist(ctx, doc, req.Destination, log)...)

	p.metrics.ObserveRun(time.Since(start))
	log.Infof("Run complete in %s: %d results, %d errors", time.Since(start).Round(time.Millisecond),
		len(doc.StartupAnalysis.Analyses), len(doc.Errors))
	return res, nil
}

// resolveText returns the analysis text and the LinkedIn uploads to score.
// Unreadable uploads are recorded in errs.
func (p *Pipeline) resolveText(ctx context.Context, req Request, errs map[string]string) (string, []string, StepResult) {
	if len(req.Uploads) == 0 {
		return req.StartupText, nil, StepResult{Name: "Input", Summary: fmt.Sprintf("%d characters of startup text", len(req.StartupText))}
	}

	var parts []string
	var profiles []string
	for _, u := range req.Uploads {
		if u.IsLinkedIn() {
			profiles = append(profiles, u.FilePath)
			continue
		}
		text, err := p.readUpload(ctx, u)
		if err != nil {
			errs["upload:"+uploadName(u)] = err.Error()
			p.log.Warnf("Upload %s unreadable: %v", uploadName(u), err)
			continue
		}
		if text != "" {
			parts = append(parts, fmt.Sprintf("=== %s (%s) ===\n%s", uploadName(u), u.FileType, text))
		}
	}

	return strings.Join(parts, "\n\n"), profiles, StepResult{
		Name:    "Input",
		Summary: fmt.Sprintf("%d documents extracted, %d LinkedIn profiles, %d unreadable", len(parts), len(profiles), len(errs)),
	}
}

func (p *Pipeline) readUpload(ctx context.Context, u extract.Upload) (string, error) {
	if p.store == nil {
		return "", errors.New("no object store configured")
	}
	data, err := p.store.Read(ctx, u.FilePath)
	if err != nil {
		return "", err
	}
	return extract.Text(u.Ext(), data)
}

// loadUpload is the LinkedIn document loader.
func (p *Pipeline) loadUpload(ctx context.Context, path string) (string, error) {
	return p.readUpload(ctx, extract.Upload{FilePath: path})
}

// persist writes the document to the requested destination and the local
// run store. A destination failure is reported in the document before it
// is stored locally.
func (p *Pipeline) persist(ctx context.Context, doc *report.Document, destination string, log logrus.FieldLogger) []StepResult {
	var steps []StepResult

	if destination != "" {
		err := p.write(ctx, destination, doc)
		if err != nil {
			doc.Errors[report.StorageErrorKey] = err.Error()
			log.Errorf("Writing run to %s failed: %v", destination, err)
		}
		steps = append(steps, StepResult{Name: "Store", Summary: "Written to " + destination, Err: err})
	}

	if p.runs != nil && p.cfg.Output.StoreRuns {
		uri := storage.Location{Scheme: "sqlite", Bucket: RunsBucket, Path: doc.RunID + ".json"}.String()
		err := p.write(ctx, uri, doc)
		if err != nil {
			log.Errorf("Keeping run locally failed: %v", err)
		}
		steps = append(steps, StepResult{Name: "Keep", Summary: "Kept as " + uri, Err: err})
	}

	return steps
}

func (p *Pipeline) write(ctx context.Context, uri string, doc *report.Document) error {
	data, err := doc.Marshal()
	if err != nil {
		return err
	}

	var store storage.Store = p.store
	if strings.HasPrefix(uri, "sqlite://") && p.runs != nil {
		store = p.runs
	}
	if store == nil {
		return errors.New("no object store configured")
	}

	err = store.Write(ctx, uri, data)
	scheme := "unknown"
	if loc, perr := storage.ParseURI(uri); perr == nil {
		scheme = loc.Scheme
	}
	p.metrics.ObserveStorageWrite(scheme, err)
	return err
}

// LoadRun reads a stored run by id.
func (p *Pipeline) LoadRun(ctx context.Context, runID string) (*report.Document, error) {
	if p.runs == nil {
		return nil, fmt.Errorf("%w: run store disabled", storage.ErrNotFound)
	}
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, runID)
	}
	data, err := p.runs.Read(ctx, storage.Location{Scheme: "sqlite", Bucket: RunsBucket, Path: runID + ".json"}.String())
	if err != nil {
		return nil, err
	}
	return report.Unmarshal(data)
}

// ListRuns returns the most recent stored runs.
func (p *Pipeline) ListRuns(ctx context.Context, limit int) ([]storage.ObjectInfo, error) {
	if p.runs == nil {
		return nil, nil
	}
	return p.runs.List(ctx, RunsBucket, limit)
}

// BuildGraph builds a standalone knowledge graph.
func (p *Pipeline) BuildGraph(ctx context.Context, text, company string, useMock bool) (*graph.Document, error) {
	provider := p.provider
	if useMock {
		provider = p.mock
	}
	b := graph.NewBuilder(provider, p.research, p.news, graph.Options{
		NewsPerEntity: p.cfg.Graph.NewsPerEntity,
		Workers:       p.cfg.Graph.Workers,
		MaxInputChars: p.cfg.Analysis.MaxInputChars,
		Logger:        p.log,
		Metrics:       p.metrics,
	})
	return b.Build(ctx, text, company)
}

func graphStep(kg *report.GraphSection) StepResult {
	if kg.Document == nil {
		return StepResult{Name: "Graph", Err: errors.New(kg.Error)}
	}
	return StepResult{
		Name: "Graph",
		Summary: fmt.Sprintf("%d dependencies, %d dependents (llm_processed=%v)",
			kg.Metadata.DependencyCount, kg.Metadata.DependentCount, kg.Metadata.LLMProcessed),
	}
}

func companyFromText(text string) string {
	m := companyLine.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], `"'*`)
}

func uploadName(u extract.Upload) string {
	if u.FileName != "" {
		return u.FileName
	}
	return filepath.Base(u.FilePath)
}

func errorOf(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
