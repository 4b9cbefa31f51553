// Package orchestrator fans a startup description out to every selected
// analysis category on a bounded pool and merges the outcomes.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
	"github.com/TobiSchelling/PitchRadar/internal/metrics"
)

// RadarScale is the upper bound of every radar score.
const RadarScale = 10

// Radar is the parallel dimension/score vector used for radar charts.
type Radar struct {
	Dimensions []string  `json:"dimensions"`
	Scores     []float64 `json:"scores"`
	Scale      int       `json:"scale"`
}

// Report is the merged outcome of one run. Every dispatched category lands
// in exactly one of Results or Errors.
type Report struct {
	Results    map[string]analysis.Result `json:"results"`
	Errors     map[string]string          `json:"errors"`
	Radar      Radar                      `json:"radar_chart"`
	Categories []string                   `json:"categories"`
	StartedAt  time.Time                  `json:"started_at"`
	Duration   time.Duration              `json:"-"`
}

// Options tunes a run. Zero values select defaults.
type Options struct {
	Workers     int
	RunTimeout  time.Duration
	TaskTimeout time.Duration
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
}

// Orchestrator dispatches category analyses. Safe for concurrent Runs.
type Orchestrator struct {
	registry *analysis.Registry
	opts     Options
	log      logrus.FieldLogger
}

// DefaultWorkers returns clamp(2 x GOMAXPROCS, 4, 16).
func DefaultWorkers() int {
	return clamp(2*runtime.GOMAXPROCS(0), 4, 16)
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}

// New creates an orchestrator over registry.
func New(registry *analysis.Registry, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	return &Orchestrator{
		registry: registry,
		opts:     opts,
		log:      logger.OrDiscard(opts.Logger),
	}
}

// Workers reports the pool size in use.
func (o *Orchestrator) Workers() int { return o.opts.Workers }

// collector merges task outcomes under a mutex.
type collector struct {
	mu      sync.Mutex
	results map[string]analysis.Result
	errors  map[string]string
}

func (c *collector) success(name string, r analysis.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[name] = r
}

func (c *collector) failure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[name] = err.Error()
}

// Run analyzes text for the requested categories (all when empty). The only
// error returned is analysis.ErrInvalidRequest, before anything is
// dispatched; per-category failures are reported in Report.Errors. Run
// always waits for every dispatched task.
func (o *Orchestrator) Run(ctx context.Context, text string, categories []string) (*Report, error) {
	tools, err := o.registry.Select(categories)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	c := &collector{
		results: make(map[string]analysis.Result, len(tools)),
		errors:  make(map[string]string),
	}

	o.log.WithField("categories", len(tools)).Infof("Dispatching analyses on %d workers", o.opts.Workers)

	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for _, tool := range tools {
		g.Go(func() error {
			taskStart := time.Now()
			result, err := o.runTask(ctx, tool, text)
			o.opts.Metrics.ObserveAnalysis(tool.Name(), time.Since(taskStart), err)
			if err != nil {
				o.log.WithField("category", tool.Name()).Warnf("Analysis failed: %v", err)
				c.failure(tool.Name(), err)
				return nil
			}
			o.log.WithField("category", tool.Name()).Debugf("Analysis finished in %s", time.Since(taskStart).Round(time.Millisecond))
			c.success(tool.Name(), result)
			return nil
		})
	}
	g.Wait()

	report := &Report{
		Results:   c.results,
		Errors:    c.errors,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	for _, tool := range tools {
		report.Categories = append(report.Categories, tool.Name())
	}
	report.Radar = BuildRadar(report.Categories, report.Results)

	o.log.Infof("Analyses complete: %d succeeded, %d failed", len(report.Results), len(report.Errors))
	return report, nil
}

type taskOutcome struct {
	result analysis.Result
	err    error
}

// runTask runs one tool under the task deadline. A tool that ignores its
// context is abandoned once the deadline passes.
func (o *Orchestrator) runTask(ctx context.Context, tool analysis.Tool, text string) (analysis.Result, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, fmt.Errorf("not started: %w", err)
	}

	taskCtx := ctx
	if o.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, o.opts.TaskTimeout)
		defer cancel()
	}

	done := make(chan taskOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- taskOutcome{err: fmt.Errorf("panic in %s: %v", tool.Name(), r)}
			}
		}()
		result, err := tool.Analyze(taskCtx, text)
		done <- taskOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return analysis.Result{}, fmt.Errorf("deadline exceeded: %w", out.err)
		}
		return out.result, out.err
	case <-taskCtx.Done():
		return analysis.Result{}, fmt.Errorf("deadline exceeded: %w", taskCtx.Err())
	}
}

// BuildRadar derives the radar vector from results in the given order,
// skipping categories without a result or without a score.
func BuildRadar(order []string, results map[string]analysis.Result) Radar {
	radar := Radar{Dimensions: []string{}, Scores: []float64{}, Scale: RadarScale}
	for _, name := range order {
		r, ok := results[name]
		if !ok || r.CategoryScore == nil {
			continue
		}
		radar.Dimensions = append(radar.Dimensions, name)
		radar.Scores = append(radar.Scores, *r.CategoryScore)
	}
	return radar
}
