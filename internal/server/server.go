package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/graph"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
	"github.com/TobiSchelling/PitchRadar/internal/metrics"
	"github.com/TobiSchelling/PitchRadar/internal/pipeline"
	"github.com/TobiSchelling/PitchRadar/internal/report"
	"github.com/TobiSchelling/PitchRadar/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const recentRuns = 50

// Server is the HTTP API and run browser.
type Server struct {
	pipe    *pipeline.Pipeline
	metrics *metrics.Metrics
	log     logrus.FieldLogger
	pages   map[string]*template.Template
	echo    *echo.Echo
}

// New creates a new Server.
func New(pipe *pipeline.Pipeline, m *metrics.Metrics, log logrus.FieldLogger) (*Server, error) {
	funcMap := template.FuncMap{
		"report": report.HTML,
		"runID": func(o storage.ObjectInfo) string {
			return strings.TrimSuffix(o.Path, ".json")
		},
		"when": func(t time.Time) string {
			return t.UTC().Format("2006-01-02 15:04 UTC")
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base with its "title" and "content".
	pageNames := []string{"index.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{pipe: pipe, metrics: m, log: logger.OrDiscard(log), pages: pages, echo: e}
	e.HTTPErrorHandler = s.handleError
	e.Use(s.observe)
	e.Use(middleware.Recover())
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.echo.StaticFS("/static", staticSub)

	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/analyze", s.handleUsage)
	s.echo.POST("/analyze", s.handleAnalyze)
	s.echo.POST("/knowledge-graph", s.handleGraph)
	s.echo.POST("/moderate", s.handleModerate)
	s.echo.GET("/runs/:id", s.handleRun)
	s.echo.GET("/runs/:id/json", s.handleRunJSON)
	s.echo.GET("/categories", s.handleCategories)
	s.echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

// observe counts responses by route pattern.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		code := c.Response().Status
		if err != nil {
			code = http.StatusInternalServerError
			var he *echo.HTTPError
			if errors.As(err, &he) {
				code = he.Code
			}
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, code)
		return err
	}
}

// handleError writes every error as {"error": "..."}. Anything that is not
// an *echo.HTTPError is a failure of the handler itself.
func (s *Server) handleError(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "Unhandled error: " + err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		s.log.WithField("path", c.Request().URL.Path).Errorf("Request failed: %v", err)
	}
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}

func badRequest(err error) error {
	msg := strings.TrimPrefix(err.Error(), analysis.ErrInvalidRequest.Error()+": ")
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func (s *Server) handleIndex(c echo.Context) error {
	runs, err := s.pipe.ListRuns(c.Request().Context(), recentRuns)
	if err != nil {
		return err
	}
	return s.render(c, "index.html", map[string]any{
		"Runs":       runs,
		"Categories": analysis.CategoryNames(),
	})
}

func (s *Server) handleUsage(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Send POST with JSON body containing 'startup_text' string.",
		"example_body": map[string]any{
			"startup_text": "Name: AcmeAI\nIndustry: Fintech\nStage: Seed\n...",
			"use_mock":     false,
			"categories": []string{
				"Market Risk Analysis",
				"Financial Risk Analysis",
			},
		},
	})
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req pipeline.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}

	res, err := s.pipe.Run(c.Request().Context(), req)
	if errors.Is(err, analysis.ErrInvalidRequest) {
		return badRequest(err)
	}
	if err != nil {
		return err
	}
	c.Response().Header().Set("X-Run-ID", res.RunID)
	return c.JSON(http.StatusOK, res.Document)
}

type graphRequest struct {
	StartupText string `json:"startup_text"`
	CompanyName string `json:"company_name"`
	UseMock     bool   `json:"use_mock"`
}

func (s *Server) handleGraph(c echo.Context) error {
	var req graphRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	doc, err := s.pipe.BuildGraph(c.Request().Context(), req.StartupText, req.CompanyName, req.UseMock)
	if errors.Is(err, graph.ErrEmptyInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleModerate(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON body")
	}
	return c.JSON(http.StatusOK, s.pipe.Moderator().Moderate(req.Text))
}

func (s *Server) loadRun(c echo.Context) (*report.Document, error) {
	doc, err := s.pipe.LoadRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return doc, err
}

func (s *Server) handleRun(c echo.Context) error {
	doc, err := s.loadRun(c)
	if err != nil {
		return err
	}
	return s.render(c, "run.html", map[string]any{"Doc": doc})
}

func (s *Server) handleRunJSON(c echo.Context) error {
	doc, err := s.loadRun(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"categories": analysis.CategoryNames()})
}

func (s *Server) render(c echo.Context, name string, data any) error {
	tmpl, ok := s.pages[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return fmt.Errorf("rendering template %s: %w", name, err)
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, srv *Server, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.log.Infof("Server listening on http://%s", addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
