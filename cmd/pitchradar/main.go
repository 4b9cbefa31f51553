package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/PitchRadar/internal/analysis"
	"github.com/TobiSchelling/PitchRadar/internal/config"
	"github.com/TobiSchelling/PitchRadar/internal/extract"
	"github.com/TobiSchelling/PitchRadar/internal/logger"
	"github.com/TobiSchelling/PitchRadar/internal/metrics"
	"github.com/TobiSchelling/PitchRadar/internal/moderation"
	"github.com/TobiSchelling/PitchRadar/internal/pipeline"
	"github.com/TobiSchelling/PitchRadar/internal/report"
	"github.com/TobiSchelling/PitchRadar/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pitchradar",
	Short:        "Startup due-diligence risk analysis",
	Long:         "PitchRadar scores a startup across ten risk categories and enriches the result with news, market sizing, founder profiles, and a supply-chain knowledge graph.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		switch {
		case err == nil:
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		case configPath != "":
			return err
		default:
			cfg, err = config.Default()
			if err != nil {
				return fmt.Errorf("loading default config: %w", err)
			}
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level, cfg.Logging.File)
		if err != nil {
			return err
		}
		log.Debugf("Using config %q", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(moderateCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pitchradar", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/pitchradar/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider, search keys, and storage.")
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the risk categories",
	Run: func(cmd *cobra.Command, args []string) {
		for i, name := range analysis.CategoryNames() {
			fmt.Printf("  %2d. %s\n", i+1, name)
		}
	},
}

// --- analyze command ---

var (
	inputText   string
	inputFile   string
	categories  []string
	useMock     bool
	outPath     string
	outFormat   string
	companyName string
	destination string
	skipGraph   bool
	uploadSpecs []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analysis: input -> moderate -> analyze -> enrich -> store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outFormat != "json" && outFormat != "markdown" {
			return fmt.Errorf("unknown format %q (want json or markdown)", outFormat)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		req := pipeline.Request{
			UseMock:            useMock,
			Categories:         categories,
			Destination:        destination,
			CompanyName:        companyName,
			SkipKnowledgeGraph: skipGraph,
			Summarize:          outFormat == "markdown",
		}
		if len(uploadSpecs) > 0 {
			uploads, err := parseUploads(uploadSpecs)
			if err != nil {
				return err
			}
			req.Uploads = uploads
		} else {
			text, err := readInput(inputText, inputFile)
			if err != nil {
				return err
			}
			req.StartupText = text
		}

		pipe, closeFn, err := pipeline.Open(ctx, cfg, log, nil)
		if err != nil {
			return err
		}
		defer closeFn()

		result, err := pipe.Run(ctx, req)
		if err != nil {
			return err
		}

		for i, step := range result.Steps {
			fmt.Fprintf(os.Stderr, "\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Fprintf(os.Stderr, "  Error: %v\n", step.Err)
			} else {
				fmt.Fprintf(os.Stderr, "  %s\n", step.Summary)
			}
		}

		var out []byte
		if outFormat == "markdown" {
			out = []byte(report.Markdown(result.Document, result.Document.TLDR))
		} else {
			out, err = result.Document.Marshal()
			if err != nil {
				return err
			}
			out = append(out, '\n')
		}

		if err := writeOutput(outPath, out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "\nRun %s complete. Run 'pitchradar serve' to browse stored runs.\n", result.RunID)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&inputText, "text", "t", "", "Startup description text")
	analyzeCmd.Flags().StringVarP(&inputFile, "file", "f", "", "Read startup text from a file (pdf, html, txt; - for stdin)")
	analyzeCmd.Flags().StringSliceVar(&uploadSpecs, "upload", nil, "Analyze an uploaded document as filetype=uri (repeatable)")
	analyzeCmd.Flags().StringSliceVar(&categories, "categories", nil, "Comma-separated category names (default: all)")
	analyzeCmd.Flags().BoolVar(&useMock, "mock", false, "Use the deterministic mock LLM")
	analyzeCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the report to a file instead of stdout")
	analyzeCmd.Flags().StringVar(&outFormat, "format", "json", "Output format: json or markdown")
	analyzeCmd.Flags().StringVar(&companyName, "company", "", "Company name for news and the knowledge graph")
	analyzeCmd.Flags().StringVar(&destination, "destination", "", "Also write the JSON report to this URI (gs://, file://, sqlite://)")
	analyzeCmd.Flags().BoolVar(&skipGraph, "skip-graph", false, "Skip knowledge graph generation")
}

// parseUploads turns "pitch deck=gs://bucket/deck.pdf" into uploads.
func parseUploads(specs []string) ([]extract.Upload, error) {
	uploads := make([]extract.Upload, 0, len(specs))
	for _, spec := range specs {
		kind, uri, ok := strings.Cut(spec, "=")
		if !ok || strings.TrimSpace(uri) == "" {
			return nil, fmt.Errorf("invalid upload %q (want filetype=uri)", spec)
		}
		uri = strings.TrimSpace(uri)
		uploads = append(uploads, extract.Upload{
			FileType: strings.TrimSpace(kind),
			FileName: uri[strings.LastIndex(uri, "/")+1:],
			FilePath: uri,
		})
	}
	return uploads, nil
}

func readInput(text, file string) (string, error) {
	switch {
	case text != "" && file != "":
		return "", errors.New("use either --text or --file, not both")
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	case file != "":
		return extract.File(file)
	}
	return text, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- graph command ---

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build a supply-chain knowledge graph for a startup",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		text, err := readInput(inputText, inputFile)
		if err != nil {
			return err
		}

		pipe, closeFn, err := pipeline.Open(ctx, cfg, log, nil)
		if err != nil {
			return err
		}
		defer closeFn()

		doc, err := pipe.BuildGraph(ctx, text, companyName, useMock)
		if err != nil {
			printJSON(map[string]string{"error": err.Error()})
			return err
		}
		return printJSON(doc)
	},
}

func init() {
	graphCmd.Flags().StringVarP(&inputText, "text", "t", "", "Startup description text")
	graphCmd.Flags().StringVarP(&inputFile, "file", "f", "", "Read startup text from a file (- for stdin)")
	graphCmd.Flags().StringVar(&companyName, "company", "", "Company name (default: extracted from the text)")
	graphCmd.Flags().BoolVar(&useMock, "mock", false, "Use the deterministic mock LLM")
}

// --- moderate command ---

var moderateCmd = &cobra.Command{
	Use:   "moderate [text]",
	Short: "Screen text for unsafe content",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := inputText
		if len(args) == 1 {
			text = args[0]
		}
		text, err := readInput(text, inputFile)
		if err != nil {
			return err
		}

		return printJSON(moderation.New().Moderate(text))
	},
}

func init() {
	moderateCmd.Flags().StringVarP(&inputFile, "file", "f", "", "Read text from a file (- for stdin)")
}

// --- serve command ---

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and run browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if serveHost != "" {
			cfg.Server.Host = serveHost
		}
		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		m := metrics.New()
		pipe, closeFn, err := pipeline.Open(ctx, cfg, log, m)
		if err != nil {
			return err
		}
		defer closeFn()

		srv, err := server.New(pipe, m, log)
		if err != nil {
			return err
		}

		addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
		fmt.Printf("Starting server at http://%s (LLM: %s)\n", addr, pipe.ClientType())
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind (default from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
