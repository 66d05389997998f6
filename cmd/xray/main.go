package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-xray/config"
	"github.com/aluiziolira/go-xray/document"
	"github.com/aluiziolira/go-xray/filter"
	"github.com/aluiziolira/go-xray/models"
	"github.com/aluiziolira/go-xray/pipeline"
	"github.com/aluiziolira/go-xray/resolve"
	"github.com/aluiziolira/go-xray/xray"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string, f *flags) error {
	cfg, err := buildConfig(cmd, f)
	if err != nil {
		return err
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	node, err := loadDefinition(f.definition, f.selector)
	if err != nil {
		return err
	}
	src, err := readSource(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	scope := ""
	if len(args) > 1 {
		scope = args[1]
	}

	e, err := xray.New(
		xray.WithConfig(cfg),
		xray.WithFilters(filter.Standard()),
		xray.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("initialising engine: %w", err)
	}
	c, err := e.Crawl(src, scope, node)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, stopping the crawl")
			e.Abort()
		case <-done:
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(e.Metrics().Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	slog.Info("starting crawl",
		slog.String("source", sourceLabel(args[0])),
		slog.String("scope", scope),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Int("page_limit", cfg.PageLimit),
	)

	if err := write(ctx, c, cfg, cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	printSummary(cmd.ErrOrStderr(), c.Summary(), cfg.OutputFile)
	return nil
}

// write drains the crawl into the configured output and format.
func write(ctx context.Context, c *xray.Crawl, cfg *config.Config, stdout io.Writer) error {
	if cfg.OutputFormat == "jsonl" {
		var jl *pipeline.JSONLines
		if cfg.OutputFile != "" {
			var err error
			if jl, err = pipeline.NewJSONLinesFile(cfg.OutputFile); err != nil {
				return err
			}
		} else {
			jl = pipeline.NewJSONLines(stdout)
		}
		_, err := c.RunWith(ctx, jl)
		if cerr := jl.Close(); err == nil {
			err = cerr
		}
		return err
	}

	if cfg.OutputFile != "" {
		_, err := c.WriteFile(ctx, cfg.OutputFile)
		return err
	}
	_, err := c.Write(ctx, stdout)
	return err
}

// loadDefinition reads the selector tree from a YAML file or an inline YAML
// string.
func loadDefinition(path, inline string) (resolve.Node, error) {
	var data []byte
	switch {
	case path != "" && inline != "":
		return nil, errors.New("use either --definition or --selector, not both")
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read definition: %w", err)
		}
		data = b
	case inline != "":
		data = []byte(inline)
	default:
		return nil, errors.New("a selector is required: pass --definition or --selector")
	}
	node, err := resolve.DecodeYAML(data)
	if err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	return node, nil
}

// readSource returns arg as a URL, or the markup of the file it names, or of
// stdin for "-".
func readSource(arg string, stdin io.Reader) (string, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case document.IsURL(arg):
		return arg, nil
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(b), nil
}

func sourceLabel(arg string) string {
	if arg == "-" {
		return "stdin"
	}
	return arg
}

func printSummary(w io.Writer, summary *models.CrawlSummary, outputFile string) {
	if summary == nil {
		return
	}
	if outputFile == "" {
		outputFile = "stdout"
	}
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Crawl complete")
	fmt.Fprintf(w, "  Pages:         %d\n", len(summary.Pages))
	fmt.Fprintf(w, "  Items:         %d\n", summary.ItemCount)
	if summary.LimitHit {
		fmt.Fprintln(w, "  Page limit:    reached")
	}
	if summary.Aborted {
		fmt.Fprintln(w, "  Aborted:       yes")
	}
	fmt.Fprintf(w, "  Duration:      %v\n", summary.Duration())
	fmt.Fprintf(w, "  Output:        %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

// newLogger logs to stderr so results can go to stdout.
func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
