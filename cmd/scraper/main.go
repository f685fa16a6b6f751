package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-prints/config"
	"github.com/aluiziolira/go-scrape-prints/scraper"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	configFile   string
	verbose      bool
	metricsAddr  string
	strategy     string
	baseURL      string
	categories   []string
	refsFile     string
	outputFile   string
	outputFormat string

	cfg     *config.Config
	metrics *scraper.Metrics
)

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Discover storefront products and export parsed titles with review stats",
	Long: `scraper collects best-selling products from a Shopify storefront, splits each
title into a product type and print name, and looks up the review widget on
every product page.

  scraper discover --strategy api      # write data/raw_products.json
  scraper enrich                       # read it back and export the CSV
  scraper run                          # both steps in one process`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)

		logger, level := newLogger(loaded.Verbose)
		runID := uuid.NewString()
		logger = logger.With(slog.String("run_id", runID))
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())

		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		metrics = scraper.NewMetrics()
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file (SCRAPER_* environment variables override it)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&strategy, "strategy", "", "Discovery strategy: scroll, paginated, or api")
	flags.StringVar(&baseURL, "base-url", "", "Storefront origin to crawl")
	flags.StringSliceVar(&categories, "categories", nil, "Collections walked by the paginated strategy")
	flags.StringVar(&refsFile, "refs", "", "Intermediate product refs file")
	flags.StringVar(&outputFile, "output", "", "Export file path")
	flags.StringVar(&outputFormat, "format", "", "Export format: csv, json, or dual")

	rootCmd.AddCommand(discoverCmd, enrichCmd, runCmd)
}

// applyFlagOverrides copies explicitly set flags over file and environment values.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("verbose") {
		c.Verbose = verbose
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr = metricsAddr
	}
	if flags.Changed("strategy") {
		c.Strategy = strings.ToLower(strategy)
	}
	if flags.Changed("base-url") {
		c.BaseURL = baseURL
	}
	if flags.Changed("categories") {
		c.Categories = categories
	}
	if flags.Changed("refs") {
		c.RefsFile = refsFile
	}
	if flags.Changed("output") {
		c.OutputFile = outputFile
	}
	if flags.Changed("format") {
		c.OutputFormat = strings.ToLower(outputFormat)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// startMetricsServer exposes the registry when an address is configured. The
// returned func shuts the server down.
func startMetricsServer() func() {
	if cfg.MetricsAddr == "" || metrics == nil {
		return func() {}
	}

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

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
