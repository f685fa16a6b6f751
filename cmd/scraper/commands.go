package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/aluiziolira/go-scrape-prints/pipeline"
	"github.com/aluiziolira/go-scrape-prints/scraper"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover product refs and save them to the refs file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		defer startMetricsServer()()

		result, err := discover(ctx)
		if err != nil {
			return err
		}
		if err := pipeline.SaveRefs(cfg.RefsFile, result.Refs); err != nil {
			return err
		}
		slog.Info("refs saved", slog.String("path", cfg.RefsFile), slog.Int("refs", len(result.Refs)))
		if len(result.Refs) == 0 {
			slog.Warn("no products discovered", slog.String("strategy", result.Strategy))
		}
		printDiscoverySummary(result)
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Parse titles from the refs file, look up reviews, and export rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		defer startMetricsServer()()

		refs, err := pipeline.LoadRefs(cfg.RefsFile)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("refs file %s not found, run discover first: %w", cfg.RefsFile, err)
			}
			return err
		}
		return enrich(ctx, refs)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover, save refs, then enrich and export in one pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		defer startMetricsServer()()

		result, err := discover(ctx)
		if err != nil {
			return err
		}
		if err := pipeline.SaveRefs(cfg.RefsFile, result.Refs); err != nil {
			return err
		}
		printDiscoverySummary(result)
		return enrich(ctx, result.Refs)
	},
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func discover(ctx context.Context) (*models.DiscoveryResult, error) {
	strat, err := scraper.NewStrategy(cfg, metrics)
	if err != nil {
		return nil, err
	}

	slog.Info("starting discovery",
		slog.String("strategy", strat.Name()),
		slog.String("base_url", cfg.BaseURL),
	)
	result, err := strat.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery with %s strategy: %w", strat.Name(), err)
	}
	return result, nil
}

func enrich(ctx context.Context, refs []models.ProductRef) error {
	if len(refs) == 0 {
		slog.Warn("no products to enrich, skipping export", slog.Any("error", pipeline.ErrNoProducts))
		return nil
	}

	reviews, err := scraper.NewReviewEnricher(cfg, metrics)
	if err != nil {
		return err
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile, hasCategory(refs))
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	bar := newProgressBar(len(refs))
	p := pipeline.NewPipeline(reviews, writer)
	p.OnProgress(func(done, total int) {
		_ = bar.Set(done)
	})

	start := time.Now()
	rows, err := p.Run(ctx, refs)
	_ = bar.Finish()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("enrichment interrupted, partial rows kept", slog.Int("rows", len(rows)), slog.String("path", cfg.OutputFile))
		}
		return err
	}

	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	printEnrichSummary(rows, time.Since(start), p.GetMetrics())
	return nil
}

func hasCategory(refs []models.ProductRef) bool {
	for _, ref := range refs {
		if ref.Category != "" {
			return true
		}
	}
	return false
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("enriching"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}

const separator = "--------------------------------------------------"

func printDiscoverySummary(result *models.DiscoveryResult) {
	fmt.Println("\n" + separator)
	fmt.Println("Discovery complete")
	fmt.Printf("  Strategy:      %s\n", result.Strategy)
	fmt.Printf("  Products:      %d\n", len(result.Refs))
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Refs file:     %s\n", cfg.RefsFile)
	fmt.Println(separator)
}

func printEnrichSummary(rows []models.ParsedRow, duration time.Duration, stats map[string]interface{}) {
	reviewed := 0
	for _, row := range rows {
		if row.Rating != models.RatingUnavailable {
			reviewed++
		}
	}

	fmt.Println("\n" + separator)
	fmt.Println("Enrichment complete")
	fmt.Printf("  Rows:          %d\n", len(rows))
	fmt.Printf("  With rating:   %d\n", reviewed)
	if fallbacks, ok := stats["review_fallbacks"].(int); ok {
		fmt.Printf("  Lookup errors: %d\n", fallbacks)
	}
	if parse, ok := stats["parse_results"].(map[string]int); ok && len(parse) > 0 {
		fmt.Printf("  Parse:         %v\n", parse)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", cfg.OutputFile)
	fmt.Println(separator)

	for _, row := range rows[:min(len(rows), 5)] {
		fmt.Printf("  %3d  %-12s %-28s %5s (%s)\n", row.Rank, row.ProductType, row.PrintName, row.Rating, row.ReviewCount)
	}
}
