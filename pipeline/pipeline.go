package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/aluiziolira/go-scrape-prints/parser"
)

var (
	// ErrNoProducts is returned when there is nothing to enrich.
	ErrNoProducts = errors.New("pipeline: no products found")
)

// ReviewFetcher looks up review stats for a product page. The returned stats
// must be usable even when err is non-nil.
type ReviewFetcher interface {
	Fetch(ctx context.Context, productURL string) (models.ReviewStats, error)
}

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(rows []models.ParsedRow) error
	Close() error
	Validate() error
}

// Pipeline enriches discovered refs one at a time, in rank order.
type Pipeline struct {
	reviews   ReviewFetcher
	writer    OutputWriter
	batchSize int

	progress func(done, total int)
	metrics  metrics
}

// NewPipeline builds a pipeline. writer may be nil when the caller only wants
// the returned rows.
func NewPipeline(reviews ReviewFetcher, writer OutputWriter) *Pipeline {
	return &Pipeline{
		reviews:   reviews,
		writer:    writer,
		batchSize: 64,
		metrics:   newMetrics(),
	}
}

// OnProgress registers a callback invoked after each row is assembled.
func (p *Pipeline) OnProgress(fn func(done, total int)) {
	p.progress = fn
}

// Run parses and enriches every ref and returns one row per ref in input
// order. Review failures degrade the row's review fields; they never drop it.
// An empty input returns ErrNoProducts and writes nothing.
func (p *Pipeline) Run(ctx context.Context, refs []models.ProductRef) ([]models.ParsedRow, error) {
	if len(refs) == 0 {
		return nil, ErrNoProducts
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows := make([]models.ParsedRow, 0, len(refs))
	pending := 0
	flush := func() error {
		if p.writer == nil || pending == 0 {
			return nil
		}
		if err := p.writer.Write(rows[len(rows)-pending:]); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		pending = 0
		return nil
	}

	start := time.Now()
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			if flushErr := flush(); flushErr != nil {
				return rows, flushErr
			}
			return rows, fmt.Errorf("enrichment interrupted after %d of %d products: %w", len(rows), len(refs), err)
		}

		rows = append(rows, p.enrich(ctx, ref))
		pending++
		if pending >= p.batchSize {
			if err := flush(); err != nil {
				return rows, err
			}
		}
		if p.progress != nil {
			p.progress(i+1, len(refs))
		}
	}
	if err := flush(); err != nil {
		return rows, err
	}

	slog.Info("enrichment finished",
		slog.Int("rows", len(rows)),
		slog.Int("review_fallbacks", p.metrics.fallbackCount()),
		slog.Duration("duration", time.Since(start)),
	)
	return rows, nil
}

func (p *Pipeline) enrich(ctx context.Context, ref models.ProductRef) models.ParsedRow {
	parsed := parser.ParseTitle(ref.Title)
	if parsed.ProductType == models.UnknownProductType {
		p.metrics.addParse("unknown_type")
	}

	stats := models.FallbackReviewStats()
	if p.reviews != nil {
		var err error
		stats, err = p.reviews.Fetch(ctx, ref.URL)
		if err != nil {
			p.metrics.addFallback()
			slog.Debug("review stats degraded",
				slog.Int("rank", ref.Rank),
				slog.String("url", ref.URL),
				slog.Any("error", err),
			)
		}
	}

	category := ref.Category
	if category == "" {
		category = models.CategoryUnavailable
	}

	p.metrics.incrementProcessed()
	return models.ParsedRow{
		Rank:        ref.Rank,
		Title:       ref.Title,
		URL:         ref.URL,
		ProductType: parsed.ProductType,
		PrintName:   parsed.PrintName,
		Rating:      stats.Rating,
		ReviewCount: stats.ReviewCount,
		Category:    category,
	}
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

type metrics struct {
	mu        sync.Mutex
	processed int64
	fallbacks int
	parse     map[string]int
}

func newMetrics() metrics {
	return metrics{
		parse: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addFallback() {
	m.mu.Lock()
	m.fallbacks++
	m.mu.Unlock()
}

func (m *metrics) fallbackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallbacks
}

func (m *metrics) addParse(kind string) {
	m.mu.Lock()
	m.parse[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyParse := make(map[string]int, len(m.parse))
	for k, v := range m.parse {
		copyParse[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"review_fallbacks":   m.fallbacks,
		"parse_results":      copyParse,
	}
}
