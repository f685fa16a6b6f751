package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-prints/config"
	"github.com/aluiziolira/go-scrape-prints/models"
)

// ErrUnknownStrategy is returned by NewStrategy for an unrecognised name.
var ErrUnknownStrategy = errors.New("scraper: unknown discovery strategy")

// Strategy enumerates a storefront catalog as an ordered, deduplicated list of
// product refs with ranks 1..N. Page-level failures end pagination early and
// are reported in the result; only setup failures are returned as errors.
type Strategy interface {
	Name() string
	Discover(ctx context.Context) (*models.DiscoveryResult, error)
}

// NewStrategy builds the discovery strategy selected by cfg.Strategy.
func NewStrategy(cfg *config.Config, metrics *Metrics) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyScroll:
		return NewScrollCrawler(cfg, metrics)
	case config.StrategyPaginated:
		return NewPaginatedCrawler(cfg, metrics)
	case config.StrategyAPI:
		return NewAPICrawler(cfg, metrics)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// refCollector assigns dense ranks in discovery order and drops repeats of
// the same identity key for the lifetime of one run.
type refCollector struct {
	seen map[string]struct{}
	refs []models.ProductRef
}

func newRefCollector() *refCollector {
	return &refCollector{seen: make(map[string]struct{})}
}

// add records a ref unless its key or title is empty or the key was seen.
func (rc *refCollector) add(key, title, productURL, category string) bool {
	key = strings.TrimSpace(key)
	title = strings.TrimSpace(title)
	if key == "" || title == "" {
		return false
	}
	if _, ok := rc.seen[key]; ok {
		return false
	}
	rc.seen[key] = struct{}{}
	rc.refs = append(rc.refs, models.ProductRef{
		Rank:     len(rc.refs) + 1,
		Title:    title,
		URL:      productURL,
		Category: category,
	})
	return true
}

func (rc *refCollector) snapshot() []models.ProductRef {
	out := make([]models.ProductRef, len(rc.refs))
	copy(out, rc.refs)
	return out
}

// productLink is the visible text and raw href of a product anchor.
type productLink struct {
	Text string
	Href string
}

// addLink dedups on the raw href and resolves it against origin.
func (rc *refCollector) addLink(origin *url.URL, link productLink, category string) bool {
	href := strings.TrimSpace(link.Href)
	if href == "" {
		return false
	}
	ref, err := url.Parse(href)
	if err != nil {
		slog.Debug("skipping unparseable product href", slog.String("href", href), slog.Any("error", err))
		return false
	}
	return rc.add(href, link.Text, origin.ResolveReference(ref).String(), category)
}

func parseOrigin(cfg *config.Config) (*url.URL, error) {
	origin, err := url.Parse(cfg.Origin())
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if origin.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	return origin, nil
}

// crawlStats tracks request and error counters for one discovery run.
type crawlStats struct {
	source  string
	metrics *Metrics

	requestCount int64
	pageCount    int64
	errorCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

func newCrawlStats(source string, metrics *Metrics) *crawlStats {
	return &crawlStats{
		source:       source,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
}

func (cs *crawlStats) recordRequest(target string) {
	current := atomic.AddInt64(&cs.requestCount, 1)
	cs.metrics.IncRequest(cs.source, "started")
	slog.Debug("discovery request",
		slog.String("strategy", cs.source),
		slog.Int64("requests", current),
		slog.String("url", target),
	)
}

func (cs *crawlStats) observe(start time.Time) {
	if start.IsZero() {
		return
	}
	cs.metrics.ObserveDuration(time.Since(start))
}

func (cs *crawlStats) recordPage() {
	atomic.AddInt64(&cs.pageCount, 1)
}

// recordError classifies err and statusCode and returns the typed error.
func (cs *crawlStats) recordError(target string, err error, statusCode int) error {
	classified := classifyError(err, statusCode)
	if classified == nil {
		return nil
	}
	atomic.AddInt64(&cs.errorCount, 1)
	category := errorTypeLabel(classified)

	cs.mu.Lock()
	cs.errorsByType[category]++
	cs.mu.Unlock()

	cs.metrics.IncRequest(cs.source, "failed")
	cs.metrics.IncError(category)
	slog.Warn("discovery request failed",
		slog.String("strategy", cs.source),
		slog.String("url", target),
		slog.String("category", category),
		slog.Any("error", classified),
	)
	return classified
}

func (cs *crawlStats) result(rc *refCollector, start time.Time) *models.DiscoveryResult {
	refs := rc.snapshot()
	for range refs {
		cs.metrics.IncRefs(cs.source)
	}

	cs.mu.Lock()
	errorsByType := make(map[string]int, len(cs.errorsByType))
	for k, v := range cs.errorsByType {
		errorsByType[k] = v
	}
	cs.mu.Unlock()

	return &models.DiscoveryResult{
		Strategy:     cs.source,
		Refs:         refs,
		StartTime:    start,
		EndTime:      time.Now(),
		RequestCount: int(atomic.LoadInt64(&cs.requestCount)),
		ErrorCount:   int(atomic.LoadInt64(&cs.errorCount)),
		PageCount:    int(atomic.LoadInt64(&cs.pageCount)),
		ErrorsByType: errorsByType,
	}
}
