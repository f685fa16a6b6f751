package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-prints/config"
	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/gocolly/colly/v2"
)

// PaginatedCrawler walks collections/{category}/?page=N for each configured
// category until a page fails or has no product links.
type PaginatedCrawler struct {
	cfg       *config.Config
	origin    *url.URL
	collector *colly.Collector
	metrics   *Metrics
}

// NewPaginatedCrawler builds a synchronous colly collector for the storefront.
func NewPaginatedCrawler(cfg *config.Config, metrics *Metrics) (*PaginatedCrawler, error) {
	origin, err := parseOrigin(cfg)
	if err != nil {
		return nil, err
	}

	// Redirects to another host (apex to www) are followed.
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &PaginatedCrawler{
		cfg:       cfg,
		origin:    origin,
		collector: collector,
		metrics:   metrics,
	}, nil
}

// Name implements Strategy.
func (pc *PaginatedCrawler) Name() string {
	return config.StrategyPaginated
}

// Discover implements Strategy.
func (pc *PaginatedCrawler) Discover(ctx context.Context) (*models.DiscoveryResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	stats := newCrawlStats(pc.Name(), pc.metrics)
	refs := newRefCollector()

	// Clones share the transport but not callbacks, so each run gets its own
	// handler state.
	c := pc.collector.Clone()

	var category string
	var pageLinks int

	c.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
		stats.recordRequest(r.URL.String())
	})
	c.OnResponse(func(r *colly.Response) {
		started, _ := r.Request.Ctx.GetAny("start").(time.Time)
		stats.observe(started)
	})
	c.OnError(func(r *colly.Response, err error) {
		target := ""
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				target = r.Request.URL.String()
			}
		}
		stats.recordError(target, err, statusCode)
	})
	c.OnHTML(pc.cfg.ProductLinkSelector, func(e *colly.HTMLElement) {
		pageLinks++
		refs.addLink(pc.origin, productLink{Text: e.Text, Href: e.Attr("href")}, category)
	})

	for _, category = range pc.cfg.Categories {
		for page := 1; page <= pc.cfg.MaxPages; page++ {
			if ctx.Err() != nil {
				slog.Info("discovery interrupted", slog.String("strategy", pc.Name()), slog.Int("refs", len(refs.refs)))
				return stats.result(refs, start), nil
			}

			pageLinks = 0
			pageURL := pc.pageURL(category, page)
			if err := c.Visit(pageURL); err != nil {
				slog.Debug("stopping category on failed page",
					slog.String("category", category),
					slog.Int("page", page),
					slog.Any("error", err),
				)
				break
			}
			if pageLinks == 0 {
				slog.Debug("stopping category on empty page",
					slog.String("category", category),
					slog.Int("page", page),
				)
				break
			}
			stats.recordPage()
		}
	}

	result := stats.result(refs, start)
	slog.Info("paginated discovery finished",
		slog.Int("refs", len(result.Refs)),
		slog.Int("pages", result.PageCount),
		slog.Int("errors", result.ErrorCount),
	)
	return result, nil
}

func (pc *PaginatedCrawler) pageURL(category string, page int) string {
	return fmt.Sprintf("%s/collections/%s/?page=%s",
		pc.origin.String(), url.PathEscape(category), strconv.Itoa(page))
}
