package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-prints/config"
	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/go-resty/resty/v2"
)

type productsPage struct {
	Products []apiProduct `json:"products"`
}

type apiProduct struct {
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

// APICrawler pages through the storefront's products.json listing.
type APICrawler struct {
	cfg     *config.Config
	client  *resty.Client
	metrics *Metrics
}

// NewAPICrawler builds a crawler for the paged JSON product endpoint.
func NewAPICrawler(cfg *config.Config, metrics *Metrics) (*APICrawler, error) {
	if _, err := parseOrigin(cfg); err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json")

	return &APICrawler{
		cfg:     cfg,
		client:  client,
		metrics: metrics,
	}, nil
}

// Name implements Strategy.
func (ac *APICrawler) Name() string {
	return config.StrategyAPI
}

// Endpoint returns the products.json URL, scoped to APICollection when set.
func (ac *APICrawler) Endpoint() string {
	if ac.cfg.APICollection != "" {
		return fmt.Sprintf("%s/collections/%s/products.json", ac.cfg.Origin(), url.PathEscape(ac.cfg.APICollection))
	}
	return ac.cfg.Origin() + "/products.json"
}

// Discover implements Strategy.
func (ac *APICrawler) Discover(ctx context.Context) (*models.DiscoveryResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	stats := newCrawlStats(ac.Name(), ac.metrics)
	refs := newRefCollector()
	endpoint := ac.Endpoint()

	for page := 1; page <= ac.cfg.APIMaxPages; page++ {
		if ctx.Err() != nil {
			slog.Info("discovery interrupted", slog.String("strategy", ac.Name()), slog.Int("refs", len(refs.refs)))
			break
		}

		products, err := ac.fetchPage(ctx, stats, endpoint, page)
		if err != nil {
			slog.Debug("stopping api pagination on failed page", slog.Int("page", page), slog.Any("error", err))
			break
		}
		if len(products) == 0 {
			slog.Debug("stopping api pagination on empty page", slog.Int("page", page))
			break
		}
		stats.recordPage()

		for _, product := range products {
			handle := strings.TrimSpace(product.Handle)
			if handle == "" || strings.TrimSpace(product.Title) == "" {
				continue
			}
			refs.add(handle, product.Title, ac.cfg.ProductURL(handle), ac.cfg.APICollection)
		}
	}

	result := stats.result(refs, start)
	slog.Info("api discovery finished",
		slog.Int("refs", len(result.Refs)),
		slog.Int("pages", result.PageCount),
		slog.Int("errors", result.ErrorCount),
	)
	return result, nil
}

func (ac *APICrawler) fetchPage(ctx context.Context, stats *crawlStats, endpoint string, page int) ([]apiProduct, error) {
	started := time.Now()
	target := endpoint + "?page=" + strconv.Itoa(page)
	stats.recordRequest(target)

	resp, err := ac.client.R().
		SetContext(ctx).
		SetQueryParam("page", strconv.Itoa(page)).
		SetQueryParam("limit", strconv.Itoa(ac.cfg.APIPageSize)).
		SetResult(&productsPage{}).
		ForceContentType("application/json").
		Get(endpoint)
	stats.observe(started)
	if err != nil {
		statusCode := 0
		if resp != nil && resp.RawResponse != nil {
			statusCode = resp.StatusCode()
			if isSuccess(statusCode) {
				// Transport succeeded, so the body failed to decode.
				return nil, stats.recordError(target, ErrMalformed{Err: err}, 0)
			}
		}
		return nil, stats.recordError(target, err, statusCode)
	}
	if !resp.IsSuccess() {
		return nil, stats.recordError(target, nil, resp.StatusCode())
	}

	result, ok := resp.Result().(*productsPage)
	if !ok || result == nil {
		return nil, stats.recordError(target, ErrMalformed{Err: fmt.Errorf("unexpected result type %T", resp.Result())}, 0)
	}
	return result.Products, nil
}
