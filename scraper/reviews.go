package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-prints/config"
	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html/charset"
)

const ratingAttr = "data-average-rating"

// ReviewEnricher reads the reviews widget from product detail pages.
type ReviewEnricher struct {
	client         *resty.Client
	ratingSel      string
	reviewCountSel string
	cache          *lru.Cache[string, models.ReviewStats]
	metrics        *Metrics
}

// NewReviewEnricher builds an enricher with a single-attempt client bounded by
// cfg.ReviewTimeout. The cache is off by default so every Fetch issues one
// request; a positive ReviewCacheSize keeps recent successful lookups.
func NewReviewEnricher(cfg *config.Config, metrics *Metrics) (*ReviewEnricher, error) {
	client := resty.New().
		SetTimeout(cfg.ReviewTimeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent)

	re := &ReviewEnricher{
		client:         client,
		ratingSel:      cfg.RatingSelector,
		reviewCountSel: cfg.ReviewCountSelector,
		metrics:        metrics,
	}
	if cfg.ReviewCacheSize > 0 {
		cache, err := lru.New[string, models.ReviewStats](cfg.ReviewCacheSize)
		if err != nil {
			return nil, fmt.Errorf("create review cache: %w", err)
		}
		re.cache = cache
	}
	return re, nil
}

// Fetch returns the review stats for productURL. The stats are always usable:
// on any failure they hold the N/A and 0 fallbacks and the error says why.
func (re *ReviewEnricher) Fetch(ctx context.Context, productURL string) (models.ReviewStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if re.cache != nil {
		if stats, ok := re.cache.Get(productURL); ok {
			re.metrics.IncReviewLookup("cached")
			return stats, nil
		}
	}

	started := time.Now()
	re.metrics.IncRequest("reviews", "started")
	resp, err := re.client.R().SetContext(ctx).Get(productURL)
	re.metrics.ObserveDuration(time.Since(started))
	if err != nil {
		return re.fallback(productURL, classifyError(err, 0))
	}
	if !resp.IsSuccess() {
		return re.fallback(productURL, classifyError(nil, resp.StatusCode()))
	}

	stats, err := ExtractReviewStats(resp.Body(), resp.Header().Get("Content-Type"), re.ratingSel, re.reviewCountSel)
	if err != nil {
		return re.fallback(productURL, ErrMalformed{Err: err})
	}

	if re.cache != nil {
		re.cache.Add(productURL, stats)
	}
	re.metrics.IncReviewLookup("ok")
	return stats, nil
}

func (re *ReviewEnricher) fallback(productURL string, err error) (models.ReviewStats, error) {
	label := errorTypeLabel(err)
	re.metrics.IncRequest("reviews", "failed")
	re.metrics.IncError(label)
	re.metrics.IncReviewLookup("fallback")
	slog.Debug("review lookup fell back",
		slog.String("url", productURL),
		slog.String("category", label),
		slog.Any("error", err),
	)
	return models.FallbackReviewStats(), err
}

// ExtractReviewStats locates the rating and review count elements by class
// substring selectors. Each field falls back independently when its element
// is missing.
func ExtractReviewStats(body []byte, contentType, ratingSel, reviewCountSel string) (models.ReviewStats, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return models.FallbackReviewStats(), fmt.Errorf("decode body: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return models.FallbackReviewStats(), fmt.Errorf("parse html: %w", err)
	}

	stats := models.FallbackReviewStats()
	if rating, ok := doc.Find(ratingSel).First().Attr(ratingAttr); ok && strings.TrimSpace(rating) != "" {
		stats.Rating = strings.TrimSpace(rating)
	}
	if count := doc.Find(reviewCountSel).First(); count.Length() > 0 {
		if text := strings.TrimSpace(count.Text()); text != "" {
			stats.ReviewCount = text
		}
	}
	return stats, nil
}
