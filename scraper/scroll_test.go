package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-prints/config"
)

type fakeScrollPage struct {
	heights  []int
	reads    int
	scrolls  int
	links    []productLink
	selector string
}

func (fp *fakeScrollPage) ScrollHeight() (int, error) {
	if fp.reads >= len(fp.heights) {
		return fp.heights[len(fp.heights)-1], nil
	}
	h := fp.heights[fp.reads]
	fp.reads++
	return h, nil
}

func (fp *fakeScrollPage) ScrollToBottom() error {
	fp.scrolls++
	return nil
}

func (fp *fakeScrollPage) ProductLinks(selector string) ([]productLink, error) {
	fp.selector = selector
	return fp.links, nil
}

func newTestScrollCrawler(t *testing.T, page *fakeScrollPage) (*ScrollCrawler, *[]time.Duration) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://shop.test"
	cfg.MaxScrolls = 20

	sc, err := NewScrollCrawler(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new crawler: %v", err)
	}
	var sleeps []time.Duration
	sc.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	sc.open = func(ctx context.Context, cfg *config.Config, target string) (scrollPage, func(), error) {
		return page, func() {}, nil
	}
	return sc, &sleeps
}

func TestScrollCrawlerStopsWhenHeightSettles(t *testing.T) {
	page := &fakeScrollPage{
		heights: []int{1200, 2400, 3600, 3600},
		links: []productLink{
			{Text: "Romper – Tropical Leaf", Href: "/products/romper-tropical-leaf"},
			{Text: "Footie in Lemon Stripe", Href: "/products/footie-lemon-stripe"},
			{Text: "Romper – Tropical Leaf", Href: "/products/romper-tropical-leaf"},
			{Text: "No link", Href: ""},
		},
	}
	sc, sleeps := newTestScrollCrawler(t, page)

	result, err := sc.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if page.scrolls != 3 {
		t.Fatalf("scrolls=%d, want 3", page.scrolls)
	}
	if len(*sleeps) != 3 || (*sleeps)[0] != 1500*time.Millisecond {
		t.Fatalf("sleeps=%v, want three 1.5s settles", *sleeps)
	}
	if page.selector != "a.full-unstyled-link" {
		t.Fatalf("selector=%q", page.selector)
	}

	assertDenseRanks(t, result.Refs)
	if len(result.Refs) != 2 {
		t.Fatalf("refs=%d, want 2", len(result.Refs))
	}
	if result.Refs[1].URL != "https://shop.test/products/footie-lemon-stripe" {
		t.Fatalf("url=%q", result.Refs[1].URL)
	}
	if result.Refs[0].Category != "" {
		t.Fatalf("scroll refs carry no category, got %q", result.Refs[0].Category)
	}
}

func TestScrollCrawlerSafetyCap(t *testing.T) {
	heights := make([]int, 100)
	for i := range heights {
		heights[i] = (i + 1) * 500
	}
	page := &fakeScrollPage{heights: heights}
	sc, _ := newTestScrollCrawler(t, page)
	sc.cfg.MaxScrolls = 5

	if _, err := sc.Discover(context.Background()); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if page.scrolls != 5 {
		t.Fatalf("scrolls=%d, want cap of 5", page.scrolls)
	}
}

func TestScrollCrawlerEmptyPageStopsImmediately(t *testing.T) {
	page := &fakeScrollPage{heights: []int{0}}
	sc, sleeps := newTestScrollCrawler(t, page)

	result, err := sc.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if page.scrolls != 0 || len(*sleeps) != 0 {
		t.Fatalf("scrolls=%d sleeps=%d, want none", page.scrolls, len(*sleeps))
	}
	if len(result.Refs) != 0 {
		t.Fatalf("refs=%d, want 0", len(result.Refs))
	}
}

func TestScrollCrawlerOpenFailure(t *testing.T) {
	sc, _ := newTestScrollCrawler(t, nil)
	sc.open = func(ctx context.Context, cfg *config.Config, target string) (scrollPage, func(), error) {
		return nil, nil, errors.New("chromium not installed")
	}

	if _, err := sc.Discover(context.Background()); err == nil {
		t.Fatalf("expected error when the browser cannot start")
	}
}

func TestScrollCrawlerListingURL(t *testing.T) {
	sc, _ := newTestScrollCrawler(t, nil)
	if got := sc.ListingURL(); got != "https://shop.test/collections/all?sort_by=best-selling" {
		t.Fatalf("listing url=%q", got)
	}
}
