package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-prints/config"
	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// scrollPage is the slice of a browser tab the scroll crawler drives.
type scrollPage interface {
	ScrollHeight() (int, error)
	ScrollToBottom() error
	ProductLinks(selector string) ([]productLink, error)
}

// pageOpener loads target in a browser and returns the page plus a release func.
type pageOpener func(ctx context.Context, cfg *config.Config, target string) (scrollPage, func(), error)

// ScrollCrawler renders the listing page in a headless browser and scrolls
// until the document height stops growing, then collects product anchors.
type ScrollCrawler struct {
	cfg     *config.Config
	origin  *url.URL
	metrics *Metrics

	open  pageOpener
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScrollCrawler builds a crawler backed by a rod-controlled Chromium.
func NewScrollCrawler(cfg *config.Config, metrics *Metrics) (*ScrollCrawler, error) {
	origin, err := parseOrigin(cfg)
	if err != nil {
		return nil, err
	}
	return &ScrollCrawler{
		cfg:     cfg,
		origin:  origin,
		metrics: metrics,
		open:    openRodPage,
		sleep:   sleepContext,
	}, nil
}

// Name implements Strategy.
func (sc *ScrollCrawler) Name() string {
	return config.StrategyScroll
}

// ListingURL is the page the crawler renders.
func (sc *ScrollCrawler) ListingURL() string {
	ref, err := url.Parse(sc.cfg.ListingPath)
	if err != nil {
		return sc.origin.String() + sc.cfg.ListingPath
	}
	return sc.origin.ResolveReference(ref).String()
}

// Discover implements Strategy. Failing to start the browser or load the
// listing page is returned as an error since there is nothing to keep.
func (sc *ScrollCrawler) Discover(ctx context.Context) (*models.DiscoveryResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	stats := newCrawlStats(sc.Name(), sc.metrics)
	refs := newRefCollector()
	target := sc.ListingURL()

	stats.recordRequest(target)
	page, release, err := sc.open(ctx, sc.cfg, target)
	stats.observe(start)
	if err != nil {
		stats.recordError(target, err, 0)
		return nil, fmt.Errorf("open listing page: %w", err)
	}
	defer release()

	scrolls := sc.scrollUntilStable(ctx, page)
	stats.recordPage()

	links, err := page.ProductLinks(sc.cfg.ProductLinkSelector)
	if err != nil {
		stats.recordError(target, ErrMalformed{Err: err}, 0)
	}
	for _, link := range links {
		refs.addLink(sc.origin, link, "")
	}

	result := stats.result(refs, start)
	slog.Info("scroll discovery finished",
		slog.Int("refs", len(result.Refs)),
		slog.Int("anchors", len(links)),
		slog.Int("scrolls", scrolls),
	)
	return result, nil
}

// scrollUntilStable scrolls to the bottom until two consecutive height
// readings match, MaxScrolls is reached, or ctx ends. It returns the number
// of scrolls performed.
func (sc *ScrollCrawler) scrollUntilStable(ctx context.Context, page scrollPage) int {
	previous := 0
	for scrolls := 0; scrolls < sc.cfg.MaxScrolls; scrolls++ {
		height, err := page.ScrollHeight()
		if err != nil {
			slog.Warn("reading scroll height failed", slog.Any("error", err))
			return scrolls
		}
		if height == previous {
			return scrolls
		}
		previous = height

		if err := page.ScrollToBottom(); err != nil {
			slog.Warn("scrolling listing page failed", slog.Any("error", err))
			return scrolls
		}
		if err := sc.sleep(ctx, sc.cfg.SettleInterval); err != nil {
			return scrolls + 1
		}
	}
	slog.Warn("scroll safety cap reached before height settled", slog.Int("max_scrolls", sc.cfg.MaxScrolls))
	return sc.cfg.MaxScrolls
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type rodPage struct {
	page *rod.Page
}

func openRodPage(ctx context.Context, cfg *config.Config, target string) (scrollPage, func(), error) {
	l := launcher.New().Headless(cfg.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	release := func() {
		if err := browser.Close(); err != nil {
			slog.Debug("close browser", slog.Any("error", err))
		}
		l.Cleanup()
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("open tab: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
		release()
		return nil, nil, fmt.Errorf("set user agent: %w", err)
	}
	if err := page.Timeout(cfg.Timeout).Navigate(target); err != nil {
		release()
		return nil, nil, fmt.Errorf("navigate %s: %w", target, err)
	}
	if err := page.Timeout(cfg.Timeout).WaitLoad(); err != nil {
		release()
		return nil, nil, fmt.Errorf("wait load %s: %w", target, err)
	}

	slog.Debug("listing page loaded", slog.String("url", target))
	return &rodPage{page: page}, release, nil
}

func (rp *rodPage) ScrollHeight() (int, error) {
	res, err := rp.page.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (rp *rodPage) ScrollToBottom() error {
	_, err := rp.page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (rp *rodPage) ProductLinks(selector string) ([]productLink, error) {
	elements, err := rp.page.Elements(selector)
	if err != nil {
		return nil, err
	}

	links := make([]productLink, 0, len(elements))
	for _, el := range elements {
		text, err := el.Text()
		if err != nil {
			slog.Debug("reading anchor text failed", slog.Any("error", err))
			continue
		}
		href, err := el.Attribute("href")
		if err != nil {
			slog.Debug("reading anchor href failed", slog.Any("error", err))
			continue
		}
		link := productLink{Text: text}
		if href != nil {
			link.Href = *href
		}
		links = append(links, link)
	}
	return links, nil
}
