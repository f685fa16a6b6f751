package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Strategy names accepted by Config.Strategy.
const (
	StrategyScroll    = "scroll"
	StrategyPaginated = "paginated"
	StrategyAPI       = "api"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL             string        `mapstructure:"base_url"`
	Strategy            string        `mapstructure:"strategy"`
	ListingPath         string        `mapstructure:"listing_path"`
	ProductLinkSelector string        `mapstructure:"product_link_selector"`
	ProductPathPattern  string        `mapstructure:"product_path_pattern"` // {handle} is replaced
	Categories          []string      `mapstructure:"categories"`
	MaxPages            int           `mapstructure:"max_pages"`
	APICollection       string        `mapstructure:"api_collection"`
	APIMaxPages         int           `mapstructure:"api_max_pages"`
	APIPageSize         int           `mapstructure:"api_page_size"`
	SettleInterval      time.Duration `mapstructure:"settle_interval"`
	MaxScrolls          int           `mapstructure:"max_scrolls"`
	Headless            bool          `mapstructure:"headless"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ReviewTimeout       time.Duration `mapstructure:"review_timeout"`
	ReviewCacheSize     int           `mapstructure:"review_cache_size"`
	RatingSelector      string        `mapstructure:"rating_selector"`
	ReviewCountSelector string        `mapstructure:"review_count_selector"`
	UserAgent           string        `mapstructure:"user_agent"`
	RefsFile            string        `mapstructure:"refs_file"`
	OutputFile          string        `mapstructure:"output_file"`
	OutputFormat        string        `mapstructure:"output_format"` // csv, json, or dual
	Verbose             bool          `mapstructure:"verbose"`
	MetricsAddr         string        `mapstructure:"metrics_addr"`
}

// DefaultConfig returns defaults tuned for the Shopify storefront the tool
// was written against.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:             "https://bumsandroses.com",
		Strategy:            StrategyScroll,
		ListingPath:         "/collections/all?sort_by=best-selling",
		ProductLinkSelector: "a.full-unstyled-link",
		ProductPathPattern:  "/products/{handle}",
		Categories:          []string{"footies", "rompers", "bamboo-pajamas"},
		MaxPages:            10,
		APICollection:       "",
		APIMaxPages:         5,
		APIPageSize:         50,
		SettleInterval:      1500 * time.Millisecond,
		MaxScrolls:          200,
		Headless:            true,
		Timeout:             30 * time.Second,
		ReviewTimeout:       10 * time.Second,
		ReviewCacheSize:     0,
		RatingSelector:      "[class*=jdgm-star-rating]",
		ReviewCountSelector: "[class*=jdgm-all-reviews-rating-count]",
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RefsFile:            "data/raw_products.json",
		OutputFile:          "output/parsed_products.csv",
		OutputFormat:        "csv",
		Verbose:             false,
		MetricsAddr:         "",
	}
}

// Load layers an optional YAML file and SCRAPER_* environment variables on
// top of DefaultConfig. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Strategy = strings.ToLower(cfg.Strategy)
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("base_url", cfg.BaseURL)
	v.SetDefault("strategy", cfg.Strategy)
	v.SetDefault("listing_path", cfg.ListingPath)
	v.SetDefault("product_link_selector", cfg.ProductLinkSelector)
	v.SetDefault("product_path_pattern", cfg.ProductPathPattern)
	v.SetDefault("categories", cfg.Categories)
	v.SetDefault("max_pages", cfg.MaxPages)
	v.SetDefault("api_collection", cfg.APICollection)
	v.SetDefault("api_max_pages", cfg.APIMaxPages)
	v.SetDefault("api_page_size", cfg.APIPageSize)
	v.SetDefault("settle_interval", cfg.SettleInterval)
	v.SetDefault("max_scrolls", cfg.MaxScrolls)
	v.SetDefault("headless", cfg.Headless)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("review_timeout", cfg.ReviewTimeout)
	v.SetDefault("review_cache_size", cfg.ReviewCacheSize)
	v.SetDefault("rating_selector", cfg.RatingSelector)
	v.SetDefault("review_count_selector", cfg.ReviewCountSelector)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("refs_file", cfg.RefsFile)
	v.SetDefault("output_file", cfg.OutputFile)
	v.SetDefault("output_format", cfg.OutputFormat)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	switch c.Strategy {
	case StrategyScroll, StrategyPaginated, StrategyAPI:
	default:
		return fmt.Errorf("strategy must be scroll, paginated, or api")
	}

	if c.ProductLinkSelector == "" {
		return fmt.Errorf("product link selector cannot be empty")
	}
	if !strings.Contains(c.ProductPathPattern, "{handle}") {
		return fmt.Errorf("product path pattern must contain {handle}")
	}
	if c.Strategy == StrategyPaginated && len(c.Categories) == 0 {
		return fmt.Errorf("paginated strategy needs at least one category")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.APIMaxPages <= 0 {
		return fmt.Errorf("api max pages must be positive")
	}
	if c.APIPageSize <= 0 {
		return fmt.Errorf("api page size must be positive")
	}
	if c.SettleInterval < 0 {
		return fmt.Errorf("settle interval cannot be negative")
	}
	if c.MaxScrolls <= 0 {
		return fmt.Errorf("max scrolls must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ReviewTimeout <= 0 {
		return fmt.Errorf("review timeout must be positive")
	}
	if c.ReviewCacheSize < 0 {
		return fmt.Errorf("review cache size cannot be negative")
	}
	if c.RatingSelector == "" || c.ReviewCountSelector == "" {
		return fmt.Errorf("review selectors cannot be empty")
	}
	if c.RefsFile == "" {
		return fmt.Errorf("refs file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// Origin returns the scheme and host of BaseURL without a trailing slash.
func (c *Config) Origin() string {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return parsed.Scheme + "://" + parsed.Host
}

// ProductURL builds the canonical product page URL for a handle.
func (c *Config) ProductURL(handle string) string {
	return c.Origin() + strings.ReplaceAll(c.ProductPathPattern, "{handle}", url.PathEscape(handle))
}
