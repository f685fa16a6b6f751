package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-prints/models"
)

// titlePatterns are tried in order; the first match wins even when a later
// pattern would also fit. Separators accept any Unicode space, since decoded
// titles often carry U+00A0.
var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?P<product_type>.+?)[\s\p{Z}]+[\x{2013}\-][\s\p{Z}]+(?P<print_name>.+)`),
	regexp.MustCompile(`^(?P<product_type>.+?)[\s\p{Z}]+in[\s\p{Z}]+(?P<print_name>.+)`),
}

// ParseTitle splits a storefront title into product type and print name.
// Titles matching no pattern come back as Unknown with the whole title as
// the print name.
func ParseTitle(title string) models.ParsedTitle {
	title = strings.TrimSpace(title)
	for _, pattern := range titlePatterns {
		match := pattern.FindStringSubmatch(title)
		if match == nil {
			continue
		}
		return models.ParsedTitle{
			ProductType: strings.TrimSpace(match[pattern.SubexpIndex("product_type")]),
			PrintName:   strings.TrimSpace(match[pattern.SubexpIndex("print_name")]),
		}
	}
	return models.ParsedTitle{
		ProductType: models.UnknownProductType,
		PrintName:   title,
	}
}

// ValidateRef ensures a discovered or loaded ref carries the required fields.
func ValidateRef(ref models.ProductRef) error {
	if ref.Rank <= 0 {
		return fmt.Errorf("ref rank must be positive, got %d", ref.Rank)
	}
	if strings.TrimSpace(ref.Title) == "" {
		return fmt.Errorf("ref %d missing title", ref.Rank)
	}
	if strings.TrimSpace(ref.URL) == "" {
		return fmt.Errorf("ref %d missing url", ref.Rank)
	}
	parsed, err := url.Parse(ref.URL)
	if err != nil {
		return fmt.Errorf("ref %d has invalid url: %w", ref.Rank, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("ref %d url must be absolute: %s", ref.Rank, ref.URL)
	}
	return nil
}

// ValidateRefs checks every ref and that no rank repeats. Gaps are allowed so
// a hand-filtered list still loads.
func ValidateRefs(refs []models.ProductRef) error {
	seen := make(map[int]struct{}, len(refs))
	for _, ref := range refs {
		if err := ValidateRef(ref); err != nil {
			return err
		}
		if _, ok := seen[ref.Rank]; ok {
			return fmt.Errorf("duplicate rank %d", ref.Rank)
		}
		seen[ref.Rank] = struct{}{}
	}
	return nil
}
