// Package models defines data structures for the scraper.
package models

import "time"

const (
	// RatingUnavailable is reported when no rating could be read for a product.
	RatingUnavailable = "N/A"
	// ReviewCountUnavailable is reported when no review count could be read.
	ReviewCountUnavailable = "0"
	// UnknownProductType is used when a title matches no decomposition pattern.
	UnknownProductType = "Unknown"
	// CategoryUnavailable fills the category column for refs discovered without one.
	CategoryUnavailable = "N/A"
)

// ProductRef is one catalog entry produced by discovery. Its JSON form is the
// hand-off contract between the discover and enrich steps.
type ProductRef struct {
	Rank     int    `json:"rank"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Category string `json:"category,omitempty"`
}

// ParsedTitle is the structured decomposition of a product title.
type ParsedTitle struct {
	ProductType string `json:"product_type"`
	PrintName   string `json:"print_name"`
}

// ReviewStats holds the review widget values scraped from a detail page.
type ReviewStats struct {
	Rating      string `json:"rating"`
	ReviewCount string `json:"review_count"`
}

// FallbackReviewStats returns the values reported when nothing could be read.
func FallbackReviewStats() ReviewStats {
	return ReviewStats{
		Rating:      RatingUnavailable,
		ReviewCount: ReviewCountUnavailable,
	}
}

// ParsedRow is a single export record.
type ParsedRow struct {
	Rank        int    `csv:"rank" json:"rank"`
	Title       string `csv:"title" json:"title"`
	URL         string `csv:"url" json:"url"`
	ProductType string `csv:"product_type" json:"product_type"`
	PrintName   string `csv:"print_name" json:"print_name"`
	Rating      string `csv:"rating" json:"rating"`
	ReviewCount string `csv:"review_count" json:"review_count"`
	Category    string `csv:"category" json:"category,omitempty"`
}

// DiscoveryResult summarises one discovery run.
type DiscoveryResult struct {
	Strategy     string
	Refs         []ProductRef
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	ErrorCount   int
	PageCount    int
	ErrorsByType map[string]int
}
