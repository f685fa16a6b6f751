package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/aluiziolira/go-scrape-prints/config"
	"github.com/aluiziolira/go-scrape-prints/models"
	"github.com/jarcoal/httpmock"
)

const productURL = "https://shop.test/products/romper-tropical-leaf"

const reviewedPage = `<html><body>
<div class="jdgm-widget jdgm-preview-badge">
  <div class="jdgm-prev-badge" data-average-rating="4.86" data-number-of-reviews="37">
    <span class="jdgm-prev-badge__stars jdgm-star-rating-wrapper" data-average-rating="4.86"></span>
  </div>
</div>
<div class="jdgm-all-reviews-rating-count-wrapper">
  <span class="jdgm-all-reviews-rating-count"> 37 </span>
</div>
</body></html>`

func newTestReviewEnricher(t *testing.T, cacheSize int) (*ReviewEnricher, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ReviewCacheSize = cacheSize

	re, err := NewReviewEnricher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new enricher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	re.client.SetTransport(transport)
	return re, transport
}

func TestReviewEnricherExtractsStats(t *testing.T) {
	re, transport := newTestReviewEnricher(t, 0)
	transport.RegisterResponder("GET", productURL, htmlResponder(reviewedPage))

	stats, err := re.Fetch(context.Background(), productURL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := models.ReviewStats{Rating: "4.86", ReviewCount: "37"}
	if stats != want {
		t.Fatalf("stats=%+v, want %+v", stats, want)
	}
}

func TestReviewEnricherFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		want      models.ReviewStats
		wantErr   string
	}{
		{
			name:      "connection refused",
			responder: httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}),
			want:      models.ReviewStats{Rating: "N/A", ReviewCount: "0"},
			wantErr:   "connection",
		},
		{
			name:      "not found",
			responder: httpmock.NewStringResponder(http.StatusNotFound, reviewedPage),
			want:      models.ReviewStats{Rating: "N/A", ReviewCount: "0"},
			wantErr:   "not_found",
		},
		{
			name:      "server error",
			responder: httpmock.NewStringResponder(http.StatusBadGateway, ""),
			want:      models.ReviewStats{Rating: "N/A", ReviewCount: "0"},
			wantErr:   "status",
		},
		{
			name:      "no widget markup",
			responder: htmlResponder("<html><body><h1>Romper</h1></body></html>"),
			want:      models.ReviewStats{Rating: "N/A", ReviewCount: "0"},
		},
		{
			name:      "rating only",
			responder: htmlResponder(`<div class="jdgm-star-rating" data-average-rating="4.5"></div>`),
			want:      models.ReviewStats{Rating: "4.5", ReviewCount: "0"},
		},
		{
			name:      "count only",
			responder: htmlResponder(`<div class="jdgm-star-rating"></div><span class="x jdgm-all-reviews-rating-count">12</span>`),
			want:      models.ReviewStats{Rating: "N/A", ReviewCount: "12"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, transport := newTestReviewEnricher(t, 0)
			transport.RegisterResponder("GET", productURL, tt.responder)

			stats, err := re.Fetch(context.Background(), productURL)
			if stats != tt.want {
				t.Fatalf("stats=%+v, want %+v", stats, tt.want)
			}
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if got := errorTypeLabel(err); got != tt.wantErr {
				t.Fatalf("error type=%q (%v), want %q", got, err, tt.wantErr)
			}
		})
	}
}

func TestReviewEnricherUnreachableHost(t *testing.T) {
	re, _ := newTestReviewEnricher(t, 0)

	stats, err := re.Fetch(context.Background(), "https://unreachable.test/products/x")
	if err == nil {
		t.Fatalf("expected an error to be reported")
	}
	if stats != models.FallbackReviewStats() {
		t.Fatalf("stats=%+v, want fallback", stats)
	}
}

func TestReviewEnricherCachesSuccesses(t *testing.T) {
	re, transport := newTestReviewEnricher(t, 8)
	transport.RegisterResponder("GET", productURL, htmlResponder(reviewedPage))
	failing := "https://shop.test/products/broken"
	transport.RegisterResponder("GET", failing, httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	for i := 0; i < 3; i++ {
		if _, err := re.Fetch(context.Background(), productURL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		re.Fetch(context.Background(), failing)
	}

	calls := transport.GetCallCountInfo()
	if got := calls["GET "+productURL]; got != 1 {
		t.Fatalf("successful lookup fetched %d times, want 1", got)
	}
	if got := calls["GET "+failing]; got != 3 {
		t.Fatalf("failed lookup fetched %d times, want 3", got)
	}
}

func TestReviewEnricherDefaultIssuesOneRequestPerCall(t *testing.T) {
	re, err := NewReviewEnricher(config.DefaultConfig(), NewMetrics())
	if err != nil {
		t.Fatalf("new enricher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	re.client.SetTransport(transport)
	transport.RegisterResponder("GET", productURL, htmlResponder(reviewedPage))

	for i := 0; i < 2; i++ {
		if _, err := re.Fetch(context.Background(), productURL); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := transport.GetCallCountInfo()["GET "+productURL]; got != 2 {
		t.Fatalf("requests=%d, want one per call", got)
	}
}
