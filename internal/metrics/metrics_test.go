package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"price-negotiation/backend/internal/ai"
	"price-negotiation/backend/internal/messages"
	"price-negotiation/backend/internal/negotiation"
	"price-negotiation/backend/internal/offer"
)

func TestObserveDecision(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.ObserveDecision(ctx, offer.Event{
		Decision: negotiation.Decision{Status: negotiation.StatusAccepted, Category: messages.CategorySuccess, DiscountCode: "NEGO-1"},
		Source:   ai.SourceModel,
		Duration: 20 * time.Millisecond,
	})
	c.ObserveDecision(ctx, offer.Event{
		Decision: negotiation.Decision{Status: negotiation.StatusRejected, Category: messages.CategoryRateLimited, Reason: negotiation.ReasonRateLimited},
	})
	c.ObserveDecision(ctx, offer.Event{
		Decision: negotiation.Decision{Status: negotiation.StatusChat},
		Source:   ai.SourceModel,
	})

	if got := testutil.ToFloat64(c.decisions.WithLabelValues("ACCEPTED", "SUCCESS")); got != 1 {
		t.Fatalf("expected 1 accepted decision, got %v", got)
	}
	if got := testutil.ToFloat64(c.decisions.WithLabelValues("CHAT", "none")); got != 1 {
		t.Fatalf("expected 1 chat decision, got %v", got)
	}
	if got := testutil.ToFloat64(c.extractions.WithLabelValues("model")); got != 2 {
		t.Fatalf("expected 2 model extractions, got %v", got)
	}
	if got := testutil.ToFloat64(c.rateLimited); got != 1 {
		t.Fatalf("expected 1 rate limited, got %v", got)
	}
	if got := testutil.ToFloat64(c.discounts); got != 1 {
		t.Fatalf("expected 1 issued code, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	done := c.RequestStarted()
	done("/api/negotiate", http.MethodPost, http.StatusOK)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `http_requests_total{method="POST",path="/api/negotiate",status="200"} 1`) {
		t.Fatalf("expected request counter in output:\n%s", body)
	}
	if got := testutil.ToFloat64(c.activeRequests); got != 0 {
		t.Fatalf("expected no requests in flight, got %v", got)
	}
}
