package pool

import (
	"net/http"
	"testing"
	"time"
)

func TestCaptureUsageHeadersPopulatesWindow(t *testing.T) {
	p, store := newTestPool(PolicyRoundRobin, "A")

	h := make(http.Header)
	h.Set("x-amz-kiro-quota-window-start", time.Now().UTC().Format(time.RFC3339))
	h.Set("x-amz-kiro-quota-window-end", time.Now().UTC().Add(5*time.Hour).Format(time.RFC3339))
	p.CaptureUsageHeaders("A", h)

	a, _ := store.Get("A")
	if a.Usage == nil || a.Usage.FiveHourWindowStart == nil || a.Usage.FiveHourWindowEnd == nil {
		t.Fatal("expected usage window populated")
	}
}

func TestCaptureUsageHeadersNoopWithoutHeaders(t *testing.T) {
	p, store := newTestPool(PolicyRoundRobin, "A")
	p.CaptureUsageHeaders("A", make(http.Header))

	a, _ := store.Get("A")
	if a.Usage != nil {
		t.Fatal("expected usage to remain unset without quota headers")
	}
}

func TestAccumulateOpusCostAccumulates(t *testing.T) {
	p, store := newTestPool(PolicyRoundRobin, "A")
	p.AccumulateOpusCost("A", 1_000_000, 1_000_000, 15.0, 75.0)
	p.AccumulateOpusCost("A", 1_000_000, 0, 15.0, 75.0)

	a, _ := store.Get("A")
	if a.Usage == nil {
		t.Fatal("expected usage populated")
	}
	if a.Usage.OpusCostAccumulated < 104.9 || a.Usage.OpusCostAccumulated > 105.1 {
		t.Fatalf("expected accumulated cost ~105, got %f", a.Usage.OpusCostAccumulated)
	}
}
