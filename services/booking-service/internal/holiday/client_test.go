package holiday

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func holidayServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/v3/PublicHolidays/2026/ZA" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"date":"2026-01-01","name":"New Year's Day"},{"date":"2026-12-25","name":"Christmas Day"}]`))
	}))
}

func TestIsHoliday(t *testing.T) {
	var hits atomic.Int64
	srv := holidayServer(t, &hits)
	defer srv.Close()

	c := NewNagerClient("ZA", time.Second).WithBaseURL(srv.URL)
	ctx := context.Background()

	holiday, err := c.IsHoliday(ctx, time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("IsHoliday failed: %v", err)
	}
	if !holiday {
		t.Fatal("expected Christmas to be a holiday")
	}

	holiday, err = c.IsHoliday(ctx, time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("IsHoliday failed: %v", err)
	}
	if holiday {
		t.Fatal("expected an ordinary Wednesday to not be a holiday")
	}
}

func TestIsHoliday_CachedPerCountryYear(t *testing.T) {
	var hits atomic.Int64
	srv := holidayServer(t, &hits)
	defer srv.Close()

	c := NewNagerClient("ZA", time.Second).WithBaseURL(srv.URL)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := c.IsHoliday(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
			t.Fatalf("IsHoliday failed: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", hits.Load())
	}
}

func TestIsHoliday_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewNagerClient("ZA", time.Second).WithBaseURL(srv.URL)
	if _, err := c.IsHoliday(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected an error from a failing upstream")
	}
}

func TestYearCache_TTLAndEviction(t *testing.T) {
	c := newYearCache()
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	dates := map[string]struct{}{"2026-01-01": {}}

	c.put("ZA", 2026, dates, now)
	if _, ok := c.get("ZA", 2026, now.Add(cacheTTL-time.Minute)); !ok {
		t.Fatal("entry should be live before the TTL")
	}
	if _, ok := c.get("ZA", 2026, now.Add(cacheTTL)); ok {
		t.Fatal("entry should expire at the TTL")
	}

	for i := 0; i < cacheMaxEntries+1; i++ {
		c.put("ZA", 2020+i, dates, now.Add(time.Duration(i)*time.Minute))
	}
	if len(c.entries) != cacheMaxEntries {
		t.Fatalf("cache should hold at most %d entries, got %d", cacheMaxEntries, len(c.entries))
	}
	if _, ok := c.get("ZA", 2020, now.Add(time.Hour)); ok {
		t.Fatal("oldest entry should have been evicted")
	}
}
