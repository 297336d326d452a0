package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trendbot/internal/cache"
	"trendbot/internal/logging"
)

const coingeckoBody = `{"coins":[
	{"item":{"name":"Bitcoin","symbol":"btc","market_cap_rank":1,"price_btc":1.0}},
	{"item":{"name":"Pepe","symbol":"pepe","market_cap_rank":42,"price_btc":0.00000001}}
]}`

func newCryptoService(t *testing.T, handler http.HandlerFunc) (*Service, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	p := NewCrypto(CryptoConfig{BaseURL: ts.URL, TTL: time.Hour}, ts.Client())
	svc := NewService(cache.NewMemory(), 5*time.Second, logging.Nop(), p)
	return svc, ts
}

func TestJoinSplitRoundTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		entries []string
	}{
		{name: "empty", entries: nil},
		{name: "single", entries: []string{"one entry"}},
		{name: "multi", entries: []string{"a", "b\nwith newline", "c"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Split(Join(tt.entries))
			if len(got) != len(tt.entries) {
				t.Fatalf("round trip length = %d, want %d", len(got), len(tt.entries))
			}
			if len(tt.entries) > 0 && !reflect.DeepEqual(got, tt.entries) {
				t.Fatalf("round trip = %#v, want %#v", got, tt.entries)
			}
		})
	}
}

func TestTrendingCachesWithinTTL(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	svc, _ := newCryptoService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(coingeckoBody))
	})

	first, err := svc.Trending(context.Background(), "crypto")
	if err != nil {
		t.Fatalf("first Trending: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("entries = %d, want 2", len(first))
	}
	if !strings.Contains(first[0], "*Bitcoin* (BTC)") {
		t.Fatalf("unexpected entry rendering: %q", first[0])
	}

	second, err := svc.Trending(context.Background(), "crypto")
	if err != nil {
		t.Fatalf("second Trending: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached result differs:\nfirst:  %#v\nsecond: %#v", first, second)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("upstream calls = %d, want 1 (second must come from cache)", n)
	}
}

func TestTrendingRefetchesAfterExpiry(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(coingeckoBody))
	}))
	t.Cleanup(ts.Close)

	p := NewCrypto(CryptoConfig{BaseURL: ts.URL, TTL: 30 * time.Millisecond}, ts.Client())
	svc := NewService(cache.NewMemory(), 5*time.Second, logging.Nop(), p)

	if _, err := svc.Trending(context.Background(), "crypto"); err != nil {
		t.Fatalf("first Trending: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := svc.Trending(context.Background(), "crypto"); err != nil {
		t.Fatalf("second Trending: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("upstream calls = %d, want 2 after TTL expiry", n)
	}
}

func TestTrendingFailureNotCached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	svc, _ := newCryptoService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := svc.Trending(context.Background(), "crypto"); err == nil {
		t.Fatal("expected error for upstream 500")
	}
	// The failure must not have been cached: the next call retries the
	// network, not the cache.
	if _, err := svc.Trending(context.Background(), "crypto"); err == nil {
		t.Fatal("expected error again")
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("upstream calls = %d, want 2 (errors are never cached)", n)
	}
}

func TestTrendingEmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	svc, _ := newCryptoService(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"coins":[]}`))
	})

	entries, err := svc.Trending(context.Background(), "crypto")
	if err != nil {
		t.Fatalf("Trending with empty coin list: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %#v, want empty", entries)
	}

	// Nothing was cached, so a second call consults the network again.
	if _, err := svc.Trending(context.Background(), "crypto"); err != nil {
		t.Fatalf("second Trending: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("upstream calls = %d, want 2 (empty results are not cached)", n)
	}
}

func TestEntriesMapsFailureToErrorEntry(t *testing.T) {
	t.Parallel()
	svc, _ := newCryptoService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	entries := svc.Entries(context.Background(), "crypto")
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want single error entry", len(entries))
	}
	if !strings.Contains(entries[0], "Error fetching crypto trending") {
		t.Fatalf("unexpected error entry: %q", entries[0])
	}
}

func TestTrendingUnknownProvider(t *testing.T) {
	t.Parallel()
	svc := NewService(cache.NewMemory(), time.Second, logging.Nop())
	if _, err := svc.Trending(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewsRendering(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 200)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("category"); got != "business" {
			t.Errorf("category = %q, want business", got)
		}
		_, _ = w.Write([]byte(`{"articles":[
			{"title":"Markets rally","url":"https://example.com/a","description":"` + long + `","source":{"name":"Example"}}
		]}`))
	}))
	t.Cleanup(ts.Close)

	p := NewNews(NewsConfig{BaseURL: ts.URL, APIKey: "k"}, ts.Client())
	entries, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if !strings.Contains(entries[0], "*Markets rally*") || !strings.Contains(entries[0], "Source: Example") {
		t.Fatalf("unexpected rendering: %q", entries[0])
	}
	if !strings.Contains(entries[0], strings.Repeat("x", 147)+"...") {
		t.Fatalf("description was not truncated: %q", entries[0])
	}
	if strings.Contains(entries[0], strings.Repeat("x", 148)) {
		t.Fatalf("description too long after truncation: %q", entries[0])
	}
}

func TestStocksRendering(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quoteResponse":{"result":[
			{"symbol":"AAPL","longName":"Apple Inc.","regularMarketPrice":202.0,"regularMarketPreviousClose":200.0},
			{"symbol":"ZZZZ","regularMarketPrice":10.0,"regularMarketPreviousClose":0}
		]}}`))
	}))
	t.Cleanup(ts.Close)

	p := NewStocks(StocksConfig{BaseURL: ts.URL, Symbols: []string{"AAPL", "ZZZZ"}}, ts.Client())
	entries, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if !strings.HasPrefix(entries[0], "📈") || !strings.Contains(entries[0], "+1.00%") {
		t.Fatalf("unexpected gainer rendering: %q", entries[0])
	}
	if !strings.HasPrefix(entries[1], "❌") {
		t.Fatalf("missing previous close should render ❌: %q", entries[1])
	}
}
