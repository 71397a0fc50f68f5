package bitquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/solana"
)

const testMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newTestClient(url string, opts ...ClientOption) *Client {
	base := []ClientOption{
		WithEndpoint(url),
		WithRateLimit(1000, 10),
		WithClock(func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }),
	}
	return NewClient("secret", append(base, opts...)...)
}

func TestClient_FetchTrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}

		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.Contains(req.Query, "DEXTradeByTokens") {
			t.Errorf("query does not select DEXTradeByTokens")
		}
		if req.Variables["token"] != testMint {
			t.Errorf("expected token variable %s, got %v", testMint, req.Variables["token"])
		}
		if req.Variables["quote"] != solana.WrappedSOLMint {
			t.Errorf("expected WSOL quote, got %v", req.Variables["quote"])
		}
		if req.Variables["since"] != "2023-05-15T00:00:00Z" {
			t.Errorf("unexpected since: %v", req.Variables["since"])
		}
		if req.Variables["till"] != nil {
			t.Errorf("first page should be unbounded above, got till %v", req.Variables["till"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"Solana":{"DEXTradeByTokens":[
			{"Block":{"Time":"2024-03-09T12:00:00Z"},"Trade":{"Price":0.0000231,"Amount":"150000.5"}},
			{"Block":{"Time":"2024-03-08T09:30:00Z"},"Trade":{"Price":0.0000198,"Amount":"98000"}}
		]}}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	hist, err := client.FetchTrades(context.Background(), testMint)
	if err != nil {
		t.Fatalf("FetchTrades: %v", err)
	}
	if hist.Truncated {
		t.Error("a short page should not be truncated")
	}
	trades := hist.Trades
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	first := trades[0]
	if !first.Time.Equal(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected time %v", first.Time)
	}
	if first.Price.String() != "0.0000231" {
		t.Errorf("expected price 0.0000231, got %s", first.Price)
	}
	if first.Volume.String() != "150000.5" {
		t.Errorf("expected volume 150000.5, got %s", first.Volume)
	}
}

func TestClient_FetchTrades_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"Solana":{"DEXTradeByTokens":[]}}}`))
	}))
	defer server.Close()

	hist, err := newTestClient(server.URL).FetchTrades(context.Background(), testMint)
	if err != nil {
		t.Fatalf("FetchTrades: %v", err)
	}
	if len(hist.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(hist.Trades))
	}
}

func TestClient_FetchTrades_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		header  map[string]string
		wantMsg string
	}{
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			header:  map[string]string{"Retry-After": "30"},
			wantMsg: `retry after "30"`,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    "bad gateway",
			wantMsg: "unexpected status 502",
		},
		{
			name:    "graphql error",
			status:  http.StatusOK,
			body:    `{"data":null,"errors":[{"message":"points limit exceeded"}]}`,
			wantMsg: "points limit exceeded",
		},
		{
			name:    "malformed body",
			status:  http.StatusOK,
			body:    `{"data":`,
			wantMsg: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).FetchTrades(context.Background(), testMint)
			if !errors.Is(err, domain.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected %q in error, got %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestClient_FetchTrades_NoInternalRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchTrades(context.Background(), testMint)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls.Load())
	}
}

func TestClient_FetchTrades_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).FetchTrades(context.Background(), testMint)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestClient_FetchTrades_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).FetchTrades(ctx, testMint)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error to be preserved, got %v", err)
	}
	if !errors.Is(err, domain.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestClient_FullArchive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Variables["since"] != nil {
			t.Errorf("expected nil since for full archive, got %v", req.Variables["since"])
		}
		w.Write([]byte(`{"data":{"Solana":{"DEXTradeByTokens":[]}}}`))
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL, WithHistoryDays(0)).FetchTrades(context.Background(), testMint); err != nil {
		t.Fatalf("FetchTrades: %v", err)
	}
}

// archiveServer serves trades the way the upstream does: filtered by the
// since/till window, newest first, at most limit rows per response.
func archiveServer(t *testing.T, archive []Trade, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	sorted := append([]Trade(nil), archive...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.After(sorted[j].Time) })

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		limit := int(req.Variables["limit"].(float64))
		bound := func(key string) (time.Time, bool) {
			v, ok := req.Variables[key].(string)
			if !ok {
				return time.Time{}, false
			}
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				t.Errorf("parse %s: %v", key, err)
			}
			return ts, true
		}
		since, hasSince := bound("since")
		till, hasTill := bound("till")

		var b strings.Builder
		b.WriteString(`{"data":{"Solana":{"DEXTradeByTokens":[`)
		n := 0
		for _, tr := range sorted {
			if n == limit {
				break
			}
			if hasSince && tr.Time.Before(since) {
				continue
			}
			if hasTill && tr.Time.After(till) {
				continue
			}
			if n > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, `{"Block":{"Time":%q},"Trade":{"Price":%q,"Amount":%q}}`,
				tr.Time.Format(time.RFC3339Nano), tr.Price.String(), tr.Volume.String())
			n++
		}
		b.WriteString(`]}}}`)
		w.Write([]byte(b.String()))
	}))
}

// busyArchive returns perDay trades on each of days consecutive days
// ending 2024-03-09, spread evenly over each day.
func busyArchive(days, perDay int) []Trade {
	start := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))
	step := 24 * time.Hour / time.Duration(perDay)
	out := make([]Trade, 0, days*perDay)
	for d := 0; d < days; d++ {
		for i := 0; i < perDay; i++ {
			out = append(out, Trade{
				Time:   start.AddDate(0, 0, d).Add(time.Duration(i) * step),
				Price:  decimal.NewFromInt(int64(d + 1)),
				Volume: decimal.NewFromInt(1),
			})
		}
	}
	return out
}

func TestClient_FetchTrades_PagesThroughBusyHistory(t *testing.T) {
	var calls atomic.Int32
	archive := busyArchive(10, 600)
	server := archiveServer(t, archive, &calls)
	defer server.Close()

	hist, err := newTestClient(server.URL, WithPageSize(1000)).FetchTrades(context.Background(), testMint)
	if err != nil {
		t.Fatalf("FetchTrades: %v", err)
	}
	if hist.Truncated {
		t.Error("history reaching the start of the archive should not be truncated")
	}
	if len(hist.Trades) != len(archive) {
		t.Fatalf("expected %d trades, got %d", len(archive), len(hist.Trades))
	}
	if calls.Load() < 6 {
		t.Errorf("expected at least 6 pages, got %d", calls.Load())
	}

	seen := make(map[time.Time]bool, len(hist.Trades))
	for i, tr := range hist.Trades {
		if seen[tr.Time] {
			t.Fatalf("trade at %v returned twice", tr.Time)
		}
		seen[tr.Time] = true
		if i > 0 && tr.Time.After(hist.Trades[i-1].Time) {
			t.Fatalf("trades not newest first at %d", i)
		}
	}
}

func TestClient_FetchTrades_SharedTimestampAcrossPages(t *testing.T) {
	var calls atomic.Int32
	at := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	archive := []Trade{
		{Time: at.Add(2 * time.Hour), Price: decimal.NewFromInt(1), Volume: decimal.NewFromInt(1)},
		{Time: at.Add(time.Hour), Price: decimal.NewFromInt(1), Volume: decimal.NewFromInt(1)},
		{Time: at, Price: decimal.NewFromInt(2), Volume: decimal.NewFromInt(1)},
		{Time: at, Price: decimal.NewFromInt(3), Volume: decimal.NewFromInt(1)},
		{Time: at.Add(-time.Hour), Price: decimal.NewFromInt(1), Volume: decimal.NewFromInt(1)},
	}
	server := archiveServer(t, archive, &calls)
	defer server.Close()

	hist, err := newTestClient(server.URL, WithPageSize(3)).FetchTrades(context.Background(), testMint)
	if err != nil {
		t.Fatalf("FetchTrades: %v", err)
	}
	if len(hist.Trades) != len(archive) {
		t.Fatalf("expected %d trades, got %d", len(archive), len(hist.Trades))
	}
}

func TestClient_FetchTrades_PageCapTruncates(t *testing.T) {
	var calls atomic.Int32
	server := archiveServer(t, busyArchive(10, 600), &calls)
	defer server.Close()

	hist, err := newTestClient(server.URL, WithPageSize(1000), WithMaxPages(3)).
		FetchTrades(context.Background(), testMint)
	if err != nil {
		t.Fatalf("FetchTrades: %v", err)
	}
	if !hist.Truncated {
		t.Error("expected truncated history when the page cap is hit")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 pages, got %d", calls.Load())
	}
	if len(hist.Trades) == 0 || len(hist.Trades) > 3000 {
		t.Errorf("unexpected trade count %d", len(hist.Trades))
	}
}

func TestClient_FetchTrades_ErrorOnLaterPage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":{"Solana":{"DEXTradeByTokens":[
			{"Block":{"Time":"2024-03-09T12:00:00Z"},"Trade":{"Price":1,"Amount":"1"}},
			{"Block":{"Time":"2024-03-08T12:00:00Z"},"Trade":{"Price":1,"Amount":"1"}}
		]}}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithPageSize(2)).FetchTrades(context.Background(), testMint)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if !strings.Contains(err.Error(), "page 2") {
		t.Errorf("expected failing page in error, got %q", err.Error())
	}
}
