// Package bitquery is a client for the BitQuery streaming GraphQL API,
// limited to the Solana DEX trade history needed to build daily bars.
package bitquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/carter293/hasItPumped/internal/domain"
	"github.com/carter293/hasItPumped/internal/solana"
)

// Default configuration values.
const (
	DefaultEndpoint    = "https://streaming.bitquery.io/eap"
	DefaultTimeout     = 30 * time.Second
	DefaultPageSize    = 10000
	DefaultMaxPages    = 50
	DefaultHistoryDays = 300
	DefaultRPS         = 2.0
	DefaultBurst       = 1

	maxResponseBytes = 64 << 20
)

// Trade is one DEX trade of the token against the quote currency.
type Trade struct {
	Time   time.Time
	Price  decimal.Decimal // quote units per token
	Volume decimal.Decimal // token amount
}

// History is the trade history of a mint, newest first.
type History struct {
	Trades []Trade
	// Truncated is set when paging stopped before the start of the
	// window, so the oldest day of Trades may be incomplete.
	Truncated bool
}

// Client queries DEXTradeByTokens over HTTP.
type Client struct {
	endpoint    string
	token       string
	quoteMint   string
	pageSize    int
	maxPages    int
	historyDays int
	client      *http.Client
	limiter     *rate.Limiter
	now         func() time.Time
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithQuoteMint sets the quote currency trades are priced in.
func WithQuoteMint(mint string) ClientOption {
	return func(c *Client) {
		c.quoteMint = mint
	}
}

// WithPageSize sets the number of trades requested per query.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		c.pageSize = n
	}
}

// WithMaxPages caps the number of queries issued per fetch.
func WithMaxPages(n int) ClientOption {
	return func(c *Client) {
		c.maxPages = n
	}
}

// WithHistoryDays limits the query to trades of the last n days.
// n <= 0 requests the full archive.
func WithHistoryDays(n int) ClientOption {
	return func(c *Client) {
		c.historyDays = n
	}
}

// WithRateLimit sets the client-side request rate.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClock sets the time source used for the history window.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new BitQuery client authenticated with a bearer token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:    DefaultEndpoint,
		token:       token,
		quoteMint:   solana.WrappedSOLMint,
		pageSize:    DefaultPageSize,
		maxPages:    DefaultMaxPages,
		historyDays: DefaultHistoryDays,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// graphQLRequest is the POST body of a GraphQL query.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphQLError is one entry of the response "errors" array.
type graphQLError struct {
	Message string `json:"message"`
}

type tradesResponse struct {
	Data struct {
		Solana struct {
			DEXTradeByTokens []struct {
				Block struct {
					Time time.Time `json:"Time"`
				} `json:"Block"`
				Trade struct {
					Price  decimal.Decimal `json:"Price"`
					Amount decimal.Decimal `json:"Amount"`
				} `json:"Trade"`
			} `json:"DEXTradeByTokens"`
		} `json:"Solana"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchTrades returns the trades of mint against the quote currency,
// newest first, paging backwards in time until the history window or
// the archive is exhausted. An unknown mint yields an empty history.
// Transport failures, HTTP 429/5xx and GraphQL errors wrap domain.ErrUpstream.
func (c *Client) FetchTrades(ctx context.Context, mint string) (History, error) {
	var since *time.Time
	if c.historyDays > 0 {
		s := domain.Day(c.now()).AddDate(0, 0, -c.historyDays)
		since = &s
	}

	var (
		out  History
		till *time.Time
	)
	for page := 1; ; page++ {
		trades, err := c.fetchPage(ctx, mint, since, till)
		if err != nil {
			return History{}, fmt.Errorf("page %d: %w", page, err)
		}
		if len(trades) < c.pageSize {
			out.Trades = append(out.Trades, trades...)
			return out, nil
		}

		// The page is full. Trades sharing the oldest timestamp may
		// continue on the next page, so they are left for it: the
		// next query is bounded inclusively at that timestamp.
		oldest := trades[len(trades)-1].Time
		cut := len(trades)
		for cut > 0 && trades[cut-1].Time.Equal(oldest) {
			cut--
		}
		if cut == 0 || page >= c.maxPages {
			out.Trades = append(out.Trades, trades...)
			out.Truncated = true
			return out, nil
		}
		out.Trades = append(out.Trades, trades[:cut]...)
		till = &oldest
	}
}

// fetchPage issues one query for at most pageSize trades in [since, till].
func (c *Client) fetchPage(ctx context.Context, mint string, since, till *time.Time) ([]Trade, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrUpstream, err)
	}

	vars := map[string]any{
		"token": mint,
		"quote": c.quoteMint,
		"limit": c.pageSize,
		"since": nil,
		"till":  nil,
	}
	if since != nil {
		vars["since"] = since.Format(time.RFC3339)
	}
	if till != nil {
		vars["till"] = till.Format(time.RFC3339Nano)
	}

	body, err := json.Marshal(graphQLRequest{Query: tradesQuery, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrUpstream, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: rate limited (429), retry after %q",
			domain.ErrUpstream, resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d: %s",
			domain.ErrUpstream, resp.StatusCode, truncate(string(respBody), 256))
	}

	var out tradesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %w", domain.ErrUpstream, err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("%w: graphql: %s", domain.ErrUpstream, strings.Join(msgs, "; "))
	}

	rows := out.Data.Solana.DEXTradeByTokens
	trades := make([]Trade, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, Trade{
			Time:   r.Block.Time.UTC(),
			Price:  r.Trade.Price,
			Volume: r.Trade.Amount,
		})
	}
	return trades, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
