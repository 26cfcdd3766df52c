// Package coingecko resolves token identifiers to USD unit prices via
// the CoinGecko simple-price API, rate limited and retried.
package coingecko

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/phoenix-network/phoenix-pipeline/ratelimit"
	"github.com/phoenix-network/phoenix-pipeline/retry"
	"github.com/phoenix-network/phoenix-pipeline/transform"
)

type Client struct {
	http     *http.Client
	limiter  *ratelimit.Limiter
	retry    *retry.Policy
	tokens   *transform.TokenTable
	runCache *memoryCache
	shared   PriceCache
	logger   *slog.Logger
	opts     *ClientOpts

	calls int
}

type ClientOpts struct {
	APIURL            string
	APIKey            string
	Timeout           time.Duration
	MaxRequestsPerMin int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	Tokens            *transform.TokenTable
	// SharedCache is an optional cross-run cache (e.g. Redis); the
	// per-run in-memory cache is always present.
	SharedCache PriceCache
	Logger      *slog.Logger
}

func NewClient(opts ClientOpts) (*Client, error) {
	if opts.APIURL == "" {
		return nil, fmt.Errorf("coingecko api url is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRequestsPerMin <= 0 {
		opts.MaxRequestsPerMin = 10
	}
	if opts.Tokens == nil {
		opts.Tokens = transform.DefaultTokenTable()
	}

	opts.APIURL = strings.TrimRight(opts.APIURL, "/")

	c := &Client{
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  ratelimit.NewLimiter(opts.MaxRequestsPerMin, time.Minute),
		retry:    retry.NewPolicy(opts.MaxRetries, opts.RetryBaseDelay, opts.RetryMaxDelay, opts.Logger),
		tokens:   opts.Tokens,
		runCache: newMemoryCache(),
		shared:   opts.SharedCache,
		logger:   opts.Logger,
		opts:     &opts,
	}

	c.logger.Info("coingecko client initialized", "rateLimit", opts.MaxRequestsPerMin)
	return c, nil
}

// Close releases the HTTP client and logs usage statistics for the
// run. Callers are expected to defer it next to NewClient.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
	stats := c.limiter.GetStats()
	c.logger.Info("coingecko client closed",
		"cachedPrices", c.runCache.len(),
		"apiCalls", c.calls,
		"requestsInWindow", stats.RequestsInWindow,
		"maxRequests", stats.MaxRequests)
}

// Calls reports the number of oracle HTTP requests issued so far.
func (c *Client) Calls() int {
	return c.calls
}

// FetchPrices resolves USD unit prices for the given token
// identifiers (addresses or symbols). Resolution order per token:
// static table to feed id, then caches, then the oracle. Identifiers
// that remain unresolved are simply absent from the result; that is
// not an error. A transport failure that survives the retry policy is
// returned along with whatever prices were resolved before it.
func (c *Client) FetchPrices(ctx context.Context, identifiers []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(identifiers))
	toFetch := make(map[string][]string) // feed id -> identifiers needing it

	for _, ident := range identifiers {
		feedID := c.tokens.FeedID(strings.ToLower(strings.TrimSpace(ident)))
		if feedID == "" {
			continue
		}

		if price, ok := c.runCache.Get(ctx, feedID); ok {
			result[ident] = price
			continue
		}
		if c.shared != nil {
			if price, ok := c.shared.Get(ctx, feedID); ok {
				c.runCache.Set(ctx, feedID, price)
				result[ident] = price
				continue
			}
		}

		toFetch[feedID] = append(toFetch[feedID], ident)
	}

	if len(toFetch) == 0 {
		return result, nil
	}

	feedIDs := make([]string, 0, len(toFetch))
	for id := range toFetch {
		feedIDs = append(feedIDs, id)
	}
	sort.Strings(feedIDs)

	c.logger.Info("fetching prices from coingecko", "tokens", len(feedIDs))

	priceData, err := c.simplePrice(ctx, feedIDs)
	if err != nil {
		c.logger.Error("failed to fetch prices from coingecko", "error", err)
		return result, err
	}

	for feedID, idents := range toFetch {
		entry, ok := priceData[feedID]
		if !ok {
			c.logger.Warn("no price data for token", "feedID", feedID)
			continue
		}
		usd, ok := entry["usd"]
		if !ok {
			c.logger.Warn("price entry missing usd quote", "feedID", feedID)
			continue
		}

		c.runCache.Set(ctx, feedID, usd)
		if c.shared != nil {
			c.shared.Set(ctx, feedID, usd)
		}
		for _, ident := range idents {
			result[ident] = usd
		}
	}

	c.logger.Info("price resolution complete", "resolved", len(result), "requested", len(identifiers))
	return result, nil
}

func (c *Client) simplePrice(ctx context.Context, feedIDs []string) (map[string]map[string]decimal.Decimal, error) {
	var prices map[string]map[string]decimal.Decimal

	err := c.retry.Do(ctx, "coingecko simple/price", func(ctx context.Context) error {
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		params := url.Values{}
		params.Set("ids", strings.Join(feedIDs, ","))
		params.Set("vs_currencies", "usd")

		endpoint := c.opts.APIURL + "/simple/price?" + params.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.opts.APIKey != "" {
			req.Header.Set("x-cg-pro-api-key", c.opts.APIKey)
		}

		c.calls++
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return &retry.StatusError{
				StatusCode: resp.StatusCode,
				URL:        c.opts.APIURL + "/simple/price",
				Body:       string(body),
			}
		}

		if err := json.Unmarshal(body, &prices); err != nil {
			return fmt.Errorf("failed to parse price response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return prices, nil
}
