// Package subgraph fetches DEX swap events from a Graph-protocol
// GraphQL endpoint. Pagination is resolved internally: callers always
// receive one flattened batch.
package subgraph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/phoenix-network/phoenix-pipeline/models"
	"github.com/phoenix-network/phoenix-pipeline/retry"
)

const swapsQuery = `
query RecentSwaps($first: Int!, $skip: Int!, $since: Int!) {
  swaps(
    first: $first
    skip: $skip
    where: { timestamp_gte: $since }
    orderBy: timestamp
    orderDirection: asc
  ) {
    id
    transaction { id }
    timestamp
    blockNumber
    token0 { id symbol }
    token1 { id symbol }
    amount0
    amount1
  }
}`

type Client struct {
	http   *http.Client
	retry  *retry.Policy
	logger *slog.Logger
	opts   *ClientOpts
}

type ClientOpts struct {
	Endpoint       string
	Timeout        time.Duration
	WindowMinutes  int
	BatchSize      int
	MaxResults     int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Logger         *slog.Logger
}

func NewClient(opts ClientOpts) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("subgraph endpoint is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	return &Client{
		http:   &http.Client{Timeout: opts.Timeout},
		retry:  retry.NewPolicy(opts.MaxRetries, opts.RetryBaseDelay, opts.RetryMaxDelay, opts.Logger),
		logger: opts.Logger,
		opts:   &opts,
	}, nil
}

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// GetRecentSwaps fetches all swap events within the configured trailing
// time window, paging through the subgraph until a short page is
// returned. Each page request is retried per the client's retry policy.
func (c *Client) GetRecentSwaps(ctx context.Context) ([]models.RawSwap, error) {
	since := time.Now().UTC().Add(-time.Duration(c.opts.WindowMinutes) * time.Minute).Unix()

	var all []models.RawSwap
	skip := 0

	c.logger.Info("fetching swaps from subgraph",
		"windowMinutes", c.opts.WindowMinutes,
		"batchSize", c.opts.BatchSize)

	for {
		first := c.opts.BatchSize
		if c.opts.MaxResults > 0 {
			remaining := c.opts.MaxResults - len(all)
			if remaining <= 0 {
				c.logger.Info("reached max results limit", "maxResults", c.opts.MaxResults)
				break
			}
			if remaining < first {
				first = remaining
			}
		}

		page, err := c.fetchPage(ctx, first, skip, since)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch swaps at skip=%d: %w", skip, err)
		}

		all = append(all, page...)
		c.logger.Debug("fetched swap page", "pageSize", len(page), "skip", skip, "total", len(all))

		if len(page) < first {
			break
		}
		skip += first
	}

	c.logger.Info("subgraph fetch complete", "swaps", len(all))
	return all, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   *swapsData     `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type swapsData struct {
	Swaps []rawSwapPayload `json:"swaps"`
}

type rawSwapPayload struct {
	ID          string      `json:"id"`
	Transaction *struct {
		ID string `json:"id"`
	} `json:"transaction"`
	Timestamp   string `json:"timestamp"`
	BlockNumber string `json:"blockNumber"`
	Token0      *struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"token0"`
	Token1 *struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"token1"`
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

func (c *Client) fetchPage(ctx context.Context, first, skip int, since int64) ([]models.RawSwap, error) {
	var swaps []rawSwapPayload

	err := c.retry.Do(ctx, "subgraph query", func(ctx context.Context) error {
		body, err := json.Marshal(graphQLRequest{
			Query: swapsQuery,
			Variables: map[string]any{
				"first": first,
				"skip":  skip,
				"since": since,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to marshal query: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return &retry.StatusError{
				StatusCode: resp.StatusCode,
				URL:        c.opts.Endpoint,
				Body:       string(raw),
			}
		}

		var gql graphQLResponse
		if err := json.Unmarshal(raw, &gql); err != nil {
			return fmt.Errorf("failed to parse GraphQL response: %w", err)
		}
		if len(gql.Errors) > 0 {
			msgs := make([]string, len(gql.Errors))
			for i, e := range gql.Errors {
				msgs[i] = e.Message
			}
			return fmt.Errorf("graphql query failed: %v", msgs)
		}
		if gql.Data == nil {
			return fmt.Errorf("graphql response missing data field")
		}

		swaps = gql.Data.Swaps
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]models.RawSwap, 0, len(swaps))
	for _, s := range swaps {
		out = append(out, s.toRawSwap())
	}
	return out, nil
}

func (p rawSwapPayload) toRawSwap() models.RawSwap {
	txHash := p.ID
	if p.Transaction != nil && p.Transaction.ID != "" {
		txHash = p.Transaction.ID
	}

	var token0, token1 string
	if p.Token0 != nil {
		token0 = p.Token0.ID
	}
	if p.Token1 != nil {
		token1 = p.Token1.ID
	}

	return models.RawSwap{
		TxHash:      txHash,
		BlockNumber: p.BlockNumber,
		Timestamp:   p.Timestamp,
		Token0:      token0,
		Token1:      token1,
		Amount0:     p.Amount0,
		Amount1:     p.Amount1,
	}
}
