// Package venue is the HTTP boundary to the external venue service: the
// signer that moves released curve reserves and opens the AMM pool. Amounts
// are passed through untouched; custody and transaction building live on the
// other side of this boundary.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"launchpad/internal/graduation"
)

// DefaultTimeout bounds each venue call.
const DefaultTimeout = 30 * time.Second

// Client talks to the venue service over HTTP.
type Client struct {
	endpoint string
	client   *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.client = httpClient }
}

// NewClient creates a venue client for the given base endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface checks.
var (
	_ graduation.ReserveReleaser = (*Client)(nil)
	_ graduation.Venue           = (*Client)(nil)
)

type releaseRequest struct {
	Mint        string `json:"mint"`
	BaseAmount  uint64 `json:"baseAmount"`
	QuoteAmount uint64 `json:"quoteAmount"`
}

// ReleaseReserves instructs the venue service to move the curve's real
// reserves to the funding address.
func (c *Client) ReleaseReserves(ctx context.Context, mint string, baseAmount, quoteAmount uint64) error {
	req := releaseRequest{Mint: mint, BaseAmount: baseAmount, QuoteAmount: quoteAmount}
	return c.post(ctx, "/v1/release", req, nil)
}

type createPoolResponse struct {
	PoolID string `json:"poolId"`
}

// CreatePool asks the venue service to open an AMM pool seeded from the
// released reserves and returns the pool identifier.
func (c *Client) CreatePool(ctx context.Context, mint string, baseAmount, quoteAmount uint64) (string, error) {
	req := releaseRequest{Mint: mint, BaseAmount: baseAmount, QuoteAmount: quoteAmount}

	var resp createPoolResponse
	if err := c.post(ctx, "/v1/pools", req, &resp); err != nil {
		return "", err
	}
	if resp.PoolID == "" {
		return "", fmt.Errorf("venue returned empty pool id for %s", mint)
	}
	return resp.PoolID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("venue %s returned status %d: %s", path, resp.StatusCode, string(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
