// Package stub provides an in-memory chain.Client for testing.
package stub

import (
	"context"
	"time"

	"launchpad/internal/chain"
)

// Client implements chain.Client for testing.
type Client struct {
	// Transactions maps signature to the transaction returned by
	// GetTransaction.
	Transactions map[string]*chain.Transaction

	// SendResult is the signature returned by SendTransaction; SendErr, if
	// set, is returned instead.
	SendResult string
	SendErr    error

	// ConfirmErr, if set, is returned by ConfirmTransaction.
	ConfirmErr error

	// Sent records every payload passed to SendTransaction.
	Sent []string
}

// NewClient creates a new stub client.
func NewClient() *Client {
	return &Client{
		Transactions: make(map[string]*chain.Transaction),
	}
}

var _ chain.Client = (*Client)(nil)

// SendTransaction records the payload and returns the configured signature.
func (c *Client) SendTransaction(_ context.Context, payload string) (string, error) {
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, payload)
	return c.SendResult, nil
}

// ConfirmTransaction returns the configured confirmation result.
func (c *Client) ConfirmTransaction(_ context.Context, _ string, _ time.Duration) error {
	return c.ConfirmErr
}

// GetTransaction retrieves a transaction from the stub store.
// Returns nil for unknown signatures, matching the RPC client.
func (c *Client) GetTransaction(_ context.Context, signature string) (*chain.Transaction, error) {
	return c.Transactions[signature], nil
}
