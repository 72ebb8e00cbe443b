package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Source fetches the current USD price of the quote currency from one
// external provider.
type Source interface {
	// Name returns the provider label recorded on snapshots.
	Name() string

	// Fetch returns the current USD/SOL rate.
	Fetch(ctx context.Context) (float64, error)
}

const (
	defaultCoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"
	defaultJupiterURL   = "https://lite-api.jup.ag/price/v2?ids=So11111111111111111111111111111111111111112"

	fetchTimeout = 10 * time.Second
)

// CoinGeckoSource fetches the SOL/USD rate from the CoinGecko simple price API.
type CoinGeckoSource struct {
	url    string
	client *http.Client
}

// NewCoinGeckoSource creates a CoinGecko source. An empty url uses the
// public API endpoint.
func NewCoinGeckoSource(url string) *CoinGeckoSource {
	if url == "" {
		url = defaultCoinGeckoURL
	}
	return &CoinGeckoSource{
		url:    url,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

func (s *CoinGeckoSource) Fetch(ctx context.Context) (float64, error) {
	var response struct {
		Solana struct {
			USD float64 `json:"usd"`
		} `json:"solana"`
	}

	if err := getJSON(ctx, s.client, s.url, &response); err != nil {
		return 0, err
	}

	if response.Solana.USD <= 0 {
		return 0, fmt.Errorf("coingecko returned non-positive rate %f", response.Solana.USD)
	}

	return response.Solana.USD, nil
}

// JupiterSource fetches the SOL/USD rate from the Jupiter price API, keyed by
// the wrapped SOL mint.
type JupiterSource struct {
	url    string
	client *http.Client
}

// NewJupiterSource creates a Jupiter source. An empty url uses the public
// API endpoint.
func NewJupiterSource(url string) *JupiterSource {
	if url == "" {
		url = defaultJupiterURL
	}
	return &JupiterSource{
		url:    url,
		client: &http.Client{Timeout: fetchTimeout},
	}
}

func (s *JupiterSource) Name() string { return "jupiter" }

func (s *JupiterSource) Fetch(ctx context.Context) (float64, error) {
	var response struct {
		Data map[string]struct {
			Price string `json:"price"`
		} `json:"data"`
	}

	if err := getJSON(ctx, s.client, s.url, &response); err != nil {
		return 0, err
	}

	for _, entry := range response.Data {
		var rate float64
		if _, err := fmt.Sscanf(entry.Price, "%f", &rate); err != nil {
			return 0, fmt.Errorf("parse jupiter price %q: %w", entry.Price, err)
		}
		if rate <= 0 {
			return 0, fmt.Errorf("jupiter returned non-positive rate %f", rate)
		}
		return rate, nil
	}

	return 0, fmt.Errorf("jupiter response contains no price data")
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
