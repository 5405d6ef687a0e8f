package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const gasStationTimeout = 5 * time.Second

var gweiInWei = big.NewFloat(1e9)

// GasStationClient fetches a gas quote from an HTTP feed that answers
// {"data":{"fast":<gwei>}}.
type GasStationClient struct {
	url    string
	client *http.Client
}

func NewGasStationClient(url string) *GasStationClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.HTTPClient.Timeout = gasStationTimeout
	retryClient.Logger = nil
	return &GasStationClient{url: url, client: retryClient.StandardClient()}
}

// newGasStationClientWithHTTP uses the given client as is, without retries.
func newGasStationClientWithHTTP(url string, client *http.Client) *GasStationClient {
	return &GasStationClient{url: url, client: client}
}

func (s *GasStationClient) URL() string { return s.url }

type gasStationResponse struct {
	Data struct {
		Fast json.Number `json:"fast"`
	} `json:"data"`
}

// GasPrice returns the feed's "fast" quote converted from gwei to wei.
func (s *GasStationClient) GasPrice(ctx context.Context) (*big.Int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gas station request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("gas station returned status %d", resp.StatusCode)
	}

	var body gasStationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode gas station response: %w", err)
	}
	if body.Data.Fast == "" {
		return nil, fmt.Errorf("gas station response has no data.fast quote")
	}
	gwei, _, err := big.ParseFloat(body.Data.Fast.String(), 10, 256, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("parse gas station quote %q: %w", body.Data.Fast, err)
	}
	wei, _ := new(big.Float).Mul(gwei, gweiInWei).Int(nil)
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("gas station quote %s gwei is below 1 wei", body.Data.Fast)
	}
	return wei, nil
}
