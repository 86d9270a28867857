package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fortuna/moneta/internal/game"
	"github.com/fortuna/moneta/internal/pricing"
	"github.com/sirupsen/logrus"
)

const (
	// ClobURL serves market price history
	ClobURL = "https://clob.polymarket.com"

	// DefaultInterval matches the 6H chart window
	DefaultInterval = "6h"

	// DefaultFidelity is the sample spacing in minutes
	DefaultFidelity = 10
)

// HistoryCache stores raw price-history responses between runs
type HistoryCache interface {
	GetPriceHistory(ctx context.Context, token, interval string, fidelity int) ([]byte, bool, error)
	SetPriceHistory(ctx context.Context, token, interval string, fidelity int, body []byte) error
}

// HistoryClient fetches a market's price series from the CLOB API
type HistoryClient struct {
	baseURL    string
	interval   string
	fidelity   int
	httpClient *http.Client
	cache      HistoryCache
	logger     *logrus.Logger
}

// NewHistoryClient creates a client. cache may be nil.
func NewHistoryClient(baseURL string, timeout time.Duration, cache HistoryCache, logger *logrus.Logger) *HistoryClient {
	if baseURL == "" {
		baseURL = ClobURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HistoryClient{
		baseURL:    baseURL,
		interval:   DefaultInterval,
		fidelity:   DefaultFidelity,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		logger:     logger,
	}
}

type historyResponse struct {
	History []struct {
		T int64   `json:"t"`
		P float64 `json:"p"`
	} `json:"history"`
}

// FetchHistory returns the samples for token, oldest first as served.
// An empty series is reported as ErrPriceHistoryUnavailable.
func (c *HistoryClient) FetchHistory(ctx context.Context, token string) ([]pricing.Sample, error) {
	body, err := c.fetch(ctx, token)
	if err != nil {
		return nil, err
	}

	var resp historyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", game.ErrPriceHistoryUnavailable, err)
	}
	if len(resp.History) == 0 {
		return nil, fmt.Errorf("%w: empty history for market %s", game.ErrPriceHistoryUnavailable, token)
	}

	samples := make([]pricing.Sample, 0, len(resp.History))
	for _, point := range resp.History {
		samples = append(samples, pricing.Sample{
			Time:  time.Unix(point.T, 0),
			Price: point.P,
		})
	}
	return samples, nil
}

func (c *HistoryClient) fetch(ctx context.Context, token string) ([]byte, error) {
	if c.cache != nil {
		body, ok, err := c.cache.GetPriceHistory(ctx, token, c.interval, c.fidelity)
		if err != nil {
			c.logger.WithError(err).Warn("⚠️  Price history cache read failed")
		} else if ok {
			return body, nil
		}
	}

	query := url.Values{}
	query.Set("market", token)
	query.Set("interval", c.interval)
	query.Set("fidelity", strconv.Itoa(c.fidelity))
	endpoint := fmt.Sprintf("%s/prices-history?%s", c.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", game.ErrPriceHistoryUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", game.ErrPriceHistoryUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", game.ErrPriceHistoryUnavailable, resp.StatusCode)
	}

	if c.cache != nil {
		if err := c.cache.SetPriceHistory(ctx, token, c.interval, c.fidelity, body); err != nil {
			c.logger.WithError(err).Warn("⚠️  Price history cache write failed")
		}
	}
	return body, nil
}
