package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"hyperview-gateway/internal/config"
	"hyperview-gateway/internal/metrics"
	"hyperview-gateway/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client talks to the DEX Screener public API. Outbound calls go through a
// token-bucket limiter so a burst of dashboard requests cannot trip the
// aggregator's own rate limits.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

func NewClient(cfg config.DexScreenerConfig, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// rawPair mirrors the aggregator's wire format. priceUsd arrives as a
// string; the h24 fields are numbers.
type rawPair struct {
	ChainID     string           `json:"chainId"`
	DexID       string           `json:"dexId"`
	PairAddress string           `json:"pairAddress"`
	BaseToken   models.TokenInfo `json:"baseToken"`
	QuoteToken  models.TokenInfo `json:"quoteToken"`
	PriceUsd    string           `json:"priceUsd"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
	URL           string  `json:"url"`
}

type searchResponse struct {
	Pairs []rawPair `json:"pairs"`
}

// Search runs a free-text pair search. A query with no matches returns an
// empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string) ([]models.PairInfo, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/search?q=%s", c.baseURL, url.QueryEscape(query))

	var result searchResponse
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	return normalizeAll(result.Pairs), nil
}

// TokenPairs lists pairs for a token address on one chain.
func (c *Client) TokenPairs(ctx context.Context, chainID, tokenAddress string) ([]models.PairInfo, error) {
	endpoint := fmt.Sprintf("%s/token-pairs/v1/%s/%s",
		c.baseURL, url.PathEscape(chainID), url.PathEscape(tokenAddress))

	var pairs []rawPair
	if err := c.get(ctx, endpoint, &pairs); err != nil {
		return nil, err
	}

	return normalizeAll(pairs), nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dexscreener rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build dexscreener request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("dexscreener").Inc()
		return fmt.Errorf("dexscreener request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("dexscreener").Inc()
		return fmt.Errorf("read dexscreener response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamErrors.WithLabelValues("dexscreener").Inc()
		return fmt.Errorf("dexscreener returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode dexscreener response: %w", err)
	}
	return nil
}

func normalizeAll(pairs []rawPair) []models.PairInfo {
	out := make([]models.PairInfo, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, normalize(p))
	}
	return out
}

// normalize coerces the aggregator's mixed string/number fields into plain
// numbers. Unparseable prices become zero rather than failing the batch.
func normalize(p rawPair) models.PairInfo {
	priceUsd := 0.0
	if d, err := decimal.NewFromString(p.PriceUsd); err == nil {
		priceUsd = d.InexactFloat64()
	}

	return models.PairInfo{
		ChainID:       p.ChainID,
		DexID:         p.DexID,
		PairAddress:   p.PairAddress,
		BaseToken:     p.BaseToken,
		QuoteToken:    p.QuoteToken,
		PriceUsd:      priceUsd,
		PriceChange:   p.PriceChange.H24,
		Volume:        p.Volume.H24,
		Liquidity:     p.Liquidity.Usd,
		MarketCap:     p.MarketCap,
		FDV:           p.FDV,
		PairCreatedAt: p.PairCreatedAt,
		URL:           p.URL,
	}
}
