package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hyperview-gateway/internal/config"
	"hyperview-gateway/internal/metrics"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Info endpoint request types understood by the exchange.
const (
	TypeAllMids            = "allMids"
	TypeSpotMeta           = "spotMeta"
	TypeCandleSnapshot     = "candleSnapshot"
	TypeSpotCandleSnapshot = "spotCandleSnapshot"
	TypeL2Book             = "l2Book"
	TypeSpotL2Book         = "spotL2Book"
	TypeClearinghouseState = "clearinghouseState"
)

// ZeroAddress is the default user for position queries.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// SpotPair is one entry of the exchange's spot universe.
type SpotPair struct {
	Name        string `json:"name"`
	Index       int    `json:"index"`
	IsCanonical bool   `json:"isCanonical"`
}

// SpotMeta is the canonical-pair metadata response.
type SpotMeta struct {
	Universe []SpotPair `json:"universe"`
}

// Client talks to the exchange's REST info endpoint. Every call carries a
// bounded timeout so a stalled upstream cannot stall REST-layer throughput.
type Client struct {
	baseURL string
	wsURL   string
	http    *http.Client
	logger  *logrus.Logger
}

func NewClient(cfg config.HyperliquidConfig, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		wsURL:   cfg.WSURL,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

// WSURL returns the realtime feed address relay sessions dial.
func (c *Client) WSURL() string {
	return c.wsURL
}

// Info posts a payload to the exchange info endpoint and returns the raw
// response body. Callers that pass responses through must not modify it.
func (c *Client) Info(ctx context.Context, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal info request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build info request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("hyperliquid").Inc()
		return nil, fmt.Errorf("hyperliquid info request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("hyperliquid").Inc()
		return nil, fmt.Errorf("read hyperliquid response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamErrors.WithLabelValues("hyperliquid").Inc()
		return nil, fmt.Errorf("hyperliquid returned status %d", resp.StatusCode)
	}

	return json.RawMessage(data), nil
}

// AllMids fetches current mid prices for all coins, keyed by coin name.
// Prices arrive as strings on the wire.
func (c *Client) AllMids(ctx context.Context) (map[string]string, error) {
	raw, err := c.Info(ctx, map[string]string{"type": TypeAllMids})
	if err != nil {
		return nil, err
	}

	var mids map[string]string
	if err := json.Unmarshal(raw, &mids); err != nil {
		return nil, fmt.Errorf("decode allMids response: %w", err)
	}
	return mids, nil
}

// MidPrice fetches the current mid price for one coin. It is the anchor for
// synthesized candle series and must come from live exchange data.
func (c *Client) MidPrice(ctx context.Context, coin string) (float64, error) {
	mids, err := c.AllMids(ctx)
	if err != nil {
		return 0, err
	}

	mid, ok := mids[coin]
	if !ok {
		return 0, fmt.Errorf("no mid price for %s", coin)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return 0, fmt.Errorf("parse mid price %q for %s: %w", mid, coin, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("non-positive mid price %s for %s", mid, coin)
	}

	return price.InexactFloat64(), nil
}

// SpotMeta fetches the exchange's spot pair metadata.
func (c *Client) SpotMeta(ctx context.Context) (*SpotMeta, error) {
	raw, err := c.Info(ctx, map[string]string{"type": TypeSpotMeta})
	if err != nil {
		return nil, err
	}

	var meta SpotMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode spotMeta response: %w", err)
	}
	return &meta, nil
}

// ClearinghouseState fetches a user's positions. Empty arguments fall back
// to the defaults the dashboard expects.
func (c *Client) ClearinghouseState(ctx context.Context, reqType, user string) (json.RawMessage, error) {
	if reqType == "" {
		reqType = TypeClearinghouseState
	}
	if user == "" {
		user = ZeroAddress
	}

	return c.Info(ctx, map[string]string{"type": reqType, "user": user})
}

// RequestTimeout exposes the configured bound for callers that need to
// budget their own contexts.
func (c *Client) RequestTimeout() time.Duration {
	return c.http.Timeout
}
