package cache

import (
	"context"
	"testing"
	"time"

	"hyperview-gateway/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClientIsFailOpen(t *testing.T) {
	c := NewMarketCache(nil, logrus.New())
	ctx := context.Background()

	summary, err := c.GetSummary(ctx, "ETH")
	require.NoError(t, err)
	assert.Nil(t, summary, "a disabled cache behaves as a permanent miss")

	err = c.SetSummary(ctx, "ETH", &models.MarketSummary{Coin: "ETH"}, 30*time.Second)
	assert.NoError(t, err, "writes to a disabled cache are dropped silently")
}
