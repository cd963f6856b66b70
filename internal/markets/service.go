package markets

import (
	"context"
	"strings"
	"sync"

	"hyperview-gateway/internal/cache"
	"hyperview-gateway/internal/config"
	"hyperview-gateway/internal/dexscreener"
	"hyperview-gateway/internal/hyperliquid"
	"hyperview-gateway/internal/metrics"
	"hyperview-gateway/internal/models"

	"github.com/sirupsen/logrus"
)

// Service aggregates the markets overview from the DEX Screener API and the
// exchange's spot metadata.
type Service struct {
	dex    *dexscreener.Client
	hl     *hyperliquid.Client
	cache  *cache.MarketCache
	cfg    *config.Config
	tokens []string
	logger *logrus.Logger
}

func NewService(
	dex *dexscreener.Client,
	hl *hyperliquid.Client,
	marketCache *cache.MarketCache,
	cfg *config.Config,
	tokens []string,
	logger *logrus.Logger,
) *Service {
	if len(tokens) == 0 {
		tokens = DefaultTokens
	}
	return &Service{
		dex:    dex,
		hl:     hl,
		cache:  marketCache,
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
	}
}

// Markets returns one summary per watched token, native token first, in the
// configured order. Lookups run concurrently; a failed lookup substitutes
// static fallback data for that token only, so the response as a whole
// always succeeds.
func (s *Service) Markets(ctx context.Context) []models.MarketSummary {
	results := make([]models.MarketSummary, len(s.tokens))

	var wg sync.WaitGroup
	for i, token := range s.tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			results[i] = s.tokenSummary(ctx, token)
		}(i, token)
	}
	wg.Wait()

	summaries := make([]models.MarketSummary, 0, len(results)+1)
	summaries = append(summaries, nativeSummary())
	summaries = append(summaries, results...)
	return summaries
}

func (s *Service) tokenSummary(ctx context.Context, token string) models.MarketSummary {
	if cached, err := s.cache.GetSummary(ctx, token); err == nil && cached != nil {
		metrics.RecordCacheAccess("redis", true)
		return *cached
	}
	metrics.RecordCacheAccess("redis", false)

	pairs, err := s.dex.Search(ctx, token)
	if err != nil || len(pairs) == 0 {
		if err != nil {
			s.logger.WithError(err).Warnf("Failed to fetch market data for %s, using fallback", token)
		}
		return fallbackSummary(token)
	}

	// Pick the most liquid pair: highest 24h volume wins.
	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.Volume > best.Volume {
			best = p
		}
	}

	summary := models.MarketSummary{
		Coin:           token,
		PerpSymbol:     token + "-USD",
		SpotSymbol:     token + "/USDC",
		Price:          best.PriceUsd,
		Volume24h:      best.Volume,
		PriceChange24h: best.PriceChange,
		MarketCap:      best.FDV,
		Liquidity:      best.Liquidity,
		SourceID:       best.DexID,
		PairAddress:    best.PairAddress,
	}

	if err := s.cache.SetSummary(ctx, token, &summary, s.cfg.Cache.MarketTTL); err != nil {
		s.logger.WithError(err).Debugf("Failed to cache market summary for %s", token)
	}

	return summary
}

func fallbackSummary(token string) models.MarketSummary {
	return models.MarketSummary{
		Coin:           token,
		PerpSymbol:     token + "-USD",
		SpotSymbol:     token + "/USDC",
		Price:          fallbackPrices[token],
		Volume24h:      fallbackVolume,
		PriceChange24h: 0,
		SourceID:       "fallback",
	}
}

func nativeSummary() models.MarketSummary {
	return models.MarketSummary{
		Coin:           nativeCoin,
		PerpSymbol:     nativeCoin + "-USD",
		SpotSymbol:     nativeCoin + "/USDC",
		Price:          nativePrice,
		Volume24h:      nativeVolume24h,
		PriceChange24h: 0,
		SourceID:       nativeSource,
	}
}

// SpotMarkets returns the names of canonical spot pairs, excluding internal
// alias pairs prefixed with "@". Any upstream failure yields an empty list
// and the error; the endpoint stays fail-open by contract.
func (s *Service) SpotMarkets(ctx context.Context) ([]string, error) {
	meta, err := s.hl.SpotMeta(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to fetch spot markets, returning empty list")
		return []string{}, err
	}

	names := make([]string, 0, len(meta.Universe))
	for _, pair := range meta.Universe {
		if pair.IsCanonical && !strings.HasPrefix(pair.Name, "@") {
			names = append(names, pair.Name)
		}
	}
	return names, nil
}
