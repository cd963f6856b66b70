package models

// MarketSummary is one row of the markets overview. Built once per request
// from the best aggregator pair (or fallback data) and never mutated after.
type MarketSummary struct {
	Coin           string  `json:"coin"`
	PerpSymbol     string  `json:"perp"`
	SpotSymbol     string  `json:"spot"`
	Price          float64 `json:"price"`
	Volume24h      float64 `json:"volume24h"`
	PriceChange24h float64 `json:"priceChange24h"`
	MarketCap      float64 `json:"marketCap"`
	Liquidity      float64 `json:"liquidity"`
	SourceID       string  `json:"dexId"`
	PairAddress    string  `json:"pairAddress,omitempty"`
}

// TokenInfo identifies one side of a DEX pair.
type TokenInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// PairInfo is a DEX Screener pair normalized for the dashboard: price,
// volume and liquidity are coerced to numbers regardless of how the
// aggregator encoded them.
type PairInfo struct {
	ChainID       string    `json:"chainId"`
	DexID         string    `json:"dexId"`
	PairAddress   string    `json:"pairAddress"`
	BaseToken     TokenInfo `json:"baseToken"`
	QuoteToken    TokenInfo `json:"quoteToken"`
	PriceUsd      float64   `json:"priceUsd"`
	PriceChange   float64   `json:"priceChange"`
	Volume        float64   `json:"volume"`
	Liquidity     float64   `json:"liquidity"`
	MarketCap     float64   `json:"marketCap"`
	FDV           float64   `json:"fdv,omitempty"`
	PairCreatedAt int64     `json:"pairCreatedAt,omitempty"`
	URL           string    `json:"url,omitempty"`
}
