package markets

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultTokens is the watchlist used when no tokens file is configured.
var DefaultTokens = []string{"ETH", "BTC", "SOL", "AVAX", "ARB", "MATIC", "LINK", "UNI"}

// fallbackPrices are the static prices substituted when the aggregator
// lookup for a token fails. Unknown tokens fall back to zero.
var fallbackPrices = map[string]float64{
	"ETH":   4000,
	"BTC":   65000,
	"SOL":   200,
	"AVAX":  30,
	"ARB":   1.2,
	"MATIC": 0.8,
	"LINK":  15,
	"UNI":   8,
}

// fallbackVolume is the default 24h volume for fallback entries.
const fallbackVolume = 1000000

// Native token entry, always first in the markets response. The exchange's
// own token is not listed on the aggregator, so its figures are pinned.
const (
	nativeCoin      = "HYPE"
	nativePrice     = 56.194
	nativeVolume24h = 141415767.71
	nativeSource    = "hyperliquid"
)

// TokenConfig represents the YAML watchlist structure
type TokenConfig struct {
	Tokens []string `yaml:"tokens"`
}

// LoadTokensFromYAML loads the token watchlist from a YAML file
func LoadTokensFromYAML(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens file: %w", err)
	}

	var config TokenConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse tokens YAML: %w", err)
	}

	if len(config.Tokens) == 0 {
		return nil, fmt.Errorf("no tokens found in config file")
	}

	return config.Tokens, nil
}

// LoadTokensWithFallback tries to load from YAML, falls back to defaults
func LoadTokensWithFallback(filePath string) []string {
	tokens, err := LoadTokensFromYAML(filePath)
	if err != nil {
		return DefaultTokens
	}
	return tokens
}
