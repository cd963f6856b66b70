package models

import "time"

// Candle represents one OHLCV bar. Times are Unix milliseconds, matching
// what the charting layer consumes directly.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// IntervalToDuration converts an interval string to a duration.
// Unknown intervals fall back to 1h, the dashboard's default timeframe.
func IntervalToDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return 1 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return 1 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 1 * time.Hour
	}
}

// ValidIntervals returns the intervals the dashboard can request.
func ValidIntervals() []string {
	return []string{"1m", "5m", "15m", "1h", "4h", "1d"}
}
