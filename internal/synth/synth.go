package synth

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"hyperview-gateway/internal/metrics"
	"hyperview-gateway/internal/models"
)

// DefaultVolatility is the perturbation bound as a fraction of the anchor.
const DefaultVolatility = 0.02

// Generator produces plausible OHLCV series anchored to a real reference
// price. It augments real data when no historical-candle API is available;
// it is never a substitute for fetching a genuine anchor first.
type Generator struct {
	volatility float64

	now  func() time.Time
	rand *rand.Rand
}

func NewGenerator(volatility float64) *Generator {
	if volatility <= 0 {
		volatility = DefaultVolatility
	}
	return &Generator{
		volatility: volatility,
		now:        time.Now,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Generate builds limit candles ending at "now", walking backward in
// interval-sized steps so the last element is the most recent and times are
// strictly increasing. Per step, a cyclical trend plus a bounded random walk
// scaled to volatility*anchor produce the close from the prior close; volume
// scales with the size of the move.
func (g *Generator) Generate(anchor float64, interval string, limit int) ([]models.Candle, error) {
	if anchor <= 0 {
		return nil, fmt.Errorf("anchor price must be positive, got %v", anchor)
	}
	if limit <= 0 {
		return []models.Candle{}, nil
	}

	now := g.now().UnixMilli()
	intervalMs := models.IntervalToDuration(interval).Milliseconds()
	vol := anchor * g.volatility
	// Floor keeps close > 0 even for dust-priced assets; 1e-6 survives the
	// six-decimal rounding below.
	floor := math.Max(anchor*0.0001, 0.000001)

	candles := make([]models.Candle, 0, limit)
	current := anchor

	for i := limit - 1; i >= 0; i-- {
		ts := now - int64(i)*intervalMs

		trend := math.Sin(float64(i)/10) * 0.5
		walk := (g.rand.Float64() - 0.5) * vol
		change := trend + walk

		open := current
		close := open + change
		if close < floor {
			close = floor
		}
		high := math.Max(open, close) + g.rand.Float64()*vol*0.3
		low := math.Min(open, close) - g.rand.Float64()*vol*0.3
		if low < floor {
			low = floor
		}
		volume := (g.rand.Float64()*50 + 10) * (1 + math.Abs(change)/vol)

		candles = append(candles, models.Candle{
			Time:   ts,
			Open:   round(open, 6),
			High:   round(high, 6),
			Low:    round(low, 6),
			Close:  round(close, 6),
			Volume: round(volume, 2),
		})

		current = close
	}

	metrics.SynthesizedSeries.Inc()
	return candles, nil
}

func round(v float64, places int) float64 {
	factor := math.Pow10(places)
	return math.Round(v*factor) / factor
}
