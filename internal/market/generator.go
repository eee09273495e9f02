package market

import (
	"math/rand"
	"time"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
)

// floorPrice is the minimum price a generated point may reach.
var floorPrice = decimal.NewFromInt(10)

// basePrices seeds the random walk for known symbols. Unknown symbols
// start from 100.
var basePrices = map[string]decimal.Decimal{
	"AAPL":  decimal.NewFromInt(150),
	"GOOGL": decimal.NewFromInt(140),
	"MSFT":  decimal.NewFromInt(380),
	"AMZN":  decimal.NewFromInt(180),
	"TSLA":  decimal.NewFromInt(240),
	"META":  decimal.NewFromInt(480),
	"NVDA":  decimal.NewFromInt(875),
	"AMD":   decimal.NewFromInt(190),
}

// referencePrices are the externally supplied "today" prices each generated
// series is anchored to.
var referencePrices = map[string]decimal.Decimal{
	"META":  decimal.NewFromFloat(628.81),
	"GOOGL": decimal.NewFromFloat(173.97),
	"NVDA":  decimal.NewFromFloat(177.00),
	"AMZN":  decimal.NewFromFloat(191.09),
	"AMD":   decimal.NewFromFloat(186.47),
	"AAPL":  decimal.NewFromFloat(278.85),
	"TSLA":  decimal.NewFromFloat(419.47),
}

// ReferencePrice returns the configured "today" price for a symbol, if any.
func ReferencePrice(symbol string) (decimal.Decimal, bool) {
	p, ok := referencePrices[symbol]
	return p, ok
}

// GenerateDailySeries produces one PricePoint per weekday in [from, to],
// following a bounded random walk seeded at 80% of the symbol's base price.
// When refToday is positive the whole series is scaled so the final close
// equals refToday exactly, preserving the walk's relative shape.
// An empty date range yields an empty series, not an error.
func GenerateDailySeries(symbol string, from, to time.Time, refToday decimal.Decimal) []models.PricePoint {
	var points []models.PricePoint

	base, ok := referencePrices[symbol]
	if !ok {
		if base, ok = basePrices[symbol]; !ok {
			base = decimal.NewFromInt(100)
		}
	}

	// Start below the target so the walk has room in both directions.
	price := decimal.Max(floorPrice, base.Mul(decimal.NewFromFloat(0.8)))

	for day := from.Truncate(24 * time.Hour); !day.After(to); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		// Daily variation of roughly -2..+2 price units.
		variation := decimal.NewFromFloat((rand.Float64() - 0.5) * 4)

		open := price
		price = price.Add(variation)
		if price.LessThan(floorPrice) {
			price = floorPrice
		}

		close_ := price.Round(2)
		high := decimal.Max(open, close_).Add(decimal.NewFromFloat(rand.Float64() * 2))
		low := decimal.Min(open, close_).Sub(decimal.NewFromFloat(rand.Float64() * 2))
		if low.LessThan(floorPrice) {
			low = floorPrice
		}

		points = append(points, models.PricePoint{
			Timestamp: day,
			Symbol:    symbol,
			Close:     close_,
			Open:      open.Round(2),
			High:      high.Round(2),
			Low:       low.Round(2),
		})
	}

	if len(points) == 0 {
		return points
	}

	// Anchor the series to the supplied reference price.
	last := points[len(points)-1]
	if refToday.IsPositive() && last.Close.IsPositive() {
		factor := refToday.Div(last.Close)
		for i := range points {
			points[i].Close = points[i].Close.Mul(factor).Round(2)
			points[i].Open = points[i].Open.Mul(factor).Round(2)
			points[i].High = points[i].High.Mul(factor).Round(2)
			points[i].Low = decimal.Max(floorPrice, points[i].Low.Mul(factor)).Round(2)
		}
	}

	return points
}
