package market

import (
	"context"
	"time"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// defaultSymbols is the fixed set of simulated stocks.
var defaultSymbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA", "META", "NVDA", "AMD"}

// Service is the simulated market data source: it owns the per-symbol
// series cache and answers current-price and historical-series queries.
// All data is generated; if a real feed is ever connected, this is the
// component to replace.
type Service struct {
	logger       *zap.Logger
	cache        *SeriesCache
	symbols      []string
	historyYears int
	refOverride  map[string]decimal.Decimal
	now          func() time.Time
}

// NewService creates a market data service with an injected series cache.
func NewService(logger *zap.Logger, cache *SeriesCache, symbols []string, historyYears int) *Service {
	if len(symbols) == 0 {
		symbols = defaultSymbols
	}
	if historyYears <= 0 {
		historyYears = 3
	}
	return &Service{
		logger:       logger.Named("market"),
		cache:        cache,
		symbols:      symbols,
		historyYears: historyYears,
		now:          time.Now,
	}
}

// OverrideReferencePrices replaces the built-in "today" prices for the given
// symbols. Must be called before the first series is generated; already
// cached series are not re-anchored.
func (s *Service) OverrideReferencePrices(prices map[string]float64) {
	if len(prices) == 0 {
		return
	}
	s.refOverride = make(map[string]decimal.Decimal, len(prices))
	for symbol, p := range prices {
		s.refOverride[symbol] = decimal.NewFromFloat(p)
	}
}

func (s *Service) referencePrice(symbol string) (decimal.Decimal, bool) {
	if p, ok := s.refOverride[symbol]; ok {
		return p, true
	}
	return ReferencePrice(symbol)
}

// AvailableSymbols returns the simulated symbol universe.
func (s *Service) AvailableSymbols() []string {
	out := make([]string, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// fullSeries returns the cached complete daily history for a symbol,
// generating it on first access.
func (s *Service) fullSeries(symbol string) []models.PricePoint {
	return s.cache.GetOrGenerate(symbol, func() []models.PricePoint {
		to := s.now().Truncate(24 * time.Hour)
		from := to.AddDate(-s.historyYears, 0, 0)
		ref, _ := s.referencePrice(symbol)
		points := GenerateDailySeries(symbol, from, to, ref)
		s.logger.Debug("Generated daily series",
			zap.String("symbol", symbol),
			zap.Int("points", len(points)))
		return points
	})
}

// HistoricalSeries returns the symbol's daily points within [from, to].
// The underlying series is generated once per symbol and cached.
func (s *Service) HistoricalSeries(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all := s.fullSeries(symbol)
	var out []models.PricePoint
	for _, p := range all {
		if p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// CurrentPrice returns the symbol's live reference price: the last close of
// the cached history.
func (s *Service) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	all := s.fullSeries(symbol)
	if len(all) == 0 {
		return decimal.Zero, nil
	}
	return all[len(all)-1].Close, nil
}
