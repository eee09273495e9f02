package market

import (
	"sync"
	"time"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sampler keeps the live intraday series for one user session. Series are
// append-only for the lifetime of the session and kept per symbol, so
// switching symbols and back restores the accumulated points.
type Sampler struct {
	mu     sync.Mutex
	series map[string][]models.PricePoint
}

// NewSampler creates an empty per-session sampler.
func NewSampler() *Sampler {
	return &Sampler{series: make(map[string][]models.PricePoint)}
}

// Seed initializes the intraday series for a symbol with a single flat point
// at the current reference price. It is a no-op if the symbol already has
// points cached for this session.
func (s *Sampler) Seed(symbol string, price decimal.Decimal, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.series[symbol]) > 0 {
		return
	}
	s.series[symbol] = append(s.series[symbol], models.PricePoint{
		Timestamp: now,
		Symbol:    symbol,
		Close:     price,
		Open:      price,
		High:      price,
		Low:       price,
	})
}

// Append adds a point to the symbol's intraday series. Trade executions
// append an exact point at the fill's timestamp and price so chart marks
// align with fills.
func (s *Sampler) Append(point models.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[point.Symbol] = append(s.series[point.Symbol], point)
}

// Series returns a copy of the accumulated intraday points for a symbol.
func (s *Sampler) Series(symbol string) []models.PricePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	points := s.series[symbol]
	out := make([]models.PricePoint, len(points))
	copy(out, points)
	return out
}

// LastPoint returns the most recent intraday point for a symbol, if any.
func (s *Sampler) LastPoint(symbol string) (models.PricePoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	points := s.series[symbol]
	if len(points) == 0 {
		return models.PricePoint{}, false
	}
	return points[len(points)-1], true
}
