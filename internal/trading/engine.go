package trading

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"invertrack-go/internal/chart"
	"invertrack-go/internal/market"
	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Update is one refresh result published to the UI adapter: the latest
// price plus the aggregated bars and axis window for the selected view.
type Update struct {
	Symbol string
	View   chart.ViewMode
	Price  decimal.Decimal
	Bars   []chart.OHLCBar
	Window chart.AxisWindow
}

// HistorySource is the slice of the market service the engine needs.
type HistorySource interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	HistoricalSeries(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error)
}

// Engine drives periodic chart and price refreshes for one user session.
// Ticks that arrive while a refresh is still in flight are skipped rather
// than queued, and results computed for a stale selection are discarded
// instead of published.
type Engine struct {
	logger   *zap.Logger
	market   HistorySource
	sampler  *market.Sampler
	interval time.Duration
	publish  func(Update)

	inFlight atomic.Bool
	token    atomic.Uint64

	mu     sync.Mutex
	symbol string
	view   chart.ViewMode
	policy *chart.WindowPolicy
	window chart.AxisWindow

	historyYears int
}

// NewEngine creates a refresh engine. publish is invoked with each
// completed refresh; it runs on the engine's goroutine.
func NewEngine(logger *zap.Logger, source HistorySource, sampler *market.Sampler, interval time.Duration, publish func(Update)) *Engine {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Engine{
		logger:       logger.Named("refresh"),
		market:       source,
		sampler:      sampler,
		interval:     interval,
		publish:      publish,
		policy:       chart.NewWindowPolicy(),
		view:         chart.ViewLive,
		historyYears: 3,
	}
}

// Select switches the active symbol/view. The selection token is bumped so
// any refresh still in flight for the previous selection is discarded, and
// the window policy re-derives its frozen X range on the next refresh.
func (e *Engine) Select(symbol string, view chart.ViewMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if symbol == e.symbol && view == e.view {
		return
	}
	e.symbol = symbol
	e.view = view
	e.window = chart.AxisWindow{}
	e.policy.Activate()
	e.token.Add(1)
}

// Run starts the refresh loop and blocks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Starting refresh loop", zap.Duration("interval", e.interval))

	// First refresh happens immediately so a fresh selection is not blank
	// for a whole tick.
	if e.inFlight.CompareAndSwap(false, true) {
		e.refresh(ctx)
		e.inFlight.Store(false)
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping refresh loop")
			return
		case <-ticker.C:
			if !e.inFlight.CompareAndSwap(false, true) {
				// Previous refresh still running; coalesce.
				continue
			}
			e.refresh(ctx)
			e.inFlight.Store(false)
		}
	}
}

// refresh computes one update for the current selection and publishes it
// unless the selection changed while it was being computed.
func (e *Engine) refresh(ctx context.Context) {
	e.mu.Lock()
	symbol, view := e.symbol, e.view
	window := e.window
	e.mu.Unlock()
	token := e.token.Load()

	if symbol == "" {
		return
	}

	price, err := e.market.CurrentPrice(ctx, symbol)
	if err != nil {
		e.logger.Warn("Refresh price lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	// Live view advances the intraday series on every tick.
	if view == chart.ViewLive {
		e.sampler.Seed(symbol, price, time.Now())
		e.sampler.Append(models.PricePoint{
			Timestamp: time.Now(),
			Symbol:    symbol,
			Close:     price,
			Open:      price,
			High:      price,
			Low:       price,
		})
	}

	points, err := e.seriesFor(ctx, symbol, view)
	if err != nil {
		e.logger.Warn("Refresh series load failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	bars := chart.Aggregate(points, chart.IntervalFor(view))
	next := e.policy.Compute(points, view, window, chart.WindowOptions{})

	// Discard if the user switched symbol or view while we were computing.
	if e.token.Load() != token {
		e.logger.Debug("Discarding stale refresh", zap.String("symbol", symbol))
		return
	}

	e.mu.Lock()
	e.window = next
	e.mu.Unlock()

	if e.publish != nil {
		e.publish(Update{Symbol: symbol, View: view, Price: price, Bars: bars, Window: next})
	}
}

// seriesFor selects the source series for a view: the session's intraday
// samples for the live view, the generated daily history otherwise.
func (e *Engine) seriesFor(ctx context.Context, symbol string, view chart.ViewMode) ([]models.PricePoint, error) {
	if view == chart.ViewLive {
		if points := e.sampler.Series(symbol); len(points) > 0 {
			return points, nil
		}
	}
	to := time.Now()
	from := to.AddDate(-e.historyYears, 0, 0)
	return e.market.HistoricalSeries(ctx, symbol, from, to)
}
