package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"invertrack-go/internal/chart"
	"invertrack-go/internal/market"
	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeHistory serves a fixed price and daily series without generation.
type fakeHistory struct {
	price  decimal.Decimal
	series []models.PricePoint
}

func (f *fakeHistory) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, nil
}

func (f *fakeHistory) HistoricalSeries(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	return f.series, nil
}

func TestEngine_PublishesUpdatesForSelection(t *testing.T) {
	source := &fakeHistory{price: decimal.NewFromInt(100)}

	var mu sync.Mutex
	var updates []Update
	publish := func(u Update) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}

	engine := NewEngine(zap.NewNop(), source, market.NewSampler(), 10*time.Millisecond, publish)
	engine.Select("AAPL", chart.ViewLive)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	engine.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, updates)
	for _, u := range updates {
		assert.Equal(t, "AAPL", u.Symbol)
		assert.Equal(t, chart.ViewLive, u.View)
		assert.True(t, u.Price.Equal(decimal.NewFromInt(100)))
		assert.NotEmpty(t, u.Bars)
	}
	// Live window always keys off the latest point.
	lastUpdate := updates[len(updates)-1]
	assert.True(t, lastUpdate.Window.XMax.After(lastUpdate.Window.XMin))
}

func TestEngine_NoSelectionIsQuiet(t *testing.T) {
	source := &fakeHistory{price: decimal.NewFromInt(100)}
	published := false
	engine := NewEngine(zap.NewNop(), source, market.NewSampler(), 10*time.Millisecond, func(Update) { published = true })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	engine.Run(ctx)

	assert.False(t, published)
}

func TestEngine_SelectSameSelectionKeepsWindow(t *testing.T) {
	engine := NewEngine(zap.NewNop(), &fakeHistory{}, market.NewSampler(), time.Second, nil)
	engine.Select("AAPL", chart.ViewMonths)
	before := engine.token.Load()

	// Re-selecting the same symbol/view must not bump the token or reset
	// the established window.
	engine.Select("AAPL", chart.ViewMonths)
	assert.Equal(t, before, engine.token.Load())

	engine.Select("TSLA", chart.ViewMonths)
	assert.Equal(t, before+1, engine.token.Load())
}
