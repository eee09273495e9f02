package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockTransactionSource is a mock implementation of TransactionSource.
type MockTransactionSource struct {
	mock.Mock
}

func (m *MockTransactionSource) TransactionsForUserSymbol(username, symbol string) ([]models.Transaction, error) {
	args := m.Called(username, symbol)
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func TestValuator_ValuatesAllHeldSymbols(t *testing.T) {
	// Arrange
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	source := new(MockTransactionSource)
	source.On("TransactionsForUserSymbol", "ana", "AAPL").Return([]models.Transaction{
		tx(models.SideBuy, 10, 100, t0),
	}, nil)
	source.On("TransactionsForUserSymbol", "ana", "TSLA").Return([]models.Transaction{
		{Username: "ana", Symbol: "TSLA", Side: models.SideBuy, Quantity: 2,
			UnitPrice: decimal.NewFromInt(400), Timestamp: t0},
	}, nil)

	user := &models.User{
		Username:    "ana",
		CashBalance: decimal.NewFromInt(1000),
		Holdings:    models.Holdings{"AAPL": 10, "TSLA": 2, "MSFT": 0},
	}

	lookup := func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		switch symbol {
		case "AAPL":
			return decimal.NewFromInt(110), nil
		case "TSLA":
			return decimal.NewFromInt(380), nil
		}
		return decimal.Zero, errors.New("unknown symbol")
	}

	// Act
	snapshot, err := NewValuator(zap.NewNop(), source).Valuate(context.Background(), user, lookup)

	// Assert: zero-quantity holdings skipped, positions sorted by symbol.
	assert.NoError(t, err)
	assert.Len(t, snapshot.Positions, 2)
	assert.Equal(t, "AAPL", snapshot.Positions[0].Symbol)
	assert.Equal(t, "TSLA", snapshot.Positions[1].Symbol)

	aapl := snapshot.Positions[0]
	assert.True(t, aapl.MarketValue.Equal(decimal.NewFromInt(1100)))
	assert.True(t, aapl.UnrealizedGain.Equal(decimal.NewFromInt(100)))

	tsla := snapshot.Positions[1]
	assert.True(t, tsla.MarketValue.Equal(decimal.NewFromInt(760)))
	assert.True(t, tsla.UnrealizedGain.Equal(decimal.NewFromInt(-40)))

	// cash + market values
	assert.True(t, snapshot.TotalValue.Equal(decimal.NewFromInt(1000+1100+760)))
	source.AssertExpectations(t)
}

func TestValuator_LookupFailureDegradesToZero(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	source := new(MockTransactionSource)
	source.On("TransactionsForUserSymbol", "ana", "AAPL").Return([]models.Transaction{
		tx(models.SideBuy, 5, 100, t0),
	}, nil)

	user := &models.User{
		Username:    "ana",
		CashBalance: decimal.NewFromInt(500),
		Holdings:    models.Holdings{"AAPL": 5},
	}

	lookup := func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("feed down")
	}

	snapshot, err := NewValuator(zap.NewNop(), source).Valuate(context.Background(), user, lookup)

	// One symbol failing must not fail the pass.
	assert.NoError(t, err)
	assert.Len(t, snapshot.Positions, 1)
	assert.True(t, snapshot.Positions[0].MarketValue.IsZero())
	assert.True(t, snapshot.TotalValue.Equal(decimal.NewFromInt(500)))
}

func TestValuator_HoldingsDisagreementUsesAggregateCost(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	// History fully closes the position, but the holdings map still says 5.
	source := new(MockTransactionSource)
	source.On("TransactionsForUserSymbol", "ana", "AAPL").Return([]models.Transaction{
		tx(models.SideBuy, 10, 20, t0),
		tx(models.SideSell, 10, 25, t0.Add(time.Minute)),
	}, nil)

	user := &models.User{
		Username:    "ana",
		CashBalance: decimal.Zero,
		Holdings:    models.Holdings{"AAPL": 5},
	}

	lookup := func(ctx context.Context, symbol string) (decimal.Decimal, error) {
		return decimal.NewFromInt(30), nil
	}

	snapshot, err := NewValuator(zap.NewNop(), source).Valuate(context.Background(), user, lookup)

	assert.NoError(t, err)
	assert.Len(t, snapshot.Positions, 1)
	// Aggregate fallback: all buys at 20.
	assert.True(t, snapshot.Positions[0].AverageOpenCost.Equal(decimal.NewFromInt(20)))
	assert.True(t, snapshot.Positions[0].UnrealizedGain.Equal(decimal.NewFromInt(50))) // (30-20)*5
}
