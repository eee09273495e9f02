package ledger

import (
	"context"
	"sort"
	"sync"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceLookup resolves a symbol's current price. Lookups may block on I/O;
// the valuator runs them concurrently across symbols.
type PriceLookup func(ctx context.Context, symbol string) (decimal.Decimal, error)

// TransactionSource provides a symbol's ordered transaction history.
type TransactionSource interface {
	TransactionsForUserSymbol(username, symbol string) ([]models.Transaction, error)
}

// PositionValue is one valued open position inside a snapshot.
type PositionValue struct {
	Symbol          string          `json:"symbol"`
	Quantity        int             `json:"quantity"`
	AverageOpenCost decimal.Decimal `json:"average_open_cost"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	MarketValue     decimal.Decimal `json:"market_value"`
	UnrealizedGain  decimal.Decimal `json:"unrealized_gain"`
}

// PortfolioSnapshot is the full valuation of one user's account.
type PortfolioSnapshot struct {
	CashBalance decimal.Decimal `json:"cash_balance"`
	Positions   []PositionValue `json:"positions"`
	TotalValue  decimal.Decimal `json:"total_value"`
}

// Valuator combines position accounting with current prices to produce
// portfolio snapshots. It borrows read-only data per call and owns nothing.
type Valuator struct {
	logger *zap.Logger
	txs    TransactionSource
}

// NewValuator creates a Valuator.
func NewValuator(logger *zap.Logger, txs TransactionSource) *Valuator {
	return &Valuator{logger: logger.Named("valuator"), txs: txs}
}

type pricedSymbol struct {
	symbol string
	price  decimal.Decimal
}

// Valuate values every held symbol at its current price. Price lookups run
// concurrently; the snapshot is assembled only after all lookups complete,
// so a partially valued portfolio is never published. A failed lookup
// degrades that one symbol to a zero price rather than failing the pass.
func (v *Valuator) Valuate(ctx context.Context, user *models.User, lookup PriceLookup) (PortfolioSnapshot, error) {
	snapshot := PortfolioSnapshot{CashBalance: user.CashBalance}

	var symbols []string
	for symbol, qty := range user.Holdings {
		if qty > 0 {
			symbols = append(symbols, symbol)
		}
	}

	var wg sync.WaitGroup
	prices := make(chan pricedSymbol, len(symbols))

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			price, err := lookup(ctx, symbol)
			if err != nil {
				v.logger.Warn("Price lookup failed, valuing at zero",
					zap.String("symbol", symbol), zap.Error(err))
				price = decimal.Zero
			}
			prices <- pricedSymbol{symbol: symbol, price: price}
		}(symbol)
	}

	go func() {
		wg.Wait()
		close(prices)
	}()

	priceBySymbol := make(map[string]decimal.Decimal, len(symbols))
	for ps := range prices {
		priceBySymbol[ps.symbol] = ps.price
	}

	sort.Strings(symbols)
	total := user.CashBalance

	for _, symbol := range symbols {
		qty := user.Holdings[symbol]
		price := priceBySymbol[symbol]

		history, err := v.txs.TransactionsForUserSymbol(user.Username, symbol)
		if err != nil {
			return PortfolioSnapshot{}, err
		}
		position := ComputeOpenPosition(history)

		avgCost := position.AverageOpenCost
		if position.OpenQuantity == 0 && qty > 0 {
			// The holdings map disagrees with the replayed history; fall
			// back to the aggregate average rather than reporting zero cost.
			avgCost = FallbackAverageCost(history)
			v.logger.Warn("Holdings disagree with transaction history, using aggregate cost",
				zap.String("user", user.Username),
				zap.String("symbol", symbol),
				zap.Int("holdings", qty))
		}

		qtyDec := decimal.NewFromInt(int64(qty))
		marketValue := price.Mul(qtyDec)
		pv := PositionValue{
			Symbol:          symbol,
			Quantity:        qty,
			AverageOpenCost: avgCost,
			CurrentPrice:    price,
			MarketValue:     marketValue,
			UnrealizedGain:  marketValue.Sub(avgCost.Mul(qtyDec)),
		}
		snapshot.Positions = append(snapshot.Positions, pv)
		total = total.Add(marketValue)
	}

	snapshot.TotalValue = total
	return snapshot, nil
}
