package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invertrack-go/internal/market"
	"invertrack-go/internal/models"
	"invertrack-go/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarketData is the slice of the market service the executor needs.
type MarketData interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Request describes one buy or sell order against the simulated market.
type Request struct {
	Username string
	Symbol   string
	Side     string // models.SideBuy or models.SideSell
	Quantity int

	// DisplayedPrice is the price string currently shown to the user, used
	// as a fallback when no cached current price is available.
	DisplayedPrice string

	// Sampler, when set, receives an intraday point at the fill's exact
	// price and time so chart marks align with executions.
	Sampler *market.Sampler
}

// Executor validates and applies trades. Applies for the same user are
// serialized: two concurrent trades can never interleave on one account's
// cash and holdings.
type Executor struct {
	logger *zap.Logger
	store  *storage.Store
	market MarketData

	mu    sync.Mutex
	users map[string]*sync.Mutex

	now func() time.Time
}

// NewExecutor creates a trade executor.
func NewExecutor(logger *zap.Logger, store *storage.Store, market MarketData) *Executor {
	return &Executor{
		logger: logger.Named("executor"),
		store:  store,
		market: market,
		users:  make(map[string]*sync.Mutex),
		now:    time.Now,
	}
}

// userLock returns the serialization lock for one username.
func (e *Executor) userLock(username string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.users[username]
	if !ok {
		l = &sync.Mutex{}
		e.users[username] = l
	}
	return l
}

// Execute runs the trade through validation and atomic application.
// Cash adjustment, holdings update, the appended transaction record and the
// intraday sample are committed as one unit; on persistence failure nothing
// is visible to subsequent reads.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.Transaction, error) {
	if err := e.validate(req); err != nil {
		return nil, err
	}

	price, err := e.resolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}

	lock := e.userLock(req.Username)
	lock.Lock()
	defer lock.Unlock()

	user, err := e.store.GetUser(req.Username)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	total := price.Mul(qty).Round(2)

	switch req.Side {
	case models.SideBuy:
		if user.CashBalance.LessThan(total) {
			return nil, ErrInsufficientFunds
		}
		user.CashBalance = user.CashBalance.Sub(total)
		if user.Holdings == nil {
			user.Holdings = models.Holdings{}
		}
		user.Holdings[req.Symbol] += req.Quantity
	case models.SideSell:
		if user.Quantity(req.Symbol) < req.Quantity {
			return nil, ErrInsufficientShares
		}
		user.CashBalance = user.CashBalance.Add(total)
		user.Holdings[req.Symbol] -= req.Quantity
		if user.Holdings[req.Symbol] == 0 {
			delete(user.Holdings, req.Symbol)
		}
	}

	executedAt := e.now()
	tx := &models.Transaction{
		Username:  req.Username,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		UnitPrice: price,
		Total:     total,
		Timestamp: executedAt,
	}

	if err := e.store.ApplyTrade(user, tx); err != nil {
		return nil, fmt.Errorf("trade not committed: %w", err)
	}

	if req.Sampler != nil {
		req.Sampler.Append(models.PricePoint{
			Timestamp: executedAt,
			Symbol:    req.Symbol,
			Close:     price,
			Open:      price,
			High:      price,
			Low:       price,
		})
	}

	e.logger.Info("Trade committed",
		zap.String("user", req.Username),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.Int("quantity", req.Quantity),
		zap.String("price", price.String()),
		zap.String("total", total.String()))

	return tx, nil
}

// validate checks the request fields; business-rule checks (funds, shares)
// run later under the user lock against fresh account state.
func (e *Executor) validate(req Request) error {
	if req.Username == "" {
		return invalid("username", "missing username")
	}
	if req.Symbol == "" {
		return invalid("symbol", "no symbol selected")
	}
	if req.Quantity <= 0 {
		return invalid("quantity", "quantity must be a positive integer")
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return invalid("side", "side must be BUY or SELL")
	}
	return nil
}

// resolvePrice prefers the cached current price, then the displayed price
// string, then the last intraday point.
func (e *Executor) resolvePrice(ctx context.Context, req Request) (decimal.Decimal, error) {
	price, err := e.market.CurrentPrice(ctx, req.Symbol)
	if err != nil {
		e.logger.Warn("Current price lookup failed, falling back",
			zap.String("symbol", req.Symbol), zap.Error(err))
		price = decimal.Zero
	}
	if price.IsPositive() {
		return price, nil
	}

	if req.DisplayedPrice != "" {
		if parsed, perr := decimal.NewFromString(req.DisplayedPrice); perr == nil && parsed.IsPositive() {
			return parsed, nil
		}
	}

	if req.Sampler != nil {
		if last, ok := req.Sampler.LastPoint(req.Symbol); ok && last.Close.IsPositive() {
			return last.Close, nil
		}
	}

	return decimal.Zero, invalid("price", "could not resolve a price for "+req.Symbol)
}
