package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"invertrack-go/internal/ledger"
	"invertrack-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SymbolStats aggregates the closed trades of one symbol.
type SymbolStats struct {
	Symbol       string          `json:"symbol"`
	TradeCount   int             `json:"trade_count"`
	SharesTraded int             `json:"shares_traded"`
	Invested     decimal.Decimal `json:"invested"`
	Proceeds     decimal.Decimal `json:"proceeds"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	WinCount     int             `json:"win_count"`
	LossCount    int             `json:"loss_count"`
}

// Report summarizes a user's realized trading results. Only closed lots
// appear here; open positions contribute nothing until they are sold.
type Report struct {
	Username     string             `json:"username"`
	GeneratedAt  time.Time          `json:"generated_at"`
	ClosedLots   []ledger.ClosedLot `json:"closed_lots"`
	PerSymbol    []SymbolStats      `json:"per_symbol"`
	Invested     decimal.Decimal    `json:"invested"`
	Proceeds     decimal.Decimal    `json:"proceeds"`
	RealizedGain decimal.Decimal    `json:"realized_gain"`
	GainPercent  decimal.Decimal    `json:"gain_percent"`
	FirstTrade   *time.Time         `json:"first_trade,omitempty"`
	LastTrade    *time.Time         `json:"last_trade,omitempty"`
	BestTrade    *ledger.ClosedLot  `json:"best_trade,omitempty"`
	WorstTrade   *ledger.ClosedLot  `json:"worst_trade,omitempty"`
}

// TransactionSource yields a user's full transaction history.
type TransactionSource interface {
	TransactionsForUser(username string) ([]models.Transaction, error)
}

// Generator builds realized-gain reports from the transaction log.
type Generator struct {
	logger *zap.Logger
	txs    TransactionSource
	dir    string
	now    func() time.Time
}

// NewGenerator creates a report generator writing files under dir.
func NewGenerator(logger *zap.Logger, txs TransactionSource, dir string) *Generator {
	return &Generator{
		logger: logger.Named("report"),
		txs:    txs,
		dir:    dir,
		now:    time.Now,
	}
}

// Build replays the user's history symbol by symbol and collects the closed
// lots from FIFO matching. Each sell is paired against the oldest remaining
// buy lots, so a sell that spans several buys yields several closed lots.
func (g *Generator) Build(username string) (*Report, error) {
	txs, err := g.txs.TransactionsForUser(username)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	bySymbol := make(map[string][]models.Transaction)
	for _, tx := range txs {
		bySymbol[tx.Symbol] = append(bySymbol[tx.Symbol], tx)
	}
	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	rep := &Report{
		Username:     username,
		GeneratedAt:  g.now(),
		Invested:     decimal.Zero,
		Proceeds:     decimal.Zero,
		RealizedGain: decimal.Zero,
		GainPercent:  decimal.Zero,
	}
	if len(txs) > 0 {
		first, last := txs[0].Timestamp, txs[0].Timestamp
		for _, t := range txs[1:] {
			if t.Timestamp.Before(first) {
				first = t.Timestamp
			}
			if t.Timestamp.After(last) {
				last = t.Timestamp
			}
		}
		rep.FirstTrade = &first
		rep.LastTrade = &last
	}

	for _, symbol := range symbols {
		pos := ledger.ComputeOpenPosition(bySymbol[symbol])
		if len(pos.ClosedLots) == 0 {
			continue
		}

		stats := SymbolStats{
			Symbol:       symbol,
			Invested:     decimal.Zero,
			Proceeds:     decimal.Zero,
			RealizedGain: decimal.Zero,
		}
		for i := range pos.ClosedLots {
			lot := pos.ClosedLots[i]
			rep.ClosedLots = append(rep.ClosedLots, lot)

			qty := decimal.NewFromInt(int64(lot.Quantity))
			stats.TradeCount++
			stats.SharesTraded += lot.Quantity
			stats.Invested = stats.Invested.Add(lot.BuyPrice.Mul(qty))
			stats.Proceeds = stats.Proceeds.Add(lot.SellPrice.Mul(qty))
			stats.RealizedGain = stats.RealizedGain.Add(lot.RealizedGain)
			if lot.RealizedGain.IsPositive() {
				stats.WinCount++
			} else if lot.RealizedGain.IsNegative() {
				stats.LossCount++
			}

			if rep.BestTrade == nil || lot.RealizedGain.GreaterThan(rep.BestTrade.RealizedGain) {
				best := lot
				rep.BestTrade = &best
			}
			if rep.WorstTrade == nil || lot.RealizedGain.LessThan(rep.WorstTrade.RealizedGain) {
				worst := lot
				rep.WorstTrade = &worst
			}
		}
		rep.PerSymbol = append(rep.PerSymbol, stats)
		rep.Invested = rep.Invested.Add(stats.Invested)
		rep.Proceeds = rep.Proceeds.Add(stats.Proceeds)
		rep.RealizedGain = rep.RealizedGain.Add(stats.RealizedGain)
	}

	if rep.Invested.IsPositive() {
		rep.GainPercent = rep.RealizedGain.Div(rep.Invested).Mul(decimal.NewFromInt(100)).Round(2)
	}

	sort.Slice(rep.ClosedLots, func(i, j int) bool {
		return rep.ClosedLots[i].SellTime.Before(rep.ClosedLots[j].SellTime)
	})
	return rep, nil
}

// Write builds the report and saves it as a JSON file under the generator's
// directory. The filename carries a timestamp and a random suffix so
// concurrent writes never collide.
func (g *Generator) Write(username string) (*Report, string, error) {
	rep, err := g.Build(username)
	if err != nil {
		return nil, "", err
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create report directory: %w", err)
	}

	name := fmt.Sprintf("report-%s-%s-%s.json",
		username, rep.GeneratedAt.Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(g.dir, name)

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, "", fmt.Errorf("failed to write report: %w", err)
	}

	g.logger.Info("Report written",
		zap.String("username", username),
		zap.String("path", path),
		zap.Int("closed_lots", len(rep.ClosedLots)))
	return rep, path, nil
}
