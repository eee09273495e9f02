package ledger

import (
	"time"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
)

// Lot is a still-open quantity of shares from one historical buy, tracked
// for FIFO matching. Lots are derived during replay and never persisted.
type Lot struct {
	Quantity  int
	UnitPrice decimal.Decimal
	BuyTime   time.Time
}

// ClosedLot records one sell consuming (part of) one buy lot.
type ClosedLot struct {
	Symbol       string          `json:"symbol"`
	Quantity     int             `json:"quantity"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	RealizedGain decimal.Decimal `json:"realized_gain"`
	BuyTime      time.Time       `json:"buy_time"`
	SellTime     time.Time       `json:"sell_time"`
}

// OpenPosition is the result of replaying a symbol's transaction history.
type OpenPosition struct {
	OpenQuantity    int
	AverageOpenCost decimal.Decimal
	ClosedLots      []ClosedLot
	RealizedGain    decimal.Decimal

	// Inconsistent is set when a sell exceeded the open lots reconstructed
	// from history (the holdings map and the transaction log can drift).
	// RealizedGain then falls back to the aggregate of sell proceeds minus
	// matched buy cost instead of per-lot accounting.
	Inconsistent bool
}

// ComputeOpenPosition replays a single symbol's transactions in time order
// through a FIFO lot queue: buys push lots to the back, sells consume from
// the front. The residual queue is the open position. The computation is
// pure and replayable: the same input always yields the same result.
func ComputeOpenPosition(txs []models.Transaction) OpenPosition {
	var (
		queue        []Lot
		result       OpenPosition
		sellProceeds decimal.Decimal
		matchedCost  decimal.Decimal
	)

	for _, tx := range txs {
		switch tx.Side {
		case models.SideBuy:
			queue = append(queue, Lot{
				Quantity:  tx.Quantity,
				UnitPrice: tx.UnitPrice,
				BuyTime:   tx.Timestamp,
			})
		case models.SideSell:
			sellProceeds = sellProceeds.Add(tx.UnitPrice.Mul(decimal.NewFromInt(int64(tx.Quantity))))
			remaining := tx.Quantity
			for remaining > 0 && len(queue) > 0 {
				lot := &queue[0]
				consumed := lot.Quantity
				if consumed > remaining {
					consumed = remaining
				}

				qty := decimal.NewFromInt(int64(consumed))
				gain := tx.UnitPrice.Sub(lot.UnitPrice).Mul(qty)
				result.ClosedLots = append(result.ClosedLots, ClosedLot{
					Symbol:       tx.Symbol,
					Quantity:     consumed,
					BuyPrice:     lot.UnitPrice,
					SellPrice:    tx.UnitPrice,
					RealizedGain: gain,
					BuyTime:      lot.BuyTime,
					SellTime:     tx.Timestamp,
				})
				matchedCost = matchedCost.Add(lot.UnitPrice.Mul(qty))

				remaining -= consumed
				lot.Quantity -= consumed
				if lot.Quantity == 0 {
					queue = queue[1:]
				}
			}
			// An over-sell relative to the reconstructed lots stops at the
			// empty queue rather than going negative.
			if remaining > 0 {
				result.Inconsistent = true
			}
		}
	}

	var openCost decimal.Decimal
	for _, lot := range queue {
		result.OpenQuantity += lot.Quantity
		openCost = openCost.Add(lot.UnitPrice.Mul(decimal.NewFromInt(int64(lot.Quantity))))
	}
	if result.OpenQuantity > 0 {
		result.AverageOpenCost = openCost.Div(decimal.NewFromInt(int64(result.OpenQuantity)))
	}

	if result.Inconsistent {
		result.RealizedGain = sellProceeds.Sub(matchedCost)
	} else {
		for _, cl := range result.ClosedLots {
			result.RealizedGain = result.RealizedGain.Add(cl.RealizedGain)
		}
	}

	return result
}

// FallbackAverageCost is the aggregate average used when the FIFO
// reconstruction yields no open quantity but the account's holdings map
// says shares are held: total buy cost over total bought quantity.
func FallbackAverageCost(txs []models.Transaction) decimal.Decimal {
	var cost decimal.Decimal
	var bought int
	for _, tx := range txs {
		if tx.Side != models.SideBuy {
			continue
		}
		cost = cost.Add(tx.UnitPrice.Mul(decimal.NewFromInt(int64(tx.Quantity))))
		bought += tx.Quantity
	}
	if bought == 0 {
		return decimal.Zero
	}
	return cost.Div(decimal.NewFromInt(int64(bought)))
}
