package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a single observation in a price series. Historical points
// carry full OHLC values; intraday samples may carry only Close, in which
// case the accessor methods substitute Close for the missing fields.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Close     decimal.Decimal `json:"close"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
}

// OpenOrClose returns Open, or Close when Open was never set.
func (p PricePoint) OpenOrClose() decimal.Decimal {
	if p.Open.IsZero() {
		return p.Close
	}
	return p.Open
}

// HighOrClose returns High, or Close when High was never set.
func (p PricePoint) HighOrClose() decimal.Decimal {
	if p.High.IsZero() {
		return p.Close
	}
	return p.High
}

// LowOrClose returns Low, or Close when Low was never set.
func (p PricePoint) LowOrClose() decimal.Decimal {
	if p.Low.IsZero() {
		return p.Close
	}
	return p.Low
}
