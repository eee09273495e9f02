package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Transaction represents a single executed fill. Records are append-only:
// once persisted they are never mutated or deleted.
type Transaction struct {
	gorm.Model
	Username  string          `gorm:"index" json:"username"`
	Symbol    string          `gorm:"index" json:"symbol"`
	Side      string          `json:"side"` // SideBuy or SideSell
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(20,2)" json:"unit_price"`
	Total     decimal.Decimal `gorm:"type:decimal(20,2)" json:"total"`
	Timestamp time.Time       `gorm:"index" json:"timestamp"`
}
