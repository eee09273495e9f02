package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Holdings maps a stock symbol to the number of shares currently held.
// It is stored as a JSON column so the whole user record can be rewritten
// as a single unit per trade.
type Holdings map[string]int

// Value implements driver.Valuer for gorm serialization.
func (h Holdings) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for gorm deserialization.
func (h *Holdings) Scan(value interface{}) error {
	if value == nil {
		*h = Holdings{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan holdings from %T", value)
	}
	if len(b) == 0 {
		*h = Holdings{}
		return nil
	}
	return json.Unmarshal(b, h)
}

// User represents a registered account: credentials, cash and current holdings.
type User struct {
	gorm.Model
	Username      string          `gorm:"uniqueIndex" json:"username"`
	PasswordHash  string          `json:"-"`
	Email         string          `gorm:"index" json:"email"`
	EmailVerified bool            `json:"email_verified"`
	CashBalance   decimal.Decimal `gorm:"type:decimal(20,2)" json:"cash_balance"`
	Holdings      Holdings        `gorm:"type:text" json:"holdings"`
}

// Quantity returns the held share count for a symbol (0 if not held).
func (u *User) Quantity(symbol string) int {
	if u.Holdings == nil {
		return 0
	}
	return u.Holdings[symbol]
}
