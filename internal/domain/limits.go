package domain

import (
	"github.com/shopspring/decimal"
)

// Account represents the sender account a transfer debits
type Account struct {
	ID            string
	AccountNumber string
	AccountName   string
	Balance       decimal.Decimal
	Currency      string
	Role          string
}

// LimitWindow is a rolling usage cap (daily or monthly)
type LimitWindow struct {
	Used  decimal.Decimal `json:"used" yaml:"used"`
	Limit decimal.Decimal `json:"limit" yaml:"limit"`
}

// Remaining returns the headroom left in the window
func (w LimitWindow) Remaining() decimal.Decimal {
	return w.Limit.Sub(w.Used)
}

// AmountRange bounds a single transaction
type AmountRange struct {
	Min decimal.Decimal `json:"min" yaml:"min"`
	Max decimal.Decimal `json:"max" yaml:"max"`
}

// TransferLimits is the per-account limit snapshot the Validator reads.
// The engine never mutates it; settlement events update the used counters
// in the external ledger.
type TransferLimits struct {
	Daily          LimitWindow `json:"daily"`
	Monthly        LimitWindow `json:"monthly"`
	PerTransaction AmountRange `json:"perTransaction"`
	Currency       string      `json:"currency"`
}
