package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry direction
const (
	EntryTypeCredit = "CREDIT"
	EntryTypeDebit  = "DEBIT"
)

// MoneyScale is the number of decimal places stored for amounts and rates.
const MoneyScale = 4

// FitsMoneyScale reports whether d can be stored without rounding.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// LedgerEntry is an immutable balance mutation. Amount is always positive,
// the direction is carried by EntryType.
type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	IdentityID    string          `json:"identity_id" db:"identity_id"`
	EntryType     string          `json:"entry_type" db:"entry_type"` // DEBIT or CREDIT
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	Reason        string          `json:"reason" db:"reason"`
	Actor         string          `json:"actor,omitempty" db:"actor"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
