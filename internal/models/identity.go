package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity is an RFID tag and the prepaid wallet attached to it.
// Balance is a cached projection of the ledger and is only written by the
// wallet ledger together with a new LedgerEntry.
type Identity struct {
	ID        string          `json:"id" db:"id"`
	RFID      string          `json:"rfid" db:"rfid"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Version   int64           `json:"version" db:"version"` // for optimistic locking
	Active    bool            `json:"active" db:"active"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
