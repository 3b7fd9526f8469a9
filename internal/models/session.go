package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Session status
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// Session is one continuous occupation of a slot by one identity.
// ExitTime and Fee stay nil until the session is completed.
type Session struct {
	ID         string           `json:"id" db:"id"`
	IdentityID string           `json:"identity_id" db:"identity_id"`
	SlotID     int              `json:"slot_id" db:"slot_id"`
	EntryTime  time.Time        `json:"entry_time" db:"entry_time"`
	ExitTime   *time.Time       `json:"exit_time,omitempty" db:"exit_time"`
	Fee        *decimal.Decimal `json:"fee,omitempty" db:"fee"`
	Status     string           `json:"status" db:"status"`
}
