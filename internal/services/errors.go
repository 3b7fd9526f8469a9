package services

import (
	"errors"
	"fmt"
)

// Denial reasons reported to the gate and to admin clients.
const (
	ReasonInvalidTag           = "InvalidTag"
	ReasonInvalidAmount        = "InvalidAmount"
	ReasonUnknownTag           = "UnknownTag"
	ReasonTagInactive          = "TagInactive"
	ReasonSessionAlreadyActive = "SessionAlreadyActive"
	ReasonLowBalance           = "LowBalance"
	ReasonLotFull              = "LotFull"
	ReasonNoActiveSession      = "NoActiveSession"
	ReasonInsufficientFunds    = "InsufficientFunds"
	ReasonForbidden            = "Forbidden"
	ReasonSystemUnavailable    = "SystemUnavailable"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive with at most 4 decimal places")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownTag        = errors.New("unknown tag")
	ErrLotFull           = errors.New("lot full")
	ErrForbidden         = errors.New("admin capability required")
	ErrInconsistent      = errors.New("slot and session state are inconsistent")
)

// denial aborts a unit of work with an expected business outcome. It never
// leaves the services package; callers receive the reason as data.
type denial struct {
	reason string
}

func (d *denial) Error() string {
	return "denied: " + d.reason
}

func deny(reason string) error {
	return &denial{reason: reason}
}

func denialReason(err error) (string, bool) {
	var d *denial
	if errors.As(err, &d) {
		return d.reason, true
	}
	return "", false
}

// FaultError reports a request that failed closed because the store was
// unavailable, the deadline passed, or slot/session state disagreed.
// It is never a business denial.
type FaultError struct {
	Op   string
	RFID string
	Err  error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.RFID, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// IsFault reports whether err is a FaultError.
func IsFault(err error) bool {
	var f *FaultError
	return errors.As(err, &f)
}
