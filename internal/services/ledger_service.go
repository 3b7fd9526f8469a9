package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/audit"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/store"
	"go.uber.org/zap"
)

// Actor is an already-authenticated caller and its capability.
type Actor struct {
	ID      string
	IsAdmin bool
}

// CreditResult is the answer to an admin wallet refill.
type CreditResult struct {
	Success    bool             `json:"success"`
	NewBalance *decimal.Decimal `json:"newBalance,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// Reconciliation compares the cached balance with the one rederived from
// the ledger entry chain.
type Reconciliation struct {
	RFID           string          `json:"rfid"`
	CachedBalance  decimal.Decimal `json:"cachedBalance"`
	DerivedBalance decimal.Decimal `json:"derivedBalance"`
	Entries        int             `json:"entries"`
	Consistent     bool            `json:"consistent"`
	Problems       []string        `json:"problems,omitempty"`
}

// WalletLedger owns every balance mutation. Each mutation locks the
// identity, appends a LedgerEntry and bumps the cached balance under an
// optimistic version check, all inside one unit of work.
type WalletLedger struct {
	store   store.Store
	audit   *audit.Logger
	events  EventPublisher
	timeout time.Duration
	now     func() time.Time
}

func NewWalletLedger(st store.Store, auditLogger *audit.Logger, events EventPublisher, timeout time.Duration) *WalletLedger {
	return &WalletLedger{
		store:   st,
		audit:   auditLogger,
		events:  events,
		timeout: timeout,
		now:     time.Now,
	}
}

// BalanceOf returns the current balance for rfid.
func (l *WalletLedger) BalanceOf(ctx context.Context, rfid string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var balance decimal.Decimal
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		identity, err := tx.IdentityByTag(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownTag
		}
		if err != nil {
			return err
		}
		balance = identity.Balance
		return nil
	})
	return balance, err
}

// Credit adds amount to the identity's wallet inside tx.
func (l *WalletLedger) Credit(ctx context.Context, tx store.Tx, identityID string, amount decimal.Decimal, reason, actor string) (*models.LedgerEntry, error) {
	return l.apply(ctx, tx, identityID, models.EntryTypeCredit, amount, reason, actor)
}

// Debit removes amount from the identity's wallet inside tx. It fails with
// ErrInsufficientFunds, changing nothing, when the balance is too low.
func (l *WalletLedger) Debit(ctx context.Context, tx store.Tx, identityID string, amount decimal.Decimal, reason string) (*models.LedgerEntry, error) {
	return l.apply(ctx, tx, identityID, models.EntryTypeDebit, amount, reason, "")
}

func (l *WalletLedger) apply(ctx context.Context, tx store.Tx, identityID, entryType string, amount decimal.Decimal, reason, actor string) (*models.LedgerEntry, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}

	// Re-read under lock: the balance used below is the one the write sees.
	identity, err := tx.LockIdentity(ctx, identityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownTag
	}
	if err != nil {
		return nil, err
	}

	before := identity.Balance
	var after decimal.Decimal
	switch entryType {
	case models.EntryTypeCredit:
		after = before.Add(amount)
	case models.EntryTypeDebit:
		if before.LessThan(amount) {
			return nil, ErrInsufficientFunds
		}
		after = before.Sub(amount)
	default:
		return nil, fmt.Errorf("unknown entry type %q", entryType)
	}

	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		IdentityID:    identity.ID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reason:        reason,
		Actor:         actor,
		CreatedAt:     l.now(),
	}
	if err := tx.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	if err := tx.UpdateBalance(ctx, identity.ID, after, identity.Version); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditWallet is the admin refill. Input problems and missing capability
// come back as a failed CreditResult; store trouble comes back as a
// *FaultError.
func (l *WalletLedger) CreditWallet(ctx context.Context, rfid string, amount decimal.Decimal, actor Actor) (CreditResult, error) {
	if !actor.IsAdmin {
		return CreditResult{Reason: ReasonForbidden}, nil
	}
	if !validAmount(amount) {
		return CreditResult{Reason: ReasonInvalidAmount}, nil
	}

	unitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var entry *models.LedgerEntry
	err := l.store.WithinTx(unitCtx, func(ctx context.Context, tx store.Tx) error {
		identity, err := tx.IdentityByTag(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return deny(ReasonUnknownTag)
		}
		if err != nil {
			return err
		}
		entry, err = l.Credit(ctx, tx, identity.ID, amount, "wallet refill", actor.ID)
		return err
	})
	if reason, ok := denialReason(err); ok {
		return CreditResult{Reason: reason}, nil
	}
	if err != nil {
		fault := &FaultError{Op: "credit", RFID: rfid, Err: err}
		zap.L().Error("Wallet credit failed", zap.String("rfid", rfid), zap.Error(err))
		l.audit.LogFault(audit.EventConsistencyFault, "credit", rfid, err)
		return CreditResult{Reason: ReasonSystemUnavailable}, fault
	}

	l.audit.LogLedger(audit.EventLedgerCredit, rfid, entry.ID, entry.Amount, entry.Reason, actor.ID)
	zap.L().Info("Wallet credited",
		zap.String("rfid", rfid),
		zap.String("amount", amount.String()),
		zap.String("new_balance", entry.BalanceAfter.String()),
		zap.String("actor", actor.ID))

	newBalance := entry.BalanceAfter
	publish(ctx, l.events, ParkingEvent{
		Type:    EventTypeCredit,
		RFID:    rfid,
		Amount:  &entry.Amount,
		Balance: &newBalance,
		At:      entry.CreatedAt,
	})
	return CreditResult{Success: true, NewBalance: &newBalance}, nil
}

// History returns the ledger entries for rfid, oldest first.
func (l *WalletLedger) History(ctx context.Context, rfid string) ([]models.LedgerEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var entries []models.LedgerEntry
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		identity, err := tx.IdentityByTag(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownTag
		}
		if err != nil {
			return err
		}
		entries, err = tx.LedgerEntries(ctx, identity.ID)
		return err
	})
	return entries, err
}

// Reconcile rederives the balance from the entry chain. Any break in the
// chain or mismatch with the cached balance is reported and audited, never
// repaired.
func (l *WalletLedger) Reconcile(ctx context.Context, rfid string) (*Reconciliation, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var identity *models.Identity
	var entries []models.LedgerEntry
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		identity, err = tx.IdentityByTag(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownTag
		}
		if err != nil {
			return err
		}
		entries, err = tx.LedgerEntries(ctx, identity.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		RFID:          rfid,
		CachedBalance: identity.Balance,
		Entries:       len(entries),
	}
	rec.DerivedBalance, rec.Problems = verifyChain(entries)
	if !rec.DerivedBalance.Equal(rec.CachedBalance) {
		rec.Problems = append(rec.Problems, fmt.Sprintf("cached balance %s differs from ledger balance %s",
			rec.CachedBalance, rec.DerivedBalance))
	}
	rec.Consistent = len(rec.Problems) == 0

	if !rec.Consistent {
		zap.L().Error("Ledger reconciliation failed", zap.String("rfid", rfid), zap.Strings("problems", rec.Problems))
		details := map[string]string{
			"cached":  rec.CachedBalance.String(),
			"derived": rec.DerivedBalance.String(),
		}
		for i, p := range rec.Problems {
			details[fmt.Sprintf("problem_%d", i)] = p
		}
		l.audit.LogMismatch(audit.EventLedgerMismatch, rfid, details)
	}
	return rec, nil
}

// verifyChain walks entries in order and returns the balance they imply.
func verifyChain(entries []models.LedgerEntry) (decimal.Decimal, []string) {
	var problems []string
	balance := decimal.Zero
	for i, e := range entries {
		if !e.BalanceBefore.Equal(balance) {
			problems = append(problems, fmt.Sprintf("entry %d (%s): balance before %s, expected %s", i, e.ID, e.BalanceBefore, balance))
		}
		want := e.BalanceBefore.Add(e.Amount)
		if e.EntryType == models.EntryTypeDebit {
			want = e.BalanceBefore.Sub(e.Amount)
		}
		if !e.BalanceAfter.Equal(want) {
			problems = append(problems, fmt.Sprintf("entry %d (%s): balance after %s, expected %s", i, e.ID, e.BalanceAfter, want))
		}
		balance = e.BalanceAfter
	}
	return balance, problems
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && models.FitsMoneyScale(amount)
}
