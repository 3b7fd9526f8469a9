package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/audit"
	"github.com/smartpark/backend/internal/metrics"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/store"
	"go.uber.org/zap"
)

const parkingFeeReason = "parking fee"

// EntryDecision is the gate's answer to an entry scan.
type EntryDecision struct {
	Allowed bool   `json:"allowed"`
	SlotID  int    `json:"slotId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ExitDecision is the gate's answer to an exit scan.
type ExitDecision struct {
	Allowed         bool             `json:"allowed"`
	DurationMinutes int64            `json:"durationMinutes,omitempty"`
	Fee             *decimal.Decimal `json:"fee,omitempty"`
	Balance         *decimal.Decimal `json:"balance,omitempty"`
	Reason          string           `json:"reason,omitempty"`
}

// SlotState is one row of the status snapshot.
type SlotState struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

// Status is the lot snapshot served to polling clients.
type Status struct {
	TotalSlots     int         `json:"totalSlots"`
	Occupied       int         `json:"occupied"`
	Available      int         `json:"available"`
	ActiveSessions int         `json:"activeSessions"`
	GateOpen       bool        `json:"gateOpen"`
	Slots          []SlotState `json:"slots"`
}

// SessionConfig holds the pricing and deadline for gate decisions.
type SessionConfig struct {
	RatePerMinute   decimal.Decimal
	DecisionTimeout time.Duration
}

type SessionOption func(*SessionManager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		m.now = now
		m.wallet.now = now
	}
}

// WithEvents sets where committed entries and exits are published.
func WithEvents(events EventPublisher) SessionOption {
	return func(m *SessionManager) {
		m.events = events
	}
}

// SessionManager runs the entry and exit protocols. Every decision is one
// unit of work against the store: the identity row is locked first, which
// orders a tag's own requests, then slot, session and ledger changes are
// made together or not at all.
type SessionManager struct {
	store   store.Store
	slots   *SlotPool
	wallet  *WalletLedger
	config  SessionConfig
	audit   *audit.Logger
	metrics *metrics.GateMetrics
	events  EventPublisher
	now     func() time.Time
}

func NewSessionManager(st store.Store, slots *SlotPool, wallet *WalletLedger, cfg SessionConfig,
	auditLogger *audit.Logger, gm *metrics.GateMetrics, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:   st,
		slots:   slots,
		wallet:  wallet,
		config:  cfg,
		audit:   auditLogger,
		metrics: gm,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enter decides an entry scan. Denials come back as data with a nil error;
// a non-nil error is always a *FaultError and the decision is a denial.
func (m *SessionManager) Enter(ctx context.Context, rfid string) (EntryDecision, error) {
	start := time.Now()
	unitCtx, cancel := context.WithTimeout(ctx, m.config.DecisionTimeout)
	defer cancel()

	var session models.Session
	err := m.store.WithinTx(unitCtx, func(ctx context.Context, tx store.Tx) error {
		identity, err := tx.IdentityByTag(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return deny(ReasonUnknownTag)
		}
		if err != nil {
			return err
		}
		if !identity.Active {
			return deny(ReasonTagInactive)
		}

		_, err = tx.ActiveSession(ctx, identity.ID)
		if err == nil {
			return deny(ReasonSessionAlreadyActive)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if !identity.Balance.IsPositive() {
			return deny(ReasonLowBalance)
		}

		slot, err := m.slots.Acquire(ctx, tx, identity.ID)
		if errors.Is(err, ErrLotFull) {
			return deny(ReasonLotFull)
		}
		if err != nil {
			return err
		}

		// If this insert fails the unit rolls back and the slot claim with it.
		session = models.Session{
			ID:         uuid.NewString(),
			IdentityID: identity.ID,
			SlotID:     slot.ID,
			EntryTime:  m.now(),
			Status:     models.SessionStatusActive,
		}
		return tx.InsertSession(ctx, &session)
	})

	if reason, fault := m.settle("enter", rfid, start, err); reason != "" {
		return EntryDecision{Allowed: false, Reason: reason}, fault
	}

	m.audit.LogSession(audit.EventSessionOpen, rfid, session.ID, session.SlotID, nil)
	zap.L().Info("Entry admitted",
		zap.String("rfid", rfid),
		zap.String("session_id", session.ID),
		zap.Int("slot_id", session.SlotID))
	publish(ctx, m.events, ParkingEvent{
		Type:   EventTypeEntry,
		RFID:   rfid,
		SlotID: session.SlotID,
		At:     session.EntryTime,
	})
	return EntryDecision{Allowed: true, SlotID: session.SlotID}, nil
}

// Exit decides an exit scan. The fee debit, the session closure and the
// slot release commit together; if the wallet cannot cover the fee nothing
// changes and the barrier stays down.
func (m *SessionManager) Exit(ctx context.Context, rfid string) (ExitDecision, error) {
	start := time.Now()
	unitCtx, cancel := context.WithTimeout(ctx, m.config.DecisionTimeout)
	defer cancel()

	var (
		session *models.Session
		entry   *models.LedgerEntry
		minutes int64
	)
	err := m.store.WithinTx(unitCtx, func(ctx context.Context, tx store.Tx) error {
		identity, err := tx.IdentityByTag(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return deny(ReasonUnknownTag)
		}
		if err != nil {
			return err
		}

		session, err = tx.ActiveSession(ctx, identity.ID)
		if errors.Is(err, store.ErrNotFound) {
			return deny(ReasonNoActiveSession)
		}
		if err != nil {
			return err
		}

		exitTime := m.now()
		minutes = BillableMinutes(session.EntryTime, exitTime)
		fee := Fee(session.EntryTime, exitTime, m.config.RatePerMinute)

		entry, err = m.wallet.Debit(ctx, tx, identity.ID, fee, parkingFeeReason)
		if errors.Is(err, ErrInsufficientFunds) {
			return deny(ReasonInsufficientFunds)
		}
		if err != nil {
			return err
		}

		session.ExitTime = &exitTime
		session.Fee = &fee
		session.Status = models.SessionStatusCompleted
		if err := tx.CompleteSession(ctx, session); err != nil {
			return err
		}
		return m.slots.Release(ctx, tx, session.SlotID, identity.ID)
	})

	if reason, fault := m.settle("exit", rfid, start, err); reason != "" {
		return ExitDecision{Allowed: false, Reason: reason}, fault
	}

	fee := entry.Amount
	balance := entry.BalanceAfter
	m.audit.LogLedger(audit.EventLedgerDebit, rfid, entry.ID, fee, entry.Reason, "")
	m.audit.LogSession(audit.EventSessionClose, rfid, session.ID, session.SlotID, &fee)
	zap.L().Info("Exit admitted",
		zap.String("rfid", rfid),
		zap.String("session_id", session.ID),
		zap.Int("slot_id", session.SlotID),
		zap.Int64("duration_minutes", minutes),
		zap.String("fee", fee.String()),
		zap.String("balance", balance.String()))
	publish(ctx, m.events, ParkingEvent{
		Type:    EventTypeExit,
		RFID:    rfid,
		SlotID:  session.SlotID,
		Amount:  &fee,
		Balance: &balance,
		At:      *session.ExitTime,
	})
	return ExitDecision{
		Allowed:         true,
		DurationMinutes: minutes,
		Fee:             &fee,
		Balance:         &balance,
	}, nil
}

// Status returns the slot pool snapshot and the number of active sessions,
// both read from one snapshot so a disagreement is a real fault.
func (m *SessionManager) Status(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.DecisionTimeout)
	defer cancel()

	var snap PoolSnapshot
	err := m.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		snap, err = m.slots.Snapshot(ctx, tx)
		return err
	})
	if err != nil {
		m.metrics.IncFault("status")
		return Status{}, &FaultError{Op: "status", Err: err}
	}

	active := snap.ActiveSessions
	if active != snap.Occupied {
		inconsistency := errors.Join(ErrInconsistent, errors.New("occupied slot count differs from active sessions"))
		zap.L().Error("Slot pool and sessions disagree",
			zap.Int("occupied", snap.Occupied),
			zap.Int("active_sessions", active))
		m.audit.LogFault(audit.EventConsistencyFault, "status", "", inconsistency)
		m.metrics.IncFault("status")
	}
	m.metrics.SetOccupied(snap.Occupied)

	status := Status{
		TotalSlots:     snap.Total,
		Occupied:       snap.Occupied,
		Available:      snap.Available,
		ActiveSessions: active,
		GateOpen:       snap.Available > 0,
		Slots:          make([]SlotState, 0, len(snap.Slots)),
	}
	for _, slot := range snap.Slots {
		status.Slots = append(status.Slots, SlotState{ID: slot.ID, Status: slot.Status})
	}
	return status, nil
}

// settle turns the unit's error into a denial reason. It returns an empty
// reason on success and a *FaultError for anything that is not a denial.
func (m *SessionManager) settle(op, rfid string, start time.Time, err error) (string, error) {
	took := time.Since(start)
	if err == nil {
		m.metrics.ObserveDecision(op, "admitted", took)
		return "", nil
	}
	if reason, ok := denialReason(err); ok {
		zap.L().Info("Gate decision denied",
			zap.String("op", op),
			zap.String("rfid", rfid),
			zap.String("reason", reason))
		m.metrics.ObserveDecision(op, reason, took)
		return reason, nil
	}

	zap.L().Error("Gate decision failed closed",
		zap.String("op", op),
		zap.String("rfid", rfid),
		zap.Bool("inconsistent", errors.Is(err, ErrInconsistent)),
		zap.Error(err))
	m.audit.LogFault(audit.EventConsistencyFault, op, rfid, err)
	m.metrics.IncFault(op)
	m.metrics.ObserveDecision(op, ReasonSystemUnavailable, took)
	return ReasonSystemUnavailable, &FaultError{Op: op, RFID: rfid, Err: err}
}
