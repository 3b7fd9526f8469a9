package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/store"
)

// Compile-time check: *Store must satisfy store.Store.
var _ store.Store = (*Store)(nil)

const uniqueViolation = "23505"

// Store is the postgres implementation of store.Store. Each unit of work is
// one database transaction; identity rows are locked with FOR UPDATE so
// per-identity work is serialized while different identities never contend.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &pgTx{tx: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *pgTx) IdentityByTag(ctx context.Context, rfid string) (*models.Identity, error) {
	return t.scanIdentity(t.tx.QueryRowContext(ctx, queryIdentityByTag, rfid))
}

func (t *pgTx) LockIdentity(ctx context.Context, identityID string) (*models.Identity, error) {
	return t.scanIdentity(t.tx.QueryRowContext(ctx, queryLockIdentity, identityID))
}

func (t *pgTx) scanIdentity(row *sql.Row) (*models.Identity, error) {
	var identity models.Identity
	err := row.Scan(&identity.ID, &identity.RFID, &identity.Balance, &identity.Version,
		&identity.Active, &identity.CreatedAt, &identity.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	return &identity, nil
}

func (t *pgTx) InsertIdentity(ctx context.Context, identity *models.Identity) error {
	_, err := t.tx.ExecContext(ctx, queryInsertIdentity,
		identity.ID, identity.RFID, identity.Balance, identity.Version,
		identity.Active, identity.CreatedAt, identity.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return store.ErrDuplicateTag
	}
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

func (t *pgTx) SetIdentityActive(ctx context.Context, identityID string, active bool) error {
	result, err := t.tx.ExecContext(ctx, querySetIdentityActive, active, t.now(), identityID)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	return expectOneRow(result, store.ErrNotFound)
}

func (t *pgTx) UpdateBalance(ctx context.Context, identityID string, balance decimal.Decimal, version int64) error {
	result, err := t.tx.ExecContext(ctx, queryUpdateBalance, balance, t.now(), identityID, version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if err := expectOneRow(result, store.ErrConcurrentModification); err != nil {
		return fmt.Errorf("optimistic lock failed for identity %s: %w", identityID, err)
	}
	return nil
}

func (t *pgTx) AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, queryInsertLedgerEntry,
		entry.ID, entry.IdentityID, entry.EntryType, entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.Reason, entry.Actor, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (t *pgTx) LedgerEntries(ctx context.Context, identityID string) ([]models.LedgerEntry, error) {
	rows, err := t.tx.QueryContext(ctx, queryLedgerEntries, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.IdentityID, &e.EntryType, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.Reason, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *pgTx) ActiveSession(ctx context.Context, identityID string) (*models.Session, error) {
	var session models.Session
	err := t.tx.QueryRowContext(ctx, queryActiveSession, identityID).
		Scan(&session.ID, &session.IdentityID, &session.SlotID, &session.EntryTime, &session.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active session: %w", err)
	}
	return &session, nil
}

func (t *pgTx) InsertSession(ctx context.Context, session *models.Session) error {
	_, err := t.tx.ExecContext(ctx, queryInsertSession,
		session.ID, session.IdentityID, session.SlotID, session.EntryTime, session.Status)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (t *pgTx) CompleteSession(ctx context.Context, session *models.Session) error {
	if session.ExitTime == nil || session.Fee == nil {
		return fmt.Errorf("session %s: exit time and fee are required", session.ID)
	}
	result, err := t.tx.ExecContext(ctx, queryCompleteSession,
		*session.ExitTime, *session.Fee, session.Status, session.ID)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if err := expectOneRow(result, store.ErrConcurrentModification); err != nil {
		return fmt.Errorf("session %s: %w", session.ID, err)
	}
	return nil
}

func (t *pgTx) ClaimSlot(ctx context.Context, identityID string) (*models.Slot, error) {
	var slot models.Slot
	err := t.tx.QueryRowContext(ctx, queryClaimSlot, identityID).
		Scan(&slot.ID, &slot.Status, &slot.OccupantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoSlotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim slot: %w", err)
	}
	return &slot, nil
}

func (t *pgTx) ReleaseSlot(ctx context.Context, slotID int, identityID string) error {
	result, err := t.tx.ExecContext(ctx, queryReleaseSlot, slotID, identityID)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	if err := expectOneRow(result, store.ErrSlotNotOccupied); err != nil {
		return fmt.Errorf("slot %d: %w", slotID, err)
	}
	return nil
}

func (t *pgTx) Slot(ctx context.Context, slotID int) (*models.Slot, error) {
	var slot models.Slot
	err := t.tx.QueryRowContext(ctx, querySlot, slotID).Scan(&slot.ID, &slot.Status, &slot.OccupantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}
	return &slot, nil
}

func (t *pgTx) Occupancy(ctx context.Context) (*store.Occupancy, error) {
	rows, err := t.tx.QueryContext(ctx, queryOccupancy)
	if err != nil {
		return nil, fmt.Errorf("failed to query occupancy: %w", err)
	}
	defer rows.Close()

	occ := &store.Occupancy{}
	for rows.Next() {
		var (
			id       sql.NullInt64
			status   sql.NullString
			occupant string
		)
		if err := rows.Scan(&id, &status, &occupant, &occ.ActiveSessions); err != nil {
			return nil, fmt.Errorf("failed to scan occupancy: %w", err)
		}
		if !id.Valid {
			continue
		}
		occ.Slots = append(occ.Slots, models.Slot{ID: int(id.Int64), Status: status.String, OccupantID: occupant})
	}
	return occ, rows.Err()
}

func expectOneRow(result sql.Result, zero error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return zero
	}
	return nil
}
