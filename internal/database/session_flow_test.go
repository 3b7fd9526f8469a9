package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/audit"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	expectIdentityByTag = `FROM identities WHERE rfid = \$1 FOR UPDATE`
	expectLockIdentity  = `FROM identities WHERE id = \$1 FOR UPDATE`
	expectActiveSession = `FROM sessions WHERE identity_id = \$1 AND status = 'active' FOR UPDATE`
	expectClaimSlot     = `UPDATE slots SET status = 'occupied'`
	expectInsertSession = `INSERT INTO sessions`
	expectInsertEntry   = `INSERT INTO ledger_entries`
	expectUpdateBalance = `UPDATE identities SET balance = \$1, version = version \+ 1`
	expectCloseSession  = `UPDATE sessions SET exit_time = \$1, fee = \$2, status = \$3`
	expectReleaseSlot   = `UPDATE slots SET status = 'available', occupant_id = NULL WHERE id = \$1 AND status = 'occupied' AND occupant_id = \$2`
)

var flowStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newFlowManager runs a SessionManager over the Postgres store with a
// mocked connection and a clock the test controls.
func newFlowManager(t *testing.T, now *time.Time) (*services.SessionManager, sqlmock.Sqlmock) {
	t.Helper()
	s, mock := newMockStore(t)
	auditLogger := audit.NewLogger(zap.NewNop())
	slots := services.NewSlotPool(s, auditLogger, nil, time.Second)
	wallet := services.NewWalletLedger(s, auditLogger, nil, time.Second)
	m := services.NewSessionManager(s, slots, wallet, services.SessionConfig{
		RatePerMinute:   decimal.NewFromInt(2),
		DecisionTimeout: time.Second,
	}, auditLogger, nil, services.WithClock(func() time.Time { return *now }))
	return m, mock
}

func identityRow(balance string, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "rfid", "balance", "version", "active", "created_at", "updated_at"}).
		AddRow("identity-1", "04A1B2C3", balance, version, true, flowStart, flowStart)
}

func TestSessionFlow_Enter(t *testing.T) {
	ctx := context.Background()

	t.Run("claims a slot and opens a session in one transaction", func(t *testing.T) {
		now := flowStart
		m, mock := newFlowManager(t, &now)

		mock.ExpectBegin()
		mock.ExpectQuery(expectIdentityByTag).WithArgs("04A1B2C3").WillReturnRows(identityRow("10.0000", 1))
		mock.ExpectQuery(expectActiveSession).WithArgs("identity-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "slot_id", "entry_time", "status"}))
		mock.ExpectQuery(expectClaimSlot).WithArgs("identity-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "occupant_id"}).AddRow(2, "occupied", "identity-1"))
		mock.ExpectExec(expectInsertSession).
			WithArgs(sqlmock.AnyArg(), "identity-1", 2, flowStart, models.SessionStatusActive).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		decision, err := m.Enter(ctx, "04A1B2C3")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2, decision.SlotID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lot full rolls back without writing", func(t *testing.T) {
		now := flowStart
		m, mock := newFlowManager(t, &now)

		mock.ExpectBegin()
		mock.ExpectQuery(expectIdentityByTag).WithArgs("04A1B2C3").WillReturnRows(identityRow("10.0000", 1))
		mock.ExpectQuery(expectActiveSession).WithArgs("identity-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "identity_id", "slot_id", "entry_time", "status"}))
		mock.ExpectQuery(expectClaimSlot).WithArgs("identity-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "status", "occupant_id"}))
		mock.ExpectRollback()

		decision, err := m.Enter(ctx, "04A1B2C3")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, services.ReasonLotFull, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionFlow_Exit(t *testing.T) {
	ctx := context.Background()
	sessionRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "identity_id", "slot_id", "entry_time", "status"}).
			AddRow("session-1", "identity-1", 2, flowStart, models.SessionStatusActive)
	}

	t.Run("debits, closes and releases in one transaction", func(t *testing.T) {
		now := flowStart.Add(3 * time.Minute)
		m, mock := newFlowManager(t, &now)

		mock.ExpectBegin()
		mock.ExpectQuery(expectIdentityByTag).WithArgs("04A1B2C3").WillReturnRows(identityRow("10.0000", 4))
		mock.ExpectQuery(expectActiveSession).WithArgs("identity-1").WillReturnRows(sessionRow())
		mock.ExpectQuery(expectLockIdentity).WithArgs("identity-1").WillReturnRows(identityRow("10.0000", 4))
		mock.ExpectExec(expectInsertEntry).
			WithArgs(sqlmock.AnyArg(), "identity-1", models.EntryTypeDebit, decimal.NewFromInt(6),
				decimal.NewFromInt(10), decimal.NewFromInt(4), "parking fee", "", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(expectUpdateBalance).
			WithArgs(decimal.NewFromInt(4), sqlmock.AnyArg(), "identity-1", int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(expectCloseSession).
			WithArgs(now, decimal.NewFromInt(6), models.SessionStatusCompleted, "session-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(expectReleaseSlot).WithArgs(2, "identity-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		decision, err := m.Exit(ctx, "04A1B2C3")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		assert.Equal(t, int64(3), decision.DurationMinutes)
		assert.True(t, decimal.NewFromInt(6).Equal(*decision.Fee))
		assert.True(t, decimal.NewFromInt(4).Equal(*decision.Balance))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds rolls back before any write", func(t *testing.T) {
		now := flowStart.Add(10 * time.Minute)
		m, mock := newFlowManager(t, &now)

		mock.ExpectBegin()
		mock.ExpectQuery(expectIdentityByTag).WithArgs("04A1B2C3").WillReturnRows(identityRow("5.0000", 2))
		mock.ExpectQuery(expectActiveSession).WithArgs("identity-1").WillReturnRows(sessionRow())
		mock.ExpectQuery(expectLockIdentity).WithArgs("identity-1").WillReturnRows(identityRow("5.0000", 2))
		mock.ExpectRollback()

		decision, err := m.Exit(ctx, "04A1B2C3")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, services.ReasonInsufficientFunds, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("slot held by another identity fails closed", func(t *testing.T) {
		now := flowStart.Add(3 * time.Minute)
		m, mock := newFlowManager(t, &now)

		mock.ExpectBegin()
		mock.ExpectQuery(expectIdentityByTag).WithArgs("04A1B2C3").WillReturnRows(identityRow("10.0000", 4))
		mock.ExpectQuery(expectActiveSession).WithArgs("identity-1").WillReturnRows(sessionRow())
		mock.ExpectQuery(expectLockIdentity).WithArgs("identity-1").WillReturnRows(identityRow("10.0000", 4))
		mock.ExpectExec(expectInsertEntry).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(expectUpdateBalance).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(expectCloseSession).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(expectReleaseSlot).WithArgs(2, "identity-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		decision, err := m.Exit(ctx, "04A1B2C3")
		var fault *services.FaultError
		require.ErrorAs(t, err, &fault)
		assert.ErrorIs(t, err, services.ErrInconsistent)
		assert.False(t, decision.Allowed)
		assert.Equal(t, services.ReasonSystemUnavailable, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
