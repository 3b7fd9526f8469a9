package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/audit"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/store"
	"go.uber.org/zap"
)

const initialBalanceReason = "initial balance"

// TagService registers RFID tags and toggles whether they may enter.
type TagService struct {
	store   store.Store
	wallet  *WalletLedger
	audit   *audit.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewTagService(st store.Store, wallet *WalletLedger, auditLogger *audit.Logger, timeout time.Duration) *TagService {
	return &TagService{
		store:   st,
		wallet:  wallet,
		audit:   auditLogger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Register creates an active identity for rfid. A positive initialBalance
// is booked through the ledger so the balance stays derivable from entries.
func (s *TagService) Register(ctx context.Context, rfid string, initialBalance decimal.Decimal, actor Actor) (*models.Identity, error) {
	if !actor.IsAdmin {
		return nil, ErrForbidden
	}
	if initialBalance.IsNegative() || !models.FitsMoneyScale(initialBalance) {
		return nil, ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	identity := &models.Identity{
		ID:        uuid.NewString(),
		RFID:      rfid,
		Balance:   decimal.Zero,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertIdentity(ctx, identity); err != nil {
			return err
		}
		if initialBalance.IsPositive() {
			entry, err := s.wallet.Credit(ctx, tx, identity.ID, initialBalance, initialBalanceReason, actor.ID)
			if err != nil {
				return err
			}
			identity.Balance = entry.BalanceAfter
			identity.Version++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOperation(audit.EventTagProvisioned, rfid, "registered by "+actor.ID)
	zap.L().Info("Tag registered",
		zap.String("rfid", rfid),
		zap.String("identity_id", identity.ID),
		zap.String("initial_balance", identity.Balance.String()))
	return identity, nil
}

// SetActive deactivates or reinstates a tag. Deactivation blocks new
// entries only; a vehicle already parked can still leave.
func (s *TagService) SetActive(ctx context.Context, rfid string, active bool, actor Actor) error {
	if !actor.IsAdmin {
		return ErrForbidden
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		identity, err := tx.IdentityByTag(ctx, rfid)
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownTag
		}
		if err != nil {
			return err
		}
		return tx.SetIdentityActive(ctx, identity.ID, active)
	})
	if err != nil {
		return err
	}

	state := "deactivated"
	if active {
		state = "reinstated"
	}
	s.audit.LogOperation(audit.EventTagStatus, rfid, state+" by "+actor.ID)
	return nil
}
