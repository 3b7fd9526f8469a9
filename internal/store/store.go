package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("not found")
	ErrNoSlotAvailable        = errors.New("no slot available")
	ErrSlotNotOccupied        = errors.New("slot not occupied")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrDuplicateTag           = errors.New("tag already registered")
)

// Tx is the set of operations available inside one atomic unit. Every
// mutation made through a Tx lands together on commit or not at all.
type Tx interface {
	// IdentityByTag and LockIdentity read an identity and hold it until the
	// unit ends, so per-identity work is serialized.
	IdentityByTag(ctx context.Context, rfid string) (*models.Identity, error)
	LockIdentity(ctx context.Context, identityID string) (*models.Identity, error)
	InsertIdentity(ctx context.Context, identity *models.Identity) error
	SetIdentityActive(ctx context.Context, identityID string, active bool) error

	// UpdateBalance writes the cached balance only if version still matches,
	// otherwise it returns ErrConcurrentModification.
	UpdateBalance(ctx context.Context, identityID string, balance decimal.Decimal, version int64) error
	AppendLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	LedgerEntries(ctx context.Context, identityID string) ([]models.LedgerEntry, error)

	ActiveSession(ctx context.Context, identityID string) (*models.Session, error)
	InsertSession(ctx context.Context, session *models.Session) error
	CompleteSession(ctx context.Context, session *models.Session) error

	// ClaimSlot marks the lowest-numbered available slot as occupied by
	// identityID. Returns ErrNoSlotAvailable when the pool is exhausted.
	ClaimSlot(ctx context.Context, identityID string) (*models.Slot, error)
	// ReleaseSlot frees a slot held by identityID. It returns
	// ErrSlotNotOccupied if the slot is available or held by someone else.
	ReleaseSlot(ctx context.Context, slotID int, identityID string) error
	Slot(ctx context.Context, slotID int) (*models.Slot, error)
	// Occupancy reads every slot and the active session count from one
	// snapshot, so the two can be compared.
	Occupancy(ctx context.Context) (*Occupancy, error)
}

// Occupancy is the slot table, ordered by id, plus the number of active
// sessions, as of a single point in time.
type Occupancy struct {
	Slots          []models.Slot
	ActiveSessions int
}

// Store runs fn as one atomic unit. If fn returns an error every change
// made through tx is discarded and the error is returned unchanged.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
