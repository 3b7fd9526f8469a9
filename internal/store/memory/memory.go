// Package memory is an in-process store.Store. A single mutex serializes
// units of work and each unit runs against a private copy of the state that
// replaces the shared state only on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/store"
)

var _ store.Store = (*Store)(nil)

type state struct {
	identities map[string]models.Identity
	tags       map[string]string
	slots      map[int]models.Slot
	sessions   map[string]models.Session
	ledger     map[string][]models.LedgerEntry
}

func newState() *state {
	return &state{
		identities: make(map[string]models.Identity),
		tags:       make(map[string]string),
		slots:      make(map[int]models.Slot),
		sessions:   make(map[string]models.Session),
		ledger:     make(map[string][]models.LedgerEntry),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.identities {
		c.identities[k] = v
	}
	for k, v := range s.tags {
		c.tags[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.ledger {
		c.ledger[k] = append([]models.LedgerEntry(nil), v...)
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

// New returns a store holding slots numbered 1..totalSlots.
func New(totalSlots int) *Store {
	st := newState()
	for id := 1; id <= totalSlots; id++ {
		st.slots[id] = models.Slot{ID: id, Status: models.SlotStatusAvailable}
	}
	return &Store{state: st}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

type memTx struct {
	st *state
}

func (t *memTx) IdentityByTag(_ context.Context, rfid string) (*models.Identity, error) {
	id, ok := t.st.tags[rfid]
	if !ok {
		return nil, store.ErrNotFound
	}
	identity := t.st.identities[id]
	return &identity, nil
}

func (t *memTx) LockIdentity(_ context.Context, identityID string) (*models.Identity, error) {
	identity, ok := t.st.identities[identityID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &identity, nil
}

func (t *memTx) InsertIdentity(_ context.Context, identity *models.Identity) error {
	if _, ok := t.st.tags[identity.RFID]; ok {
		return store.ErrDuplicateTag
	}
	t.st.identities[identity.ID] = *identity
	t.st.tags[identity.RFID] = identity.ID
	return nil
}

func (t *memTx) SetIdentityActive(_ context.Context, identityID string, active bool) error {
	identity, ok := t.st.identities[identityID]
	if !ok {
		return store.ErrNotFound
	}
	identity.Active = active
	t.st.identities[identityID] = identity
	return nil
}

func (t *memTx) UpdateBalance(_ context.Context, identityID string, balance decimal.Decimal, version int64) error {
	identity, ok := t.st.identities[identityID]
	if !ok {
		return store.ErrNotFound
	}
	if identity.Version != version {
		return fmt.Errorf("identity %s: %w", identityID, store.ErrConcurrentModification)
	}
	identity.Balance = balance
	identity.Version++
	t.st.identities[identityID] = identity
	return nil
}

func (t *memTx) AppendLedgerEntry(_ context.Context, entry *models.LedgerEntry) error {
	t.st.ledger[entry.IdentityID] = append(t.st.ledger[entry.IdentityID], *entry)
	return nil
}

func (t *memTx) LedgerEntries(_ context.Context, identityID string) ([]models.LedgerEntry, error) {
	return append([]models.LedgerEntry(nil), t.st.ledger[identityID]...), nil
}

func (t *memTx) ActiveSession(_ context.Context, identityID string) (*models.Session, error) {
	for _, session := range t.st.sessions {
		if session.IdentityID == identityID && session.Status == models.SessionStatusActive {
			s := session
			return &s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) InsertSession(_ context.Context, session *models.Session) error {
	if _, ok := t.st.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	t.st.sessions[session.ID] = *session
	return nil
}

func (t *memTx) CompleteSession(_ context.Context, session *models.Session) error {
	current, ok := t.st.sessions[session.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != models.SessionStatusActive {
		return fmt.Errorf("session %s is %s: %w", session.ID, current.Status, store.ErrConcurrentModification)
	}
	t.st.sessions[session.ID] = *session
	return nil
}

func (t *memTx) Occupancy(_ context.Context) (*store.Occupancy, error) {
	occ := &store.Occupancy{Slots: t.sortedSlots()}
	for _, session := range t.st.sessions {
		if session.Status == models.SessionStatusActive {
			occ.ActiveSessions++
		}
	}
	return occ, nil
}

func (t *memTx) ClaimSlot(_ context.Context, identityID string) (*models.Slot, error) {
	for _, slot := range t.sortedSlots() {
		if slot.Status != models.SlotStatusAvailable {
			continue
		}
		slot.Status = models.SlotStatusOccupied
		slot.OccupantID = identityID
		t.st.slots[slot.ID] = slot
		return &slot, nil
	}
	return nil, store.ErrNoSlotAvailable
}

func (t *memTx) ReleaseSlot(_ context.Context, slotID int, identityID string) error {
	slot, ok := t.st.slots[slotID]
	if !ok {
		return store.ErrNotFound
	}
	if slot.Status != models.SlotStatusOccupied {
		return fmt.Errorf("slot %d: %w", slotID, store.ErrSlotNotOccupied)
	}
	if slot.OccupantID != identityID {
		return fmt.Errorf("slot %d held by %s, not %s: %w", slotID, slot.OccupantID, identityID, store.ErrSlotNotOccupied)
	}
	slot.Status = models.SlotStatusAvailable
	slot.OccupantID = ""
	t.st.slots[slotID] = slot
	return nil
}

func (t *memTx) Slot(_ context.Context, slotID int) (*models.Slot, error) {
	slot, ok := t.st.slots[slotID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &slot, nil
}

func (t *memTx) sortedSlots() []models.Slot {
	slots := make([]models.Slot, 0, len(t.st.slots))
	for _, slot := range t.st.slots {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	return slots
}
