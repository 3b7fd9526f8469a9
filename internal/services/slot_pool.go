package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/smartpark/backend/internal/audit"
	"github.com/smartpark/backend/internal/metrics"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/store"
	"go.uber.org/zap"
)

// SlotPool hands out physical slots. Acquire and Release run inside the
// caller's unit of work so the slot transition commits with the session.
type SlotPool struct {
	store   store.Store
	audit   *audit.Logger
	metrics *metrics.GateMetrics
	timeout time.Duration
}

// PoolSnapshot is a consistent view of the slot table and the number of
// active sessions taken at the same instant.
type PoolSnapshot struct {
	Slots          []models.Slot
	Total          int
	Occupied       int
	Available      int
	ActiveSessions int
}

// SensorReport compares what a bay sensor sees with what the engine recorded.
type SensorReport struct {
	SlotID     int    `json:"slotId"`
	Reported   string `json:"reported"`
	Recorded   string `json:"recorded"`
	Consistent bool   `json:"consistent"`
}

func NewSlotPool(st store.Store, auditLogger *audit.Logger, gm *metrics.GateMetrics, timeout time.Duration) *SlotPool {
	return &SlotPool{
		store:   st,
		audit:   auditLogger,
		metrics: gm,
		timeout: timeout,
	}
}

// Acquire claims the lowest-numbered available slot for identityID, or
// returns ErrLotFull. It never waits for a slot to free up.
func (p *SlotPool) Acquire(ctx context.Context, tx store.Tx, identityID string) (*models.Slot, error) {
	slot, err := tx.ClaimSlot(ctx, identityID)
	if errors.Is(err, store.ErrNoSlotAvailable) {
		return nil, ErrLotFull
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// Release frees slotID on behalf of identityID. A slot that is already
// available, or held by another identity, means a session and its slot
// have drifted apart; that is reported as ErrInconsistent and nothing is
// changed.
func (p *SlotPool) Release(ctx context.Context, tx store.Tx, slotID int, identityID string) error {
	err := tx.ReleaseSlot(ctx, slotID, identityID)
	if errors.Is(err, store.ErrSlotNotOccupied) || errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: release slot %d: %v", ErrInconsistent, slotID, err)
	}
	return err
}

// Snapshot reads the pool inside tx.
func (p *SlotPool) Snapshot(ctx context.Context, tx store.Tx) (PoolSnapshot, error) {
	occ, err := tx.Occupancy(ctx)
	if err != nil {
		return PoolSnapshot{}, err
	}
	snap := PoolSnapshot{Slots: occ.Slots, Total: len(occ.Slots), ActiveSessions: occ.ActiveSessions}
	for _, slot := range occ.Slots {
		if slot.Occupied() {
			snap.Occupied++
		}
	}
	snap.Available = snap.Total - snap.Occupied
	return snap, nil
}

// ReportSensor checks a sensor reading against the recorded slot state. The
// slot is never modified: a disagreement is surfaced to operators only.
func (p *SlotPool) ReportSensor(ctx context.Context, slotID int, reported string) (SensorReport, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var recorded string
	err := p.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		slot, err := tx.Slot(ctx, slotID)
		if err != nil {
			return err
		}
		recorded = slot.Status
		return nil
	})
	if err != nil {
		return SensorReport{}, err
	}

	report := SensorReport{
		SlotID:     slotID,
		Reported:   reported,
		Recorded:   recorded,
		Consistent: reported == recorded,
	}
	if !report.Consistent {
		zap.L().Warn("Sensor disagrees with recorded slot state",
			zap.Int("slot_id", slotID),
			zap.String("reported", reported),
			zap.String("recorded", recorded))
		p.audit.LogMismatch(audit.EventSensorMismatch, strconv.Itoa(slotID), map[string]string{
			"reported": reported,
			"recorded": recorded,
		})
		p.metrics.IncSensorMismatch()
	}
	return report, nil
}
