package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// The partial unique indexes back the engine's invariants: one active
// session per identity and one active session per slot.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id UUID PRIMARY KEY,
		rfid TEXT NOT NULL UNIQUE,
		balance NUMERIC(20,4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		version BIGINT NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS slots (
		id INTEGER PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'occupied')),
		occupant_id UUID REFERENCES identities(id),
		CHECK ((status = 'occupied') = (occupant_id IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		identity_id UUID NOT NULL REFERENCES identities(id),
		slot_id INTEGER NOT NULL REFERENCES slots(id),
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ,
		fee NUMERIC(20,4),
		status TEXT NOT NULL CHECK (status IN ('active', 'completed'))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_identity
		ON sessions (identity_id) WHERE status = 'active'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_slot
		ON sessions (slot_id) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id UUID PRIMARY KEY,
		seq BIGSERIAL UNIQUE,
		identity_id UUID NOT NULL REFERENCES identities(id),
		entry_type TEXT NOT NULL CHECK (entry_type IN ('CREDIT', 'DEBIT')),
		amount NUMERIC(20,4) NOT NULL CHECK (amount > 0),
		balance_before NUMERIC(20,4) NOT NULL,
		balance_after NUMERIC(20,4) NOT NULL CHECK (balance_after >= 0),
		reason TEXT NOT NULL,
		actor TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_identity_seq
		ON ledger_entries (identity_id, seq)`,
}

// InitSchema creates the tables the engine needs if they are missing.
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	zap.L().Info("Database schema ready")
	return nil
}

// EnsureSlots makes sure slots 1..total exist. Existing slots keep their state.
func EnsureSlots(ctx context.Context, db *sql.DB, total int) error {
	if total <= 0 {
		return fmt.Errorf("total slots must be positive, got %d", total)
	}
	if _, err := db.ExecContext(ctx, querySeedSlots, total); err != nil {
		return fmt.Errorf("failed to seed slots: %w", err)
	}
	zap.L().Info("Slot pool seeded", zap.Int("total_slots", total))
	return nil
}
