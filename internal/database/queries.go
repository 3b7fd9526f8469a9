package database

const (
	querySeedSlots = `
		INSERT INTO slots (id, status)
		SELECT gs, 'available' FROM generate_series(1, $1) AS gs
		ON CONFLICT (id) DO NOTHING`

	// Identity queries
	queryIdentityByTag = `
		SELECT id, rfid, balance, version, active, created_at, updated_at
		FROM identities
		WHERE rfid = $1
		FOR UPDATE`

	queryLockIdentity = `
		SELECT id, rfid, balance, version, active, created_at, updated_at
		FROM identities
		WHERE id = $1
		FOR UPDATE`

	queryInsertIdentity = `
		INSERT INTO identities (id, rfid, balance, version, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	querySetIdentityActive = `
		UPDATE identities
		SET active = $1, updated_at = $2
		WHERE id = $3`

	queryUpdateBalance = `
		UPDATE identities
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`

	// Ledger queries
	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (id, identity_id, entry_type, amount, balance_before, balance_after, reason, actor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`

	queryLedgerEntries = `
		SELECT id, identity_id, entry_type, amount, balance_before, balance_after, reason, COALESCE(actor, ''), created_at
		FROM ledger_entries
		WHERE identity_id = $1
		ORDER BY seq`

	// Session queries
	queryActiveSession = `
		SELECT id, identity_id, slot_id, entry_time, status
		FROM sessions
		WHERE identity_id = $1 AND status = 'active'
		FOR UPDATE`

	queryInsertSession = `
		INSERT INTO sessions (id, identity_id, slot_id, entry_time, status)
		VALUES ($1, $2, $3, $4, $5)`

	queryCompleteSession = `
		UPDATE sessions
		SET exit_time = $1, fee = $2, status = $3
		WHERE id = $4 AND status = 'active'`

	// Slot queries. SKIP LOCKED lets concurrent claims move on to the next
	// free slot instead of waiting on a row another claim already holds.
	queryClaimSlot = `
		UPDATE slots
		SET status = 'occupied', occupant_id = $1
		WHERE id = (
			SELECT id FROM slots
			WHERE status = 'available'
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, status, COALESCE(occupant_id::text, '')`

	queryReleaseSlot = `
		UPDATE slots
		SET status = 'available', occupant_id = NULL
		WHERE id = $1 AND status = 'occupied' AND occupant_id = $2`

	querySlot = `
		SELECT id, status, COALESCE(occupant_id::text, '')
		FROM slots
		WHERE id = $1`

	// One statement, one snapshot: the slot rows and the active session
	// count cannot straddle a concurrent commit. The LEFT JOIN keeps the
	// count when the slot table is empty.
	queryOccupancy = `
		WITH active AS (
			SELECT COUNT(*) AS n FROM sessions WHERE status = 'active'
		)
		SELECT s.id, s.status, COALESCE(s.occupant_id::text, ''), active.n
		FROM active
		LEFT JOIN slots s ON TRUE
		ORDER BY s.id`
)
