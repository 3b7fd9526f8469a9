package audit

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types
const (
	EventLedgerCredit     = "LEDGER_CREDIT"
	EventLedgerDebit      = "LEDGER_DEBIT"
	EventSessionOpen      = "SESSION_OPEN"
	EventSessionClose     = "SESSION_CLOSE"
	EventTagProvisioned   = "TAG_PROVISIONED"
	EventTagStatus        = "TAG_STATUS"
	EventConsistencyFault = "CONSISTENCY_FAULT"
	EventSensorMismatch   = "SENSOR_MISMATCH"
	EventLedgerMismatch   = "LEDGER_MISMATCH"
)

// Event is one audit record. write flattens it into zap fields.
type Event struct {
	Timestamp time.Time
	EventType string
	RFID      string
	Reference string
	Amount    string
	Status    string
	Details   map[string]string
}

// Logger writes the operator-facing audit trail. It is safe to call on a
// nil *Logger, which drops events.
type Logger struct {
	log *zap.Logger
	now func() time.Time
}

// NewLogger names log "audit". Pass the parent logger, not a named child.
func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.L()
	}
	return &Logger{log: log.Named("audit"), now: time.Now}
}

func (a *Logger) LogLedger(eventType, rfid, entryID string, amount decimal.Decimal, reason, actor string) {
	a.write(Event{
		EventType: eventType,
		RFID:      rfid,
		Reference: entryID,
		Amount:    amount.String(),
		Status:    "SUCCESS",
		Details:   map[string]string{"reason": reason, "actor": actor},
	})
}

func (a *Logger) LogSession(eventType, rfid, sessionID string, slotID int, fee *decimal.Decimal) {
	ev := Event{
		EventType: eventType,
		RFID:      rfid,
		Reference: sessionID,
		Status:    "SUCCESS",
		Details:   map[string]string{"slot_id": strconv.Itoa(slotID)},
	}
	if fee != nil {
		ev.Amount = fee.String()
	}
	a.write(ev)
}

func (a *Logger) LogOperation(eventType, rfid, details string) {
	a.write(Event{
		EventType: eventType,
		RFID:      rfid,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

// LogFault records a condition an operator has to resolve by hand.
func (a *Logger) LogFault(eventType, op, rfid string, err error) {
	a.write(Event{
		EventType: eventType,
		RFID:      rfid,
		Status:    "FAILED",
		Details:   map[string]string{"op": op, "error": err.Error()},
	})
}

func (a *Logger) LogMismatch(eventType, reference string, details map[string]string) {
	a.write(Event{
		EventType: eventType,
		Reference: reference,
		Status:    "MISMATCH",
		Details:   details,
	})
}

func (a *Logger) write(ev Event) {
	if a == nil {
		return
	}
	ev.Timestamp = a.now()
	fields := []zap.Field{
		zap.Time("timestamp", ev.Timestamp),
		zap.String("event_type", ev.EventType),
		zap.String("status", ev.Status),
	}
	if ev.RFID != "" {
		fields = append(fields, zap.String("rfid", ev.RFID))
	}
	if ev.Reference != "" {
		fields = append(fields, zap.String("reference", ev.Reference))
	}
	if ev.Amount != "" {
		fields = append(fields, zap.String("amount", ev.Amount))
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("details", ev.Details))
	}
	if ev.Status == "SUCCESS" {
		a.log.Info("AUDIT", fields...)
		return
	}
	a.log.Error("AUDIT", fields...)
}
