package audit

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	a := NewLogger(zap.New(core))

	a.LogLedger(EventLedgerDebit, "A1B2C3D4", "entry-1", decimal.NewFromInt(6), "parking fee", "")
	a.LogFault(EventConsistencyFault, "exit", "A1B2C3D4", errors.New("slot 1: slot not occupied"))

	entries := logs.All()
	assert.Len(t, entries, 2)

	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, EventLedgerDebit, entries[0].ContextMap()["event_type"])
	assert.Equal(t, "6", entries[0].ContextMap()["amount"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "FAILED", entries[1].ContextMap()["status"])
}

func TestNewLogger_GlobalLoggerIsNamedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	NewLogger(zap.L()).LogOperation(EventTagStatus, "A1B2C3D4", "deactivated")
	NewLogger(nil).LogOperation(EventTagStatus, "A1B2C3D4", "reinstated")

	entries := logs.All()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, "audit", entry.LoggerName)
	}
}

func TestLogger_NilSafe(t *testing.T) {
	var a *Logger
	assert.NotPanics(t, func() {
		a.LogOperation(EventTagStatus, "A1B2C3D4", "deactivated")
	})
}
