package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGateMetrics(reg)

	m.ObserveDecision("enter", "admitted", 5*time.Millisecond)
	m.ObserveDecision("enter", "LotFull", time.Millisecond)
	m.ObserveDecision("enter", "LotFull", time.Millisecond)
	m.IncFault("exit")
	m.SetOccupied(4)
	m.IncSensorMismatch()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("enter", "admitted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("enter", "lotfull")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faults.WithLabelValues("exit")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.occupied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sensorMismatches))
}

func TestGateMetrics_NilSafe(t *testing.T) {
	var m *GateMetrics
	assert.NotPanics(t, func() {
		m.ObserveDecision("exit", "admitted", time.Second)
		m.IncFault("exit")
		m.SetOccupied(1)
		m.IncSensorMismatch()
	})

	unregistered := NewGateMetrics(nil)
	assert.NotPanics(t, func() {
		unregistered.ObserveDecision("exit", "admitted", time.Second)
	})
}
