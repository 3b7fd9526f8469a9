package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GateMetrics records gate decisions and slot occupancy.
type GateMetrics struct {
	decisions        *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	occupied         prometheus.Gauge
	faults           *prometheus.CounterVec
	sensorMismatches prometheus.Counter
}

// NewGateMetrics registers the gate metrics on the provided registerer.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	if reg == nil {
		return &GateMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_gate_decisions_total",
		Help: "Gate decisions by operation and outcome.",
	}, []string{"op", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "parking_gate_decision_duration_seconds",
		Help:    "Time taken to reach a gate decision.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
	occupied := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_slots_occupied",
		Help: "Occupied slots as of the last status read.",
	})
	faults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_consistency_faults_total",
		Help: "Requests that failed closed because of a store or consistency fault.",
	}, []string{"op"})
	sensorMismatches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parking_sensor_mismatches_total",
		Help: "Sensor reports that disagree with recorded slot state.",
	})
	reg.MustRegister(decisions, duration, occupied, faults, sensorMismatches)
	return &GateMetrics{
		decisions:        decisions,
		duration:         duration,
		occupied:         occupied,
		faults:           faults,
		sensorMismatches: sensorMismatches,
	}
}

// ObserveDecision records the outcome ("admitted" or a denial reason) and latency.
func (m *GateMetrics) ObserveDecision(op, outcome string, took time.Duration) {
	if m == nil || m.decisions == nil {
		return
	}
	m.decisions.WithLabelValues(normalizeLabel(op), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(op)).Observe(took.Seconds())
}

func (m *GateMetrics) IncFault(op string) {
	if m == nil || m.faults == nil {
		return
	}
	m.faults.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *GateMetrics) SetOccupied(n int) {
	if m == nil || m.occupied == nil {
		return
	}
	m.occupied.Set(float64(n))
}

func (m *GateMetrics) IncSensorMismatch() {
	if m == nil || m.sensorMismatches == nil {
		return
	}
	m.sensorMismatches.Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
