package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/smartpark/backend/internal/services"
	"github.com/smartpark/backend/internal/store"
	"go.uber.org/zap"
)

// GateHandler is the decision API called by gate readers and polled by
// dashboards. It validates input and delegates; it holds no state.
type GateHandler struct {
	sessions  *services.SessionManager
	slots     *services.SlotPool
	validator *services.ValidationHelper
}

func NewGateHandler(sessions *services.SessionManager, slots *services.SlotPool) *GateHandler {
	return &GateHandler{
		sessions:  sessions,
		slots:     slots,
		validator: services.NewValidationHelper(),
	}
}

type scanRequest struct {
	RFID string `json:"rfid" validate:"required,rfid"`
}

type sensorRequest struct {
	Status string `json:"status" validate:"required,oneof=available occupied"`
}

// decisionStatus maps a decision error to the HTTP status. Denials are 200
// like admissions; only a fault is 503.
func decisionStatus(err error) int {
	if err != nil {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func (h *GateHandler) readTag(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return "", false
	}
	req.RFID = services.NormalizeTag(req.RFID)
	if err := h.validator.ValidateStruct(&req); err != nil {
		return "", false
	}
	return req.RFID, true
}

// Entry handles POST /gate/entry {rfid}.
func (h *GateHandler) Entry(w http.ResponseWriter, r *http.Request) {
	rfid, ok := h.readTag(w, r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, services.EntryDecision{Reason: services.ReasonInvalidTag})
		return
	}

	decision, err := h.sessions.Enter(r.Context(), rfid)
	writeJSON(w, decisionStatus(err), decision)
}

// Exit handles POST /gate/exit {rfid}.
func (h *GateHandler) Exit(w http.ResponseWriter, r *http.Request) {
	rfid, ok := h.readTag(w, r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, services.ExitDecision{Reason: services.ReasonInvalidTag})
		return
	}

	decision, err := h.sessions.Exit(r.Context(), rfid)
	writeJSON(w, decisionStatus(err), decision)
}

// Status handles GET /parking/status.
func (h *GateHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.sessions.Status(r.Context())
	if err != nil {
		services.SendErrorResponse(w, "Parking status unavailable", http.StatusServiceUnavailable, nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SensorReport handles POST /slots/{slotId}/sensor {status}.
func (h *GateHandler) SensorReport(w http.ResponseWriter, r *http.Request) {
	slotID, err := strconv.Atoi(chi.URLParam(r, "slotId"))
	if err != nil || slotID <= 0 {
		services.SendErrorResponse(w, "Invalid slot id", http.StatusBadRequest, nil)
		return
	}

	var req sensorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	report, err := h.slots.ReportSensor(r.Context(), slotID, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		services.SendErrorResponse(w, "Slot not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		zap.L().Error("Sensor report failed", zap.Int("slot_id", slotID), zap.Error(err))
		services.SendErrorResponse(w, "Slot state unavailable", http.StatusServiceUnavailable, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
