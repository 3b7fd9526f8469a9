package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/middleware"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/services"
	"github.com/smartpark/backend/internal/store"
	"go.uber.org/zap"
)

// AdminHandler serves wallet refills, ledger inspection and tag
// provisioning. Every route sits behind the admin capability check.
type AdminHandler struct {
	wallet    *services.WalletLedger
	tags      *services.TagService
	validator *services.ValidationHelper
}

func NewAdminHandler(wallet *services.WalletLedger, tags *services.TagService) *AdminHandler {
	return &AdminHandler{
		wallet:    wallet,
		tags:      tags,
		validator: services.NewValidationHelper(),
	}
}

type creditRequest struct {
	RFID   string          `json:"rfid" validate:"required,rfid"`
	Amount decimal.Decimal `json:"amount"`
}

type registerTagRequest struct {
	RFID           string           `json:"rfid" validate:"required,rfid"`
	InitialBalance *decimal.Decimal `json:"initialBalance,omitempty"`
}

type ledgerResponse struct {
	RFID    string               `json:"rfid"`
	Entries []models.LedgerEntry `json:"entries"`
}

type tagStatusResponse struct {
	RFID   string `json:"rfid"`
	Active bool   `json:"active"`
}

// CreditWallet handles POST /admin/wallets/credit {rfid, amount}.
func (h *AdminHandler) CreditWallet(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, services.CreditResult{Reason: services.ReasonInvalidAmount})
		return
	}
	req.RFID = services.NormalizeTag(req.RFID)
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, services.CreditResult{Reason: services.ReasonInvalidTag})
		return
	}

	actor, _ := middleware.ActorFromContext(r.Context())
	result, err := h.wallet.CreditWallet(r.Context(), req.RFID, req.Amount, actor)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, result)
		return
	}

	status := http.StatusOK
	switch result.Reason {
	case services.ReasonForbidden:
		status = http.StatusForbidden
	case services.ReasonInvalidAmount:
		status = http.StatusBadRequest
	case services.ReasonUnknownTag:
		status = http.StatusNotFound
	}
	writeJSON(w, status, result)
}

func (h *AdminHandler) pathTag(w http.ResponseWriter, r *http.Request) (string, bool) {
	rfid := services.NormalizeTag(chi.URLParam(r, "rfid"))
	if err := h.validator.ValidateTag(rfid); err != nil {
		services.SendErrorResponse(w, "Invalid tag", http.StatusBadRequest, err)
		return "", false
	}
	return rfid, true
}

// LedgerHistory handles GET /admin/wallets/{rfid}/ledger.
func (h *AdminHandler) LedgerHistory(w http.ResponseWriter, r *http.Request) {
	rfid, ok := h.pathTag(w, r)
	if !ok {
		return
	}

	entries, err := h.wallet.History(r.Context(), rfid)
	if err != nil {
		h.sendServiceError(w, "ledger history", rfid, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, ledgerResponse{RFID: rfid, Entries: entries})
}

// Reconcile handles GET /admin/wallets/{rfid}/reconcile.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rfid, ok := h.pathTag(w, r)
	if !ok {
		return
	}

	rec, err := h.wallet.Reconcile(r.Context(), rfid)
	if err != nil {
		h.sendServiceError(w, "reconcile", rfid, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RegisterTag handles POST /admin/tags {rfid, initialBalance?}.
func (h *AdminHandler) RegisterTag(w http.ResponseWriter, r *http.Request) {
	var req registerTagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	req.RFID = services.NormalizeTag(req.RFID)
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	initial := decimal.Zero
	if req.InitialBalance != nil {
		initial = *req.InitialBalance
	}

	actor, _ := middleware.ActorFromContext(r.Context())
	identity, err := h.tags.Register(r.Context(), req.RFID, initial, actor)
	if err != nil {
		h.sendServiceError(w, "register tag", req.RFID, err)
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

// DeactivateTag handles PUT /admin/tags/{rfid}/deactivate.
func (h *AdminHandler) DeactivateTag(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// ReinstateTag handles PUT /admin/tags/{rfid}/reinstate.
func (h *AdminHandler) ReinstateTag(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *AdminHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	rfid, ok := h.pathTag(w, r)
	if !ok {
		return
	}

	actor, _ := middleware.ActorFromContext(r.Context())
	if err := h.tags.SetActive(r.Context(), rfid, active, actor); err != nil {
		h.sendServiceError(w, "set tag status", rfid, err)
		return
	}
	writeJSON(w, http.StatusOK, tagStatusResponse{RFID: rfid, Active: active})
}

func (h *AdminHandler) sendServiceError(w http.ResponseWriter, op, rfid string, err error) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		services.SendErrorResponse(w, err.Error(), http.StatusForbidden, nil)
	case errors.Is(err, services.ErrInvalidAmount):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrUnknownTag):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.Is(err, store.ErrDuplicateTag):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	default:
		zap.L().Error("Admin operation failed", zap.String("op", op), zap.String("rfid", rfid), zap.Error(err))
		services.SendErrorResponse(w, "Service unavailable", http.StatusServiceUnavailable, nil)
	}
}
