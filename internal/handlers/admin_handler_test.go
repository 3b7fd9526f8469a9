package handlers

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminHandler_CreditWallet(t *testing.T) {
	s := newTestServer(t, 1)
	s.register(t, "CREDIT01", 3)

	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"credit", `{"rfid":"credit01","amount":"7.50"}`, http.StatusOK, `{"success":true,"newBalance":"10.5"}`},
		{"numeric amount", `{"rfid":"CREDIT01","amount":1}`, http.StatusOK, `{"success":true,"newBalance":"11.5"}`},
		{"zero amount", `{"rfid":"CREDIT01","amount":0}`, http.StatusBadRequest, `{"success":false,"reason":"InvalidAmount"}`},
		{"negative amount", `{"rfid":"CREDIT01","amount":-4}`, http.StatusBadRequest, `{"success":false,"reason":"InvalidAmount"}`},
		{"too many decimals", `{"rfid":"CREDIT01","amount":"0.00005"}`, http.StatusBadRequest, `{"success":false,"reason":"InvalidAmount"}`},
		{"unknown tag", `{"rfid":"NOBODY01","amount":4}`, http.StatusNotFound, `{"success":false,"reason":"UnknownTag"}`},
		{"bad tag", `{"rfid":"x","amount":4}`, http.StatusBadRequest, `{"success":false,"reason":"InvalidTag"}`},
		{"bad body", `{"rfid":"CREDIT01","amount":"lots"}`, http.StatusBadRequest, `{"success":false,"reason":"InvalidAmount"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/admin/wallets/credit", tt.body, s.admin)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestAdminHandler_LedgerAndReconcile(t *testing.T) {
	s := newTestServer(t, 1)
	s.register(t, "LEDGER01", 10)
	s.do(t, http.MethodPost, "/api/v1/gate/entry", `{"rfid":"LEDGER01"}`, "")
	s.do(t, http.MethodPost, "/api/v1/gate/exit", `{"rfid":"LEDGER01"}`, "")

	rec := s.do(t, http.MethodGet, "/api/v1/admin/wallets/ledger01/ledger", "", s.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[ledgerResponse](t, rec)
	assert.Equal(t, "LEDGER01", history.RFID)
	require.Len(t, history.Entries, 2)
	assert.Equal(t, models.EntryTypeCredit, history.Entries[0].EntryType)
	assert.Equal(t, models.EntryTypeDebit, history.Entries[1].EntryType)
	assert.Equal(t, "ops-1", history.Entries[0].Actor)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/wallets/LEDGER01/reconcile", "", s.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	rc := decode[services.Reconciliation](t, rec)
	assert.True(t, rc.Consistent)
	assert.Equal(t, 2, rc.Entries)
	assert.True(t, decimal.NewFromInt(8).Equal(rc.DerivedBalance))

	rec = s.do(t, http.MethodGet, "/api/v1/admin/wallets/NOBODY01/ledger", "", s.admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/wallets/a-b/reconcile", "", s.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid tag")
	assert.Contains(t, rec.Body.String(), "'rfid' tag")
}

func TestAdminHandler_EmptyLedgerIsArray(t *testing.T) {
	s := newTestServer(t, 1)
	s.register(t, "EMPTY001", 0)

	rec := s.do(t, http.MethodGet, "/api/v1/admin/wallets/EMPTY001/ledger", "", s.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rfid":"EMPTY001","entries":[]}`, rec.Body.String())
}

func TestAdminHandler_TagProvisioning(t *testing.T) {
	s := newTestServer(t, 1)

	rec := s.do(t, http.MethodPost, "/api/v1/admin/tags", `{"rfid":"fresh001","initialBalance":"15"}`, s.admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	identity := decode[models.Identity](t, rec)
	assert.Equal(t, "FRESH001", identity.RFID)
	assert.True(t, identity.Active)
	assert.True(t, decimal.NewFromInt(15).Equal(identity.Balance))

	rec = s.do(t, http.MethodPost, "/api/v1/admin/tags", `{"rfid":"FRESH001"}`, s.admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/tags", `{"rfid":"FRESH002","initialBalance":-1}`, s.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/tags", `{"rfid":"??"}`, s.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/admin/tags/FRESH001/deactivate", "", s.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rfid":"FRESH001","active":false}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/gate/entry", `{"rfid":"FRESH001"}`, "")
	assert.JSONEq(t, `{"allowed":false,"reason":"TagInactive"}`, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/v1/admin/tags/FRESH001/reinstate", "", s.admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/gate/entry", `{"rfid":"FRESH001"}`, "")
	assert.JSONEq(t, `{"allowed":true,"slotId":1}`, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/v1/admin/tags/NOBODY01/deactivate", "", s.admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
