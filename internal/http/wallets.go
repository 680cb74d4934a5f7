package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"WalletLedger/internal/services"

	"github.com/shopspring/decimal"
)

type setMinBalanceRequest struct {
	CurrencyID int64           `json:"currencyId"`
	MinBalance decimal.Decimal `json:"minBalance"`
}

func (h *Handler) CreateApp(w http.ResponseWriter, r *http.Request) {
	app, err := h.Provisioning.CreateApp(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) CreateCurrency(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	c, err := h.Provisioning.CreateCurrency(r.Context(), appID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	wallet, err := h.Provisioning.CreateWallet(r.Context(), appID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wallet)
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	walletID, ok := h.pathInt(w, r, "walletId")
	if !ok {
		return
	}
	wallet, err := h.Wallets.GetWallet(r.Context(), appID, walletID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// SetMinBalance responds with the whole wallet so clients see every floor at once.
func (h *Handler) SetMinBalance(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	walletID, ok := h.pathInt(w, r, "walletId")
	if !ok {
		return
	}
	var req setMinBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidOperation", "invalid json body")
		return
	}
	if _, err := h.Wallets.SetMinBalance(r.Context(), appID, walletID, req.CurrencyID, req.MinBalance); err != nil {
		h.fail(w, err)
		return
	}
	wallet, err := h.Wallets.GetWallet(r.Context(), appID, walletID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (h *Handler) GetWalletTransactions(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	walletID, err := strconv.ParseInt(q.Get("walletId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidOperation", "invalid walletId")
		return
	}

	var hq services.HistoryQuery
	bad := ""
	if hq.ParticipantWalletID, err = optInt(q.Get("participantWalletId")); err != nil {
		bad = "participantWalletId"
	}
	if hq.OrderTypeID, err = optInt(q.Get("orderTypeId")); err != nil {
		bad = "orderTypeId"
	}
	if hq.CurrencyID, err = optInt(q.Get("currencyId")); err != nil {
		bad = "currencyId"
	}
	if hq.BeginTime, err = optTime(q.Get("beginTime")); err != nil {
		bad = "beginTime"
	}
	if hq.EndTime, err = optTime(q.Get("endTime")); err != nil {
		bad = "endTime"
	}
	if v := q.Get("pageSize"); v != "" {
		if hq.PageSize, err = strconv.Atoi(v); err != nil {
			bad = "pageSize"
		}
	}
	if v := q.Get("pageNumber"); v != "" {
		if hq.PageNumber, err = strconv.Atoi(v); err != nil {
			bad = "pageNumber"
		}
	}
	if bad != "" {
		writeError(w, http.StatusBadRequest, "InvalidOperation", "invalid "+bad)
		return
	}

	items, err := h.Wallets.GetWalletTransactions(r.Context(), appID, walletID, hq)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func optInt(v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func optTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
