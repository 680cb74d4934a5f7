package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"WalletLedger/internal/events"
	"WalletLedger/internal/models"
	"WalletLedger/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	Orders       *services.OrderService
	Wallets      *services.WalletService
	Provisioning *services.ProvisioningService
	Hub          *events.Hub
	Logger       *zap.Logger
}

type participantWallet struct {
	SenderWalletID   int64           `json:"senderWalletId"`
	ReceiverWalletID int64           `json:"receiverWalletId"`
	Amount           decimal.Decimal `json:"amount"`
}

type createOrderRequest struct {
	OrderID             uuid.UUID           `json:"orderId"`
	CurrencyID          int64               `json:"currencyId"`
	OrderTypeID         int64               `json:"orderTypeId"`
	TransactionType     string              `json:"transactionType"`
	AllowPartialSuccess bool                `json:"allowPartialSuccess"`
	ParticipantWallets  []participantWallet `json:"participantWallets"`
}

func NewHandler(orders *services.OrderService, wallets *services.WalletService, prov *services.ProvisioningService, hub *events.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Orders: orders, Wallets: wallets, Provisioning: prov, Hub: hub, Logger: logger}
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidOperation", "invalid json body")
		return
	}

	items := make([]services.TransferItem, 0, len(req.ParticipantWallets))
	for _, p := range req.ParticipantWallets {
		items = append(items, services.TransferItem{
			SenderWalletID:   p.SenderWalletID,
			ReceiverWalletID: p.ReceiverWalletID,
			Amount:           p.Amount,
		})
	}
	order, err := h.Orders.CreateOrder(r.Context(), appID, services.CreateOrderRequest{
		OrderID:             req.OrderID,
		CurrencyID:          req.CurrencyID,
		OrderTypeID:         req.OrderTypeID,
		TransactionType:     models.TransactionType(req.TransactionType),
		AllowPartialSuccess: req.AllowPartialSuccess,
		Items:               items,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	appID, orderID, ok := h.orderRef(w, r)
	if !ok {
		return
	}
	order, err := h.Orders.GetOrder(r.Context(), appID, orderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	appID, orderID, ok := h.orderRef(w, r)
	if !ok {
		return
	}
	order, err := h.Orders.Capture(r.Context(), appID, orderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) VoidOrder(w http.ResponseWriter, r *http.Request) {
	appID, orderID, ok := h.orderRef(w, r)
	if !ok {
		return
	}
	order, err := h.Orders.Void(r.Context(), appID, orderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Events streams the app's order events over a websocket.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	appID, ok := h.appID(w, r)
	if !ok {
		return
	}
	if h.Hub == nil {
		writeError(w, http.StatusNotFound, "NotExists", "event feed disabled")
		return
	}
	h.Hub.ServeWS(w, r, appID)
}

func (h *Handler) appID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	return h.pathInt(w, r, "appId")
}

func (h *Handler) orderRef(w http.ResponseWriter, r *http.Request) (int64, uuid.UUID, bool) {
	appID, ok := h.appID(w, r)
	if !ok {
		return 0, uuid.Nil, false
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidOperation", "invalid order id")
		return 0, uuid.Nil, false
	}
	return appID, orderID, true
}

func (h *Handler) pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidOperation", "invalid "+name)
		return 0, false
	}
	return v, true
}

// fail writes err using the ledger error mapping. System errors are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	kind := services.Kind(err)
	status := statusFor(kind)
	if kind == "" {
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, status, "Internal", "internal error")
		return
	}
	writeError(w, status, kind, err.Error())
}

func statusFor(kind string) int {
	switch kind {
	case "NotExists":
		return http.StatusNotFound
	case "InvalidOperation":
		return http.StatusBadRequest
	case "InsufficientBalance":
		return http.StatusUnprocessableEntity
	case "OrderAlreadySetAsRequestedState", "InvalidTransactionType":
		return http.StatusConflict
	case "LockTimeout", "Canceled":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "type": kind})
}
