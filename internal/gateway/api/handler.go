package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"
	"ms-grounds/internal/utils"
)

// Reconciling is the gateway reconciler surface the handler drives.
type Reconciling interface {
	InitiatePayment(ctx context.Context, reservationID string, method models.PaymentMethod, returnURL string) (*models.GatewayInitiation, error)
	ReconcileCallback(ctx context.Context, method models.PaymentMethod, token string) (*models.PaymentRecord, error)
	ReconcileWebhook(ctx context.Context, method models.PaymentMethod, payload []byte, signature string) (*models.PaymentRecord, error)
}

// LedgerAPI is the ledger surface for cash payments, balances and history.
type LedgerAPI interface {
	RecordPayment(ctx context.Context, reservationID string, method models.PaymentMethod, amount float64, externalTxID string) (*models.PaymentRecord, error)
	GetBalance(ctx context.Context, reservationID string) (*models.BalanceResponse, error)
	ListByReservation(ctx context.Context, reservationID string) ([]*models.PaymentRecord, error)
}

type Handler struct {
	Reconciler Reconciling
	Ledger     LedgerAPI
	Logger     *logger.Logger
}

func NewHandler(reconciler Reconciling, ledger LedgerAPI, log *logger.Logger) *Handler {
	return &Handler{Reconciler: reconciler, Ledger: ledger, Logger: log}
}

// InitiatePayment starts an online checkout for the remaining balance.
// POST /api/payment/initiate
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.ReservationID == "" || req.Method == "" {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", "reservation_id and method are required")
		return
	}
	if req.Method == models.MethodCash {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", "cash payments use the cash endpoint")
		return
	}

	initiation, err := h.Reconciler.InitiatePayment(r.Context(), req.ReservationID, req.Method, req.ReturnURL)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Payment initiated", initiation)
}

// Callback is where the gateway sends the payer back after checkout.
// GET /api/payment/callback/{gateway}?token=...
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	method := models.PaymentMethod(chi.URLParam(r, "gateway"))
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", "token is required")
		return
	}

	record, err := h.Reconciler.ReconcileCallback(r.Context(), method, token)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Payment recorded", record)
}

// Webhook receives the gateway's server-to-server notification. This route
// is mounted outside the auth middleware; the HMAC signature is the only
// credential.
// POST /api/payment/webhook/{gateway}
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	method := models.PaymentMethod(chi.URLParam(r, "gateway"))
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", "unreadable body")
		return
	}
	signature := r.Header.Get("X-Gateway-Signature")

	record, err := h.Reconciler.ReconcileWebhook(r.Context(), method, payload, signature)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Payment recorded", record)
}

// RecordCashPayment records an on-site cash payment straight into the ledger.
// POST /api/payment/cash
func (h *Handler) RecordCashPayment(w http.ResponseWriter, r *http.Request) {
	var req models.CashPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.ReservationID == "" {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", "reservation_id is required")
		return
	}

	record, err := h.Ledger.RecordPayment(r.Context(), req.ReservationID, models.MethodCash, req.Amount, "")
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, "Cash payment recorded", record)
}

// GetBalance reports total, paid and remaining for a reservation.
// GET /api/payment/balance/{reservationId}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")

	balance, err := h.Ledger.GetBalance(r.Context(), reservationID)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Balance retrieved", balance)
}

// ListPayments returns the payment history of a reservation.
// GET /api/payment/history/{reservationId}
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")

	records, err := h.Ledger.ListByReservation(r.Context(), reservationID)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, "Payments retrieved", records)
}

func (h *Handler) writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, models.ErrIntegrity):
		utils.WriteError(w, http.StatusBadRequest, "Verification failed", err.Error())
	case errors.Is(err, models.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, models.ErrOverPayment),
		errors.Is(err, models.ErrNothingOwed),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrPaymentIncomplete):
		utils.WriteError(w, http.StatusConflict, "Payment rejected", err.Error())
	case errors.Is(err, models.ErrGatewayUnavailable):
		utils.WriteError(w, http.StatusBadGateway, "Gateway unavailable", err.Error())
	default:
		h.Logger.Error("PAYMENT_API", "Unhandled payment error: "+err.Error())
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error", "unexpected error")
	}
}
