package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/jaksoftwares/opulence-payments/internal/mpesa"
	"github.com/jaksoftwares/opulence-payments/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	Payments *services.PaymentService
}

func NewHandler(payments *services.PaymentService) *Handler {
	return &Handler{Payments: payments}
}

type initiateRequest struct {
	OrderID string          `json:"orderId"`
	Phone   string          `json:"phone"`
	Amount  decimal.Decimal `json:"amount"`
}

type initiateResponse struct {
	PaymentID         string `json:"paymentId"`
	CheckoutRequestID string `json:"checkoutRequestId"`
	MerchantRequestID string `json:"merchantRequestId"`
	Status            string `json:"status"`
	CustomerMessage   string `json:"customerMessage,omitempty"`
}

type statusResponse struct {
	CheckoutRequestID string  `json:"checkoutRequestId"`
	Status            string  `json:"status"`
	Amount            string  `json:"amount"`
	ResultCode        *int    `json:"resultCode,omitempty"`
	ResultDesc        *string `json:"resultDesc,omitempty"`
	Receipt           *string `json:"receipt,omitempty"`
	TransactionDate   string  `json:"transactionDate,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

type orderPaymentResponse struct {
	OrderID       string          `json:"orderId"`
	OrderNumber   string          `json:"orderNumber"`
	PaymentStatus string          `json:"paymentStatus"`
	Payment       *statusResponse `json:"payment,omitempty"`
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	result, err := h.Payments.InitiatePayment(r.Context(), req.OrderID, req.Phone, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPhone):
			writeError(w, http.StatusBadRequest, "invalid phone number")
		case errors.Is(err, services.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "amount must be positive")
		case errors.Is(err, services.ErrAmountExceedsOrder):
			writeError(w, http.StatusBadRequest, "amount exceeds order total")
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrAlreadyPaid):
			writeError(w, http.StatusConflict, "order already paid")
		case errors.Is(err, services.ErrGatewayUnavailable):
			writeError(w, http.StatusBadGateway, "payment gateway unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "initiate payment failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, initiateResponse{
		PaymentID:         result.PaymentID,
		CheckoutRequestID: result.CheckoutRequestID,
		MerchantRequestID: result.MerchantRequestID,
		Status:            string(result.Status),
		CustomerMessage:   result.CustomerMessage,
	})
}

func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var envelope mpesa.CallbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.Payments.HandleCallback(r.Context(), &envelope, body); err != nil {
		switch {
		case errors.Is(err, mpesa.ErrMalformedCallback):
			writeError(w, http.StatusBadRequest, "malformed callback")
		case errors.Is(err, services.ErrPaymentNotFound):
			writeError(w, http.StatusNotFound, "unknown checkout request id")
		default:
			// 500 so the gateway redelivers
			writeError(w, http.StatusInternalServerError, "callback processing failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (h *Handler) PollStatus(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutId")
	if checkoutID == "" {
		writeError(w, http.StatusBadRequest, "missing checkout request id")
		return
	}

	view, err := h.Payments.PollStatus(r.Context(), checkoutID)
	if err != nil {
		if errors.Is(err, services.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, "payment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "poll status failed")
		return
	}

	writeJSON(w, http.StatusOK, statusResponseOf(view))
}

func (h *Handler) OrderPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	view, err := h.Payments.OrderPayment(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "get order payment failed")
		return
	}

	resp := orderPaymentResponse{
		OrderID:       view.OrderID,
		OrderNumber:   view.OrderNumber,
		PaymentStatus: string(view.PaymentStatus),
	}
	if view.Payment != nil {
		resp.Payment = statusResponseOf(view.Payment)
	}
	writeJSON(w, http.StatusOK, resp)
}

func statusResponseOf(view *services.StatusView) *statusResponse {
	resp := &statusResponse{
		CheckoutRequestID: view.CheckoutRequestID,
		Status:            string(view.Status),
		Amount:            view.Amount.String(),
		ResultCode:        view.ResultCode,
		ResultDesc:        view.ResultDesc,
		Receipt:           view.Receipt,
		CreatedAt:         view.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         view.UpdatedAt.Format(time.RFC3339),
	}
	if view.TransactionDate != nil {
		resp.TransactionDate = view.TransactionDate.Format(time.RFC3339)
	}
	return resp
}
