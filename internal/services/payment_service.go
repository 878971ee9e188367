package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jaksoftwares/opulence-payments/internal/metrics"
	"github.com/jaksoftwares/opulence-payments/internal/models"
	"github.com/jaksoftwares/opulence-payments/internal/mpesa"
	"github.com/jaksoftwares/opulence-payments/internal/phone"
	"github.com/jaksoftwares/opulence-payments/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrAmountExceedsOrder = errors.New("amount exceeds order total")
	ErrOrderNotFound      = errors.New("order not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrAlreadyPaid        = errors.New("order already paid")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Store is the persistence surface the reconciliation logic needs. The
// terminal-state rule lives in the store's conditional updates, not
// here; this service only decides which transition to request.
type Store interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetActivePayment(ctx context.Context, orderID string) (*models.Payment, error)
	GetPaymentByCheckoutID(ctx context.Context, checkoutID string) (*models.Payment, error)
	SavePaymentAttempt(ctx context.Context, p *models.Payment) error
	CompletePayment(ctx context.Context, params store.CompletionParams) (bool, error)
	FailPayment(ctx context.Context, checkoutID string, resultCode int, resultDesc string, rawPayload []byte) (bool, error)
}

type Gateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (*mpesa.STKQueryResponse, error)
}

type PaymentService struct {
	Store   Store
	Gateway Gateway
}

type InitiateResult struct {
	PaymentID         string
	CheckoutRequestID string
	MerchantRequestID string
	Status            models.PaymentStatus
	CustomerMessage   string
}

// InitiatePayment validates the request, submits an STK push and
// persists the resulting payment attempt. Nothing is written when the
// gateway cannot be reached.
func (s *PaymentService) InitiatePayment(ctx context.Context, orderID, rawPhone string, amount decimal.Decimal) (*InitiateResult, error) {
	msisdn, err := phone.Normalize(rawPhone)
	if err != nil {
		metrics.PaymentsInitiated.WithLabelValues("validation_error").Inc()
		return nil, ErrInvalidPhone
	}
	if !amount.IsPositive() {
		metrics.PaymentsInitiated.WithLabelValues("validation_error").Inc()
		return nil, ErrInvalidAmount
	}

	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.PaymentStatus == models.OrderPaymentCompleted {
		return nil, ErrAlreadyPaid
	}
	if amount.GreaterThan(order.Total) {
		metrics.PaymentsInitiated.WithLabelValues("validation_error").Inc()
		return nil, ErrAmountExceedsOrder
	}

	resp, err := s.Gateway.STKPush(ctx, mpesa.STKPushRequest{
		Phone:            msisdn,
		Amount:           amount,
		AccountReference: order.OrderNumber,
		Description:      "Payment for order " + order.OrderNumber,
	})
	if err != nil {
		metrics.PaymentsInitiated.WithLabelValues("gateway_error").Inc()
		log.WithFields(log.Fields{"order_id": orderID, "error": err}).Error("stk push failed")
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	payment := &models.Payment{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		Amount:            amount,
		PhoneNumber:       msisdn,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		Status:            models.PaymentProcessing,
	}
	if !resp.Accepted() {
		payment.Status = models.PaymentFailed
		if code, convErr := responseCode(resp.ResponseCode); convErr == nil {
			payment.ResultCode = &code
		}
		desc := resp.ResponseDescription
		payment.ResultDesc = &desc
	}

	if err := s.Store.SavePaymentAttempt(ctx, payment); err != nil {
		return nil, err
	}

	outcome := "accepted"
	if payment.Status == models.PaymentFailed {
		outcome = "rejected"
	}
	metrics.PaymentsInitiated.WithLabelValues(outcome).Inc()
	log.WithFields(log.Fields{
		"order_id":            order.ID,
		"checkout_request_id": resp.CheckoutRequestID,
		"status":              payment.Status,
	}).Info("payment initiated")

	return &InitiateResult{
		PaymentID:         payment.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Status:            payment.Status,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// HandleCallback applies the gateway's asynchronous result exactly once.
// Redeliveries are acknowledged without effect; a completed payment is
// never regressed. Persistence failures propagate so the gateway
// retries delivery.
func (s *PaymentService) HandleCallback(ctx context.Context, envelope *mpesa.CallbackEnvelope, rawBody []byte) error {
	cb, err := envelope.Callback()
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues("malformed").Inc()
		log.Warn("malformed stk callback dropped")
		return err
	}

	if _, err := s.Store.GetPaymentByCheckoutID(ctx, cb.CheckoutRequestID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.CallbacksTotal.WithLabelValues("orphaned").Inc()
			log.WithField("checkout_request_id", cb.CheckoutRequestID).Warn("callback for unknown checkout id")
			return ErrPaymentNotFound
		}
		return err
	}

	logger := log.WithFields(log.Fields{
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         cb.ResultCode,
	})

	if cb.Succeeded() {
		meta := cb.CallbackMetadata
		params := store.CompletionParams{
			CheckoutRequestID: cb.CheckoutRequestID,
			ResultCode:        cb.ResultCode,
			ResultDesc:        cb.ResultDesc,
			RawPayload:        rawBody,
		}
		if receipt := meta.Receipt(); receipt != "" {
			params.Receipt = &receipt
		}
		if txDate, ok := meta.TransactionDate(); ok {
			params.TransactionDate = &txDate
		}
		if msisdn := meta.PhoneNumber(); msisdn != "" {
			params.PhoneNumber = &msisdn
		}

		applied, err := s.Store.CompletePayment(ctx, params)
		if err != nil {
			return err
		}
		if !applied {
			metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
			logger.Info("callback redelivery ignored, payment already completed")
			return nil
		}
		metrics.CallbacksTotal.WithLabelValues("completed").Inc()
		logger.WithField("receipt", meta.Receipt()).Info("payment completed via callback")
		return nil
	}

	applied, err := s.Store.FailPayment(ctx, cb.CheckoutRequestID, cb.ResultCode, cb.ResultDesc, rawBody)
	if err != nil {
		return err
	}
	if !applied {
		metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
		logger.Info("failure callback ignored, payment already completed")
		return nil
	}
	metrics.CallbacksTotal.WithLabelValues("failed").Inc()
	logger.Info("payment failed via callback")
	return nil
}

type StatusView struct {
	CheckoutRequestID string
	Status            models.PaymentStatus
	Amount            decimal.Decimal
	ResultCode        *int
	ResultDesc        *string
	Receipt           *string
	TransactionDate   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PollStatus resolves a payment's outcome on behalf of the client. A
// payment already settled by the callback is answered from the local
// row; a still-processing one triggers a synchronous gateway query.
// Gateway trouble during the query degrades to the last known state.
func (s *PaymentService) PollStatus(ctx context.Context, checkoutID string) (*StatusView, error) {
	p, err := s.Store.GetPaymentByCheckoutID(ctx, checkoutID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if p.Status != models.PaymentProcessing {
		metrics.PollsTotal.WithLabelValues("cached").Inc()
		return viewOf(p), nil
	}

	logger := log.WithField("checkout_request_id", checkoutID)

	q, err := s.Gateway.STKQuery(ctx, checkoutID)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("degraded").Inc()
		logger.WithField("error", err).Warn("stk query failed, returning last known state")
		return viewOf(p), nil
	}

	code, err := q.ResultCodeInt()
	if err != nil {
		metrics.PollsTotal.WithLabelValues("still_processing").Inc()
		return viewOf(p), nil
	}

	switch {
	case code == 0:
		// The query response carries no receipt; the callback fills
		// that in if it still arrives.
		if _, err := s.Store.CompletePayment(ctx, store.CompletionParams{
			CheckoutRequestID: checkoutID,
			ResultCode:        code,
			ResultDesc:        q.ResultDesc,
		}); err != nil {
			return nil, err
		}
		metrics.PollsTotal.WithLabelValues("completed").Inc()
		logger.Info("payment completed via poll")
	case mpesa.IsKnownFailureCode(code):
		if _, err := s.Store.FailPayment(ctx, checkoutID, code, q.ResultDesc, nil); err != nil {
			return nil, err
		}
		metrics.PollsTotal.WithLabelValues("failed").Inc()
		logger.WithField("result_code", code).Info("payment failed via poll")
	default:
		// Not a terminal code; the gateway is still working on it.
		metrics.PollsTotal.WithLabelValues("still_processing").Inc()
		return viewOf(p), nil
	}

	updated, err := s.Store.GetPaymentByCheckoutID(ctx, checkoutID)
	if err != nil {
		return viewOf(p), nil
	}
	return viewOf(updated), nil
}

type OrderPaymentView struct {
	OrderID       string
	OrderNumber   string
	PaymentStatus models.OrderPaymentStatus
	Payment       *StatusView
}

// OrderPayment is the read-only view the storefront and admin panel use
// to display payment state for an order.
func (s *PaymentService) OrderPayment(ctx context.Context, orderID string) (*OrderPaymentView, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	view := &OrderPaymentView{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentStatus: order.PaymentStatus,
	}

	p, err := s.Store.GetActivePayment(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return view, nil
		}
		return nil, err
	}
	view.Payment = viewOf(p)
	return view, nil
}

func viewOf(p *models.Payment) *StatusView {
	return &StatusView{
		CheckoutRequestID: p.CheckoutRequestID,
		Status:            p.Status,
		Amount:            p.Amount,
		ResultCode:        p.ResultCode,
		ResultDesc:        p.ResultDesc,
		Receipt:           p.MpesaReceipt,
		TransactionDate:   p.TransactionDate,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func responseCode(s string) (int, error) {
	return strconv.Atoi(s)
}
