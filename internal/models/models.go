package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
)

type OrderPaymentStatus string

const (
	OrderPaymentPending    OrderPaymentStatus = "pending"
	OrderPaymentProcessing OrderPaymentStatus = "processing"
	OrderPaymentCompleted  OrderPaymentStatus = "completed"
	OrderPaymentFailed     OrderPaymentStatus = "failed"
)

// CanTransition reports whether a payment may move between statuses.
// "completed" is the only terminal state; a failed payment may still be
// superseded by a late legitimate success callback.
func CanTransition(from, to PaymentStatus) bool {
	if from == PaymentCompleted {
		return false
	}
	switch to {
	case PaymentProcessing, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

type Order struct {
	ID               string
	OrderNumber      string
	Total            decimal.Decimal
	Status           string
	PaymentStatus    OrderPaymentStatus
	PaymentMethod    string
	PaymentReference *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Payment struct {
	ID                string
	OrderID           string
	Amount            decimal.Decimal
	PhoneNumber       string
	MerchantRequestID string
	CheckoutRequestID string
	Status            PaymentStatus
	ResultCode        *int
	ResultDesc        *string
	MpesaReceipt      *string
	TransactionDate   *time.Time
	CallbackPayload   []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
