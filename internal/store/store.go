package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jaksoftwares/opulence-payments/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, order_number, total, status, payment_status,
			payment_method, payment_reference, created_at, updated_at
		FROM orders WHERE id=$1
	`, orderID)

	var order models.Order
	var ref sql.NullString
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.Total,
		&order.Status,
		&order.PaymentStatus,
		&order.PaymentMethod,
		&ref,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		order.PaymentReference = &ref.String
	}
	return &order, nil
}

func (s *Store) GetPaymentByCheckoutID(ctx context.Context, checkoutID string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, paymentSelect+` WHERE checkout_request_id=$1`, checkoutID)
	return scanPayment(row)
}

// GetActivePayment returns the most recent payment attempt for an order,
// or pgx.ErrNoRows if the order has never been charged.
func (s *Store) GetActivePayment(ctx context.Context, orderID string) (*models.Payment, error) {
	row := s.Pool.QueryRow(ctx, paymentSelect+`
		WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID)
	return scanPayment(row)
}

// SavePaymentAttempt records the outcome of an initiation in one
// transaction. An existing non-completed payment for the order is reused
// (new correlation ids, result fields reset); otherwise a row is
// inserted. The order's payment_status mirrors the payment's status
// unless the order is already completed.
func (s *Store) SavePaymentAttempt(ctx context.Context, p *models.Payment) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existingID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM payments
		WHERE order_id=$1 AND status <> 'completed'
		ORDER BY created_at DESC LIMIT 1
	`, p.OrderID).Scan(&existingID)
	switch {
	case err == nil:
		p.ID = existingID
		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET amount=$2, phone_number=$3, merchant_request_id=$4,
				checkout_request_id=$5, status=$6, result_code=$7, result_desc=$8,
				mpesa_receipt=NULL, transaction_date=NULL, updated_at=now()
			WHERE id=$1
		`, p.ID, p.Amount, p.PhoneNumber, p.MerchantRequestID,
			p.CheckoutRequestID, p.Status, p.ResultCode, p.ResultDesc)
		if err != nil {
			return err
		}
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO payments (
				id, order_id, amount, phone_number, merchant_request_id,
				checkout_request_id, status, result_code, result_desc
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, p.ID, p.OrderID, p.Amount, p.PhoneNumber, p.MerchantRequestID,
			p.CheckoutRequestID, p.Status, p.ResultCode, p.ResultDesc)
		if err != nil {
			return err
		}
	default:
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET payment_status=$2, payment_method='mpesa', updated_at=now()
		WHERE id=$1 AND payment_status <> 'completed'
	`, p.OrderID, string(p.Status))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type CompletionParams struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           *string
	TransactionDate   *time.Time
	PhoneNumber       *string
	RawPayload        []byte
}

// CompletePayment marks a payment completed and propagates the result to
// its order, both inside one transaction. The update is conditional on
// the payment not already being completed, so redeliveries and the
// callback/poll race resolve to a single winner; the loser sees ok=false.
func (s *Store) CompletePayment(ctx context.Context, params CompletionParams) (bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var orderID string
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status='completed', result_code=$2, result_desc=$3,
			mpesa_receipt=COALESCE($4, mpesa_receipt),
			transaction_date=COALESCE($5, transaction_date),
			phone_number=COALESCE($6, phone_number),
			callback_payload=COALESCE($7, callback_payload),
			updated_at=now()
		WHERE checkout_request_id=$1 AND status <> 'completed'
		RETURNING order_id
	`, params.CheckoutRequestID, params.ResultCode, params.ResultDesc,
		params.Receipt, params.TransactionDate, params.PhoneNumber, params.RawPayload).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		// already completed, nothing to apply
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET payment_status='completed', payment_reference=COALESCE($2, payment_reference),
			updated_at=now()
		WHERE id=$1 AND payment_status <> 'completed'
	`, orderID, params.Receipt)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FailPayment marks a payment failed unless it has already completed.
// A completed payment is never regressed; ok=false reports that nothing
// was applied.
func (s *Store) FailPayment(ctx context.Context, checkoutID string, resultCode int, resultDesc string, rawPayload []byte) (bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var orderID string
	err = tx.QueryRow(ctx, `
		UPDATE payments
		SET status='failed', result_code=$2, result_desc=$3,
			callback_payload=COALESCE($4, callback_payload), updated_at=now()
		WHERE checkout_request_id=$1 AND status <> 'completed'
		RETURNING order_id
	`, checkoutID, resultCode, resultDesc, rawPayload).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET payment_status='failed', updated_at=now()
		WHERE id=$1 AND payment_status <> 'completed'
	`, orderID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

const paymentSelect = `
	SELECT id, order_id, amount, phone_number, merchant_request_id,
		checkout_request_id, status, result_code, result_desc,
		mpesa_receipt, transaction_date, callback_payload,
		created_at, updated_at
	FROM payments`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var resultCode sql.NullInt32
	var resultDesc, receipt sql.NullString
	var txDate sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.PhoneNumber,
		&p.MerchantRequestID,
		&p.CheckoutRequestID,
		&p.Status,
		&resultCode,
		&resultDesc,
		&receipt,
		&txDate,
		&p.CallbackPayload,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if resultCode.Valid {
		code := int(resultCode.Int32)
		p.ResultCode = &code
	}
	if resultDesc.Valid {
		p.ResultDesc = &resultDesc.String
	}
	if receipt.Valid {
		p.MpesaReceipt = &receipt.String
	}
	if txDate.Valid {
		p.TransactionDate = &txDate.Time
	}
	return &p, nil
}
