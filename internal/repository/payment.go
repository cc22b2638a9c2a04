package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/safiri-labs/safiri-payments/internal/domain"
)

const paymentColumns = `id, booking_id, payment_reference, transaction_id,
	provider_transaction_id, amount, currency, method, status, payment_data,
	failure_reason, created_at, updated_at, completed_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Resolve maps provider correlation identifiers to exactly one payment.
// Lookup priority, first match wins:
//
//  1. order_reference against payment_reference, generated by this system at
//     payment initiation, so the most reliable key.
//  2. transaction_id against either transaction-id column (providers echo a
//     different field name across API versions).
//  3. legacy reference: as a booking id when it parses as a UUID, otherwise
//     as a payment_reference.
//
// No match is domain.ErrPaymentNotFound. More than one match on a single
// step means a broken unique-reference invariant and is reported as
// domain.ErrDataIntegrity, which callers must not retry.
func (r *PaymentRepository) Resolve(ctx context.Context, ids domain.CorrelationIDs) (*domain.Payment, error) {
	if ids.OrderReference != "" {
		p, err := r.findOne(ctx, `payment_reference = $1`, ids.OrderReference)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, fmt.Errorf("Resolve: order_reference: %w", err)
		}
	}

	if ids.TransactionID != "" {
		p, err := r.findOne(ctx, `transaction_id = $1 OR provider_transaction_id = $1`, ids.TransactionID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, fmt.Errorf("Resolve: transaction_id: %w", err)
		}
	}

	if ids.LegacyReference != "" {
		if bookingID, err := uuid.Parse(ids.LegacyReference); err == nil {
			p, err := r.findOne(ctx, `booking_id = $1`, bookingID)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, domain.ErrPaymentNotFound) {
				return nil, fmt.Errorf("Resolve: legacy booking_id: %w", err)
			}
		}

		p, err := r.findOne(ctx, `payment_reference = $1`, ids.LegacyReference)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, fmt.Errorf("Resolve: legacy reference: %w", err)
		}
	}

	return nil, fmt.Errorf("Resolve: %w", domain.ErrPaymentNotFound)
}

func (r *PaymentRepository) findOne(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	// LIMIT 2 so a broken uniqueness invariant is observable instead of
	// silently picking a row.
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+where+` LIMIT 2`, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("findOne: %w", err)
	}
	defer rows.Close()

	var matches []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("findOne: scan: %w", err)
		}
		matches = append(matches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("findOne: rows: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, domain.ErrPaymentNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, domain.ErrDataIntegrity
	}
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_reference = $1`, reference,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByReference: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByReference: %w", err)
	}
	return p, nil
}

// GetForUpdate locks the payment row for the duration of tx. The lock is what
// makes check-then-transition safe when the provider delivers the same event
// concurrently from independent instances.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) UpdateStatus(
	ctx context.Context,
	tx *sql.Tx,
	id uuid.UUID,
	status domain.PaymentStatus,
	transactionID *string,
	failureReason *string,
	paymentData json.RawMessage,
	completedAt *time.Time,
) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET
			status = $1,
			transaction_id = COALESCE($2, transaction_id),
			failure_reason = $3,
			payment_data = COALESCE($4, payment_data),
			completed_at = COALESCE($5, completed_at),
			updated_at = now()
		WHERE id = $6`,
		status, transactionID, failureReason, []byte(paymentData), completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var paymentData *[]byte

	err := s.Scan(
		&p.ID, &p.BookingID, &p.PaymentReference, &p.TransactionID,
		&p.ProviderTransactionID, &p.Amount, &p.Currency, &p.Method, &p.Status, &paymentData,
		&p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentData != nil {
		p.PaymentData = *paymentData
	}
	return &p, nil
}
