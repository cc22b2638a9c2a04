package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/safiri-labs/safiri-payments/internal/domain"
	"github.com/safiri-labs/safiri-payments/internal/logging"
)

type paymentRepo interface {
	Resolve(ctx context.Context, ids domain.CorrelationIDs) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, transactionID *string, failureReason *string, paymentData json.RawMessage, completedAt *time.Time) error
}

type bookingRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.BookingStatus) error
}

// notificationDispatcher fires booking notifications. Implementations must be
// best-effort: a notification failure never reaches the reconciliation result.
type notificationDispatcher interface {
	BookingConfirmed(ctx context.Context, bookingID uuid.UUID)
	BookingCancelled(ctx context.Context, bookingID uuid.UUID)
}

// Outcome reports what a webhook event did. Applied is false for idempotent
// repeats and accounting-only events.
type Outcome struct {
	PaymentID uuid.UUID
	Applied   bool
}

// Reconciler routes provider events to the matching state transition and
// performs each transition atomically. The provider delivers at-least-once,
// possibly concurrently, so every path locks the payment row and re-checks
// its status inside the transaction.
type Reconciler struct {
	payments paymentRepo
	bookings bookingRepo
	notify   notificationDispatcher
	db       *sql.DB
	logger   *slog.Logger
}

func NewReconciler(payments paymentRepo, bookings bookingRepo, notify notificationDispatcher, db *sql.DB, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		payments: payments,
		bookings: bookings,
		notify:   notify,
		db:       db,
		logger:   logger,
	}
}

func (r *Reconciler) HandleEvent(ctx context.Context, ev domain.ProviderEvent) (*Outcome, error) {
	switch ev.Type {
	case domain.EventPaymentReceived:
		return r.reconcileReceived(ctx, ev)
	case domain.EventPaymentFailed:
		return r.markFailed(ctx, ev)
	case domain.EventPayoutRefunded:
		return r.refund(ctx, ev)
	case domain.EventPayoutReversed:
		return r.reverse(ctx, ev)
	case domain.EventPayoutInitiated, domain.EventDepositReceived:
		return r.recordOnly(ctx, ev)
	default:
		return nil, fmt.Errorf("HandleEvent: %q: %w", ev.Type, domain.ErrUnknownEvent)
	}
}

// reconcileReceived is the success path: amount check, idempotency check,
// atomic payment→completed + booking→confirmed, then a best-effort
// confirmation notification.
func (r *Reconciler) reconcileReceived(ctx context.Context, ev domain.ProviderEvent) (*Outcome, error) {
	log := logging.FromContext(ctx)

	payment, err := r.payments.Resolve(ctx, ev.Correlation())
	if err != nil {
		return nil, fmt.Errorf("reconcileReceived: %w", err)
	}

	booking, err := r.bookings.GetByID(ctx, payment.BookingID)
	if err != nil {
		return nil, fmt.Errorf("reconcileReceived: booking %s: %w", payment.BookingID, err)
	}

	// The event amount is attacker- or provider-bug-controllable; the
	// booking total is not. Mismatches are terminal, not retried.
	if !domain.AmountMatches(ev.Amount, booking.TotalAmount) {
		log.Warn("webhook amount mismatch",
			"payment_id", payment.ID,
			"booking_id", booking.ID,
			"event_amount", ev.Amount,
			"booking_total", booking.TotalAmount,
		)
		return nil, fmt.Errorf("reconcileReceived: got %s, booking total %s: %w",
			ev.Amount, booking.TotalAmount, domain.ErrAmountMismatch)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reconcileReceived: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := r.payments.GetForUpdate(ctx, tx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("reconcileReceived: %w", err)
	}

	if locked.Status == domain.PaymentStatusCompleted {
		log.Info("duplicate payment event, already completed",
			"payment_id", payment.ID, "booking_id", booking.ID)
		return &Outcome{PaymentID: payment.ID}, nil
	}

	now := time.Now().UTC()
	if err := r.payments.UpdateStatus(ctx, tx, payment.ID, domain.PaymentStatusCompleted,
		optional(ev.TransactionID), nil, providerData(ev), &now); err != nil {
		return nil, fmt.Errorf("reconcileReceived: update payment: %w", err)
	}

	if err := r.bookings.UpdateStatus(ctx, tx, booking.ID, domain.BookingStatusConfirmed); err != nil {
		return nil, fmt.Errorf("reconcileReceived: confirm booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reconcileReceived: commit: %w", err)
	}

	log.Info("payment reconciled",
		"payment_id", payment.ID,
		"booking_id", booking.ID,
		"amount", ev.Amount,
		"transaction_id", ev.TransactionID,
	)

	r.notify.BookingConfirmed(ctx, booking.ID)
	return &Outcome{PaymentID: payment.ID, Applied: true}, nil
}

// markFailed handles PAYMENT_FAILED. A failure event arriving after the
// payment completed does not downgrade it: completed is terminal except via
// the explicit refund and reversal events. The repeat is acknowledged so the
// provider stops retrying.
func (r *Reconciler) markFailed(ctx context.Context, ev domain.ProviderEvent) (*Outcome, error) {
	log := logging.FromContext(ctx)

	payment, err := r.payments.Resolve(ctx, ev.Correlation())
	if err != nil {
		return nil, fmt.Errorf("markFailed: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("markFailed: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := r.payments.GetForUpdate(ctx, tx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("markFailed: %w", err)
	}

	switch locked.Status {
	case domain.PaymentStatusCompleted:
		log.Warn("ignoring failure event for completed payment", "payment_id", payment.ID)
		return &Outcome{PaymentID: payment.ID}, nil
	case domain.PaymentStatusFailed:
		return &Outcome{PaymentID: payment.ID}, nil
	}

	reason := "payment failed at provider"
	if err := r.payments.UpdateStatus(ctx, tx, payment.ID, domain.PaymentStatusFailed,
		optional(ev.TransactionID), &reason, providerData(ev), nil); err != nil {
		return nil, fmt.Errorf("markFailed: update payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("markFailed: commit: %w", err)
	}

	log.Info("payment marked failed", "payment_id", payment.ID)
	return &Outcome{PaymentID: payment.ID, Applied: true}, nil
}

// refund handles PAYOUT_REFUNDED: payment→refunded, booking→cancelled, one
// cancellation notification. Refunds are the explicit path out of completed.
func (r *Reconciler) refund(ctx context.Context, ev domain.ProviderEvent) (*Outcome, error) {
	log := logging.FromContext(ctx)

	payment, err := r.payments.Resolve(ctx, ev.Correlation())
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("refund: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := r.payments.GetForUpdate(ctx, tx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("refund: %w", err)
	}

	if locked.Status == domain.PaymentStatusRefunded {
		log.Info("duplicate refund event", "payment_id", payment.ID)
		return &Outcome{PaymentID: payment.ID}, nil
	}

	if err := r.payments.UpdateStatus(ctx, tx, payment.ID, domain.PaymentStatusRefunded,
		optional(ev.TransactionID), nil, providerData(ev), nil); err != nil {
		return nil, fmt.Errorf("refund: update payment: %w", err)
	}

	if err := r.bookings.UpdateStatus(ctx, tx, payment.BookingID, domain.BookingStatusCancelled); err != nil {
		return nil, fmt.Errorf("refund: cancel booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("refund: commit: %w", err)
	}

	log.Info("payment refunded, booking cancelled",
		"payment_id", payment.ID, "booking_id", payment.BookingID)

	r.notify.BookingCancelled(ctx, payment.BookingID)
	return &Outcome{PaymentID: payment.ID, Applied: true}, nil
}

// reverse handles PAYOUT_REVERSED: payment→failed with reversal metadata,
// booking→cancelled. Like refund, reversal is allowed out of completed.
func (r *Reconciler) reverse(ctx context.Context, ev domain.ProviderEvent) (*Outcome, error) {
	log := logging.FromContext(ctx)

	payment, err := r.payments.Resolve(ctx, ev.Correlation())
	if err != nil {
		return nil, fmt.Errorf("reverse: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("reverse: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := r.payments.GetForUpdate(ctx, tx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("reverse: %w", err)
	}

	if locked.Status == domain.PaymentStatusFailed {
		log.Info("duplicate reversal event", "payment_id", payment.ID)
		return &Outcome{PaymentID: payment.ID}, nil
	}

	reason := "payout reversed by provider"
	if err := r.payments.UpdateStatus(ctx, tx, payment.ID, domain.PaymentStatusFailed,
		optional(ev.TransactionID), &reason, reversalData(ev), nil); err != nil {
		return nil, fmt.Errorf("reverse: update payment: %w", err)
	}

	if err := r.bookings.UpdateStatus(ctx, tx, payment.BookingID, domain.BookingStatusCancelled); err != nil {
		return nil, fmt.Errorf("reverse: cancel booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("reverse: commit: %w", err)
	}

	log.Info("payout reversed, booking cancelled",
		"payment_id", payment.ID, "booking_id", payment.BookingID)
	return &Outcome{PaymentID: payment.ID, Applied: true}, nil
}

// recordOnly handles accounting events (PAYOUT_INITIATED, DEPOSIT_RECEIVED):
// logged, no state transition. Resolution is attempted only to correlate the
// log line; an unresolved accounting event is still acknowledged.
func (r *Reconciler) recordOnly(ctx context.Context, ev domain.ProviderEvent) (*Outcome, error) {
	log := logging.FromContext(ctx)

	outcome := &Outcome{}
	if !ev.Correlation().Empty() {
		if payment, err := r.payments.Resolve(ctx, ev.Correlation()); err == nil {
			outcome.PaymentID = payment.ID
		} else if !errors.Is(err, domain.ErrPaymentNotFound) {
			return nil, fmt.Errorf("recordOnly: %w", err)
		}
	}

	log.Info("accounting event recorded",
		"event_type", ev.Type,
		"payment_id", outcome.PaymentID,
		"amount", ev.Amount,
		"currency", ev.Currency,
	)
	return outcome, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// providerData snapshots the provider-supplied metadata stored on the
// payment record for audit.
func providerData(ev domain.ProviderEvent) json.RawMessage {
	data := map[string]any{
		"event":     ev.Type,
		"timestamp": ev.Timestamp,
	}
	if ev.PaymentMethod != "" {
		data["payment_method"] = ev.PaymentMethod
	}
	if ev.CustomerEmail != "" {
		data["customer_email"] = ev.CustomerEmail
	}
	if ev.CustomerPhone != "" {
		data["customer_phone"] = ev.CustomerPhone
	}
	if len(ev.Metadata) > 0 {
		data["metadata"] = json.RawMessage(ev.Metadata)
	}
	raw, _ := json.Marshal(data)
	return raw
}

func reversalData(ev domain.ProviderEvent) json.RawMessage {
	base := providerData(ev)
	var data map[string]any
	_ = json.Unmarshal(base, &data)
	data["reversal"] = true
	raw, _ := json.Marshal(data)
	return raw
}
