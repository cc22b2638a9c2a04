package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/safiri-labs/safiri-payments/internal/domain"
)

// SeedBooking inserts a pending booking and returns it. Callers override
// status afterwards when a test needs a confirmed or cancelled booking.
func SeedBooking(t *testing.T, db *sql.DB, total decimal.Decimal, currency string) *domain.Booking {
	t.Helper()

	b := &domain.Booking{
		ID:          uuid.New(),
		SeatNumbers: []string{"14A"},
		TotalAmount: total,
		Currency:    currency,
		Status:      domain.BookingStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO bookings (id, seat_numbers, total_amount, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, pq.Array(b.SeatNumbers), b.TotalAmount, b.Currency, b.Status, b.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return b
}

func SeedPayment(t *testing.T, db *sql.DB, bookingID uuid.UUID, reference string, amount decimal.Decimal, status domain.PaymentStatus) *domain.Payment {
	t.Helper()

	p := &domain.Payment{
		ID:               uuid.New(),
		BookingID:        bookingID,
		PaymentReference: reference,
		Amount:           amount,
		Currency:         "TZS",
		Status:           status,
		CreatedAt:        time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO payments (id, booking_id, payment_reference, amount, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.BookingID, p.PaymentReference, p.Amount, p.Currency, p.Status, p.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment %s: %v", reference, err)
	}
	return p
}

func SetPaymentTransactionID(t *testing.T, db *sql.DB, paymentID uuid.UUID, transactionID string) {
	t.Helper()

	if _, err := db.Exec(`UPDATE payments SET transaction_id = $2 WHERE id = $1`, paymentID, transactionID); err != nil {
		t.Fatalf("set transaction id for payment %s: %v", paymentID, err)
	}
}

func SetProviderTransactionID(t *testing.T, db *sql.DB, paymentID uuid.UUID, providerTxID string) {
	t.Helper()

	if _, err := db.Exec(`UPDATE payments SET provider_transaction_id = $2 WHERE id = $1`, paymentID, providerTxID); err != nil {
		t.Fatalf("set provider transaction id for payment %s: %v", paymentID, err)
	}
}

func GetPaymentStatus(t *testing.T, db *sql.DB, paymentID uuid.UUID) domain.PaymentStatus {
	t.Helper()

	var status domain.PaymentStatus
	if err := db.QueryRow(`SELECT status FROM payments WHERE id = $1`, paymentID).Scan(&status); err != nil {
		t.Fatalf("get payment status %s: %v", paymentID, err)
	}
	return status
}

func GetBookingStatus(t *testing.T, db *sql.DB, bookingID uuid.UUID) domain.BookingStatus {
	t.Helper()

	var status domain.BookingStatus
	if err := db.QueryRow(`SELECT status FROM bookings WHERE id = $1`, bookingID).Scan(&status); err != nil {
		t.Fatalf("get booking status %s: %v", bookingID, err)
	}
	return status
}

func GetPaymentFailureReason(t *testing.T, db *sql.DB, paymentID uuid.UUID) string {
	t.Helper()

	var reason sql.NullString
	if err := db.QueryRow(`SELECT failure_reason FROM payments WHERE id = $1`, paymentID).Scan(&reason); err != nil {
		t.Fatalf("get payment failure reason %s: %v", paymentID, err)
	}
	return reason.String
}
