package service_test

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safiri-labs/safiri-payments/internal/domain"
	"github.com/safiri-labs/safiri-payments/internal/repository"
	"github.com/safiri-labs/safiri-payments/internal/service"
	"github.com/safiri-labs/safiri-payments/internal/testutil"
)

// recordingNotifier stands in for the async dispatcher so tests can assert
// on notifications synchronously.
type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []uuid.UUID
	cancelled []uuid.UUID
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, bookingID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, bookingID)
}

func (n *recordingNotifier) BookingCancelled(_ context.Context, bookingID uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, bookingID)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed), len(n.cancelled)
}

func setupReconciler(t *testing.T, db *sql.DB) (*service.Reconciler, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	rec := service.NewReconciler(
		repository.NewPaymentRepository(db),
		repository.NewBookingRepository(db),
		notifier,
		db,
		slog.Default(),
	)
	return rec, notifier
}

func receivedEvent(reference string, amount string) domain.ProviderEvent {
	return domain.ProviderEvent{
		Type:           domain.EventPaymentReceived,
		OrderReference: reference,
		TransactionID:  "TXN-" + uuid.NewString()[:8],
		Amount:         decimal.RequireFromString(amount),
		Currency:       "TZS",
	}
}

func TestHandleEvent_PaymentReceived_HappyPath(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, notifier := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("50000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "SAFIRI-0001", decimal.RequireFromString("50000"), domain.PaymentStatusPending)

	outcome, err := rec.HandleEvent(ctx, receivedEvent("SAFIRI-0001", "50000"))

	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, payment.ID, outcome.PaymentID)

	assert.Equal(t, domain.PaymentStatusCompleted, testutil.GetPaymentStatus(t, db, payment.ID))
	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, db, booking.ID))

	confirmed, cancelled := notifier.counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 0, cancelled)
}

func TestHandleEvent_PaymentReceived_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, notifier := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("50000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "SAFIRI-0002", decimal.RequireFromString("50000"), domain.PaymentStatusPending)

	ev := receivedEvent("SAFIRI-0002", "50000")

	first, err := rec.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := rec.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, payment.ID, second.PaymentID)

	assert.Equal(t, domain.PaymentStatusCompleted, testutil.GetPaymentStatus(t, db, payment.ID))
	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, db, booking.ID))

	confirmed, _ := notifier.counts()
	assert.Equal(t, 1, confirmed, "duplicate delivery must not notify twice")
}

func TestHandleEvent_PaymentReceived_ConcurrentDuplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, notifier := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("25000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "SAFIRI-0003", decimal.RequireFromString("25000"), domain.PaymentStatusPending)

	ev := receivedEvent("SAFIRI-0003", "25000")

	const workers = 5
	var wg sync.WaitGroup
	applied := make(chan bool, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := rec.HandleEvent(ctx, ev)
			if err == nil {
				applied <- outcome.Applied
			}
		}()
	}
	wg.Wait()
	close(applied)

	var appliedCount int
	for a := range applied {
		if a {
			appliedCount++
		}
	}
	assert.Equal(t, 1, appliedCount, "exactly one delivery performs the transition")

	assert.Equal(t, domain.PaymentStatusCompleted, testutil.GetPaymentStatus(t, db, payment.ID))
	confirmed, _ := notifier.counts()
	assert.Equal(t, 1, confirmed)
}

func TestHandleEvent_PaymentReceived_AmountMismatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, notifier := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("50000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "SAFIRI-0004", decimal.RequireFromString("50000"), domain.PaymentStatusPending)

	_, err := rec.HandleEvent(ctx, receivedEvent("SAFIRI-0004", "45000"))

	require.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Equal(t, domain.PaymentStatusPending, testutil.GetPaymentStatus(t, db, payment.ID))
	assert.Equal(t, domain.BookingStatusPending, testutil.GetBookingStatus(t, db, booking.ID))

	confirmed, cancelled := notifier.counts()
	assert.Zero(t, confirmed)
	assert.Zero(t, cancelled)
}

func TestHandleEvent_PaymentReceived_WithinEpsilon(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("50000.00"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "SAFIRI-0005", decimal.RequireFromString("50000.00"), domain.PaymentStatusPending)

	outcome, err := rec.HandleEvent(ctx, receivedEvent("SAFIRI-0005", "50000.01"))

	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, domain.PaymentStatusCompleted, testutil.GetPaymentStatus(t, db, payment.ID))
}

func TestHandleEvent_PaymentReceived_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)

	_, err := rec.HandleEvent(context.Background(), receivedEvent("NO-SUCH-REF", "100"))
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestHandleEvent_ResolutionPriority(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)
	ctx := context.Background()

	bookingA := testutil.SeedBooking(t, db, decimal.RequireFromString("1000"), "TZS")
	paymentA := testutil.SeedPayment(t, db, bookingA.ID, "REF-A", decimal.RequireFromString("1000"), domain.PaymentStatusPending)

	bookingB := testutil.SeedBooking(t, db, decimal.RequireFromString("1000"), "TZS")
	paymentB := testutil.SeedPayment(t, db, bookingB.ID, "REF-B", decimal.RequireFromString("1000"), domain.PaymentStatusPending)
	testutil.SetPaymentTransactionID(t, db, paymentB.ID, "TXN-B")

	// order_reference matches payment A while transaction_id matches
	// payment B; the order reference must win.
	ev := domain.ProviderEvent{
		Type:           domain.EventPaymentReceived,
		OrderReference: "REF-A",
		TransactionID:  "TXN-B",
		Amount:         decimal.RequireFromString("1000"),
		Currency:       "TZS",
	}

	outcome, err := rec.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, paymentA.ID, outcome.PaymentID)

	assert.Equal(t, domain.PaymentStatusCompleted, testutil.GetPaymentStatus(t, db, paymentA.ID))
	assert.Equal(t, domain.PaymentStatusPending, testutil.GetPaymentStatus(t, db, paymentB.ID))
}

func TestHandleEvent_LegacyReferenceAsBookingID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("7500"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "REF-LEGACY", decimal.RequireFromString("7500"), domain.PaymentStatusPending)

	ev := domain.ProviderEvent{
		Type:            domain.EventPaymentReceived,
		LegacyReference: booking.ID.String(),
		Amount:          decimal.RequireFromString("7500"),
		Currency:        "TZS",
	}

	outcome, err := rec.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, outcome.PaymentID)
	assert.Equal(t, domain.PaymentStatusCompleted, testutil.GetPaymentStatus(t, db, payment.ID))
}

func TestHandleEvent_PaymentFailed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, notifier := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("3000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "REF-FAIL", decimal.RequireFromString("3000"), domain.PaymentStatusPending)

	outcome, err := rec.HandleEvent(ctx, domain.ProviderEvent{
		Type:           domain.EventPaymentFailed,
		OrderReference: "REF-FAIL",
	})

	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, domain.PaymentStatusFailed, testutil.GetPaymentStatus(t, db, payment.ID))
	assert.NotEmpty(t, testutil.GetPaymentFailureReason(t, db, payment.ID))

	// Failure does not cancel the booking; the customer may retry payment.
	assert.Equal(t, domain.BookingStatusPending, testutil.GetBookingStatus(t, db, booking.ID))

	confirmed, cancelled := notifier.counts()
	assert.Zero(t, confirmed)
	assert.Zero(t, cancelled)
}

func TestHandleEvent_LateFailureDoesNotDowngradeCompleted(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("3000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "REF-LATE", decimal.RequireFromString("3000"), domain.PaymentStatusCompleted)

	outcome, err := rec.HandleEvent(ctx, domain.ProviderEvent{
		Type:           domain.EventPaymentFailed,
		OrderReference: "REF-LATE",
	})

	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.Equal(t, domain.PaymentStatusCompleted, testutil.GetPaymentStatus(t, db, payment.ID))
}

func TestHandleEvent_Refund(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, notifier := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("50000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "REF-RFND", decimal.RequireFromString("50000"), domain.PaymentStatusPending)

	// Full lifecycle: payment completes, then the provider refunds it.
	_, err := rec.HandleEvent(ctx, receivedEvent("REF-RFND", "50000"))
	require.NoError(t, err)

	outcome, err := rec.HandleEvent(ctx, domain.ProviderEvent{
		Type:           domain.EventPayoutRefunded,
		OrderReference: "REF-RFND",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Applied)

	assert.Equal(t, domain.PaymentStatusRefunded, testutil.GetPaymentStatus(t, db, payment.ID))
	assert.Equal(t, domain.BookingStatusCancelled, testutil.GetBookingStatus(t, db, booking.ID))

	confirmed, cancelled := notifier.counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, cancelled)

	// Duplicate refund is acknowledged without a second notification.
	dup, err := rec.HandleEvent(ctx, domain.ProviderEvent{
		Type:           domain.EventPayoutRefunded,
		OrderReference: "REF-RFND",
	})
	require.NoError(t, err)
	assert.False(t, dup.Applied)
	_, cancelled = notifier.counts()
	assert.Equal(t, 1, cancelled)
}

func TestHandleEvent_Reversal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, notifier := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("8000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "REF-RVRS", decimal.RequireFromString("8000"), domain.PaymentStatusCompleted)

	outcome, err := rec.HandleEvent(ctx, domain.ProviderEvent{
		Type:           domain.EventPayoutReversed,
		OrderReference: "REF-RVRS",
	})

	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, domain.PaymentStatusFailed, testutil.GetPaymentStatus(t, db, payment.ID))
	assert.Equal(t, domain.BookingStatusCancelled, testutil.GetBookingStatus(t, db, booking.ID))
	assert.Equal(t, "payout reversed by provider", testutil.GetPaymentFailureReason(t, db, payment.ID))

	// Reversal is silent towards the customer.
	confirmed, cancelled := notifier.counts()
	assert.Zero(t, confirmed)
	assert.Zero(t, cancelled)
}

func TestHandleEvent_AccountingEvents(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)
	ctx := context.Background()

	booking := testutil.SeedBooking(t, db, decimal.RequireFromString("1000"), "TZS")
	payment := testutil.SeedPayment(t, db, booking.ID, "REF-ACCT", decimal.RequireFromString("1000"), domain.PaymentStatusPending)

	for _, typ := range []domain.EventType{domain.EventPayoutInitiated, domain.EventDepositReceived} {
		outcome, err := rec.HandleEvent(ctx, domain.ProviderEvent{
			Type:           typ,
			OrderReference: "REF-ACCT",
			Amount:         decimal.RequireFromString("1000"),
		})
		require.NoError(t, err)
		assert.False(t, outcome.Applied)
		assert.Equal(t, payment.ID, outcome.PaymentID)
	}

	// No state transition from accounting events.
	assert.Equal(t, domain.PaymentStatusPending, testutil.GetPaymentStatus(t, db, payment.ID))
	assert.Equal(t, domain.BookingStatusPending, testutil.GetBookingStatus(t, db, booking.ID))
}

func TestHandleEvent_AccountingEventWithoutMatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)

	outcome, err := rec.HandleEvent(context.Background(), domain.ProviderEvent{
		Type:           domain.EventDepositReceived,
		OrderReference: "NEVER-SEEN",
		Amount:         decimal.RequireFromString("99"),
	})

	require.NoError(t, err)
	assert.False(t, outcome.Applied)
	assert.Equal(t, uuid.Nil, outcome.PaymentID)
}

func TestHandleEvent_UnknownEventType(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)

	_, err := rec.HandleEvent(context.Background(), domain.ProviderEvent{
		Type:           domain.EventType("SOMETHING_NEW"),
		OrderReference: "REF-X",
	})
	require.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestHandleEvent_AmbiguousTransactionID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rec, _ := setupReconciler(t, db)
	ctx := context.Background()

	bookingA := testutil.SeedBooking(t, db, decimal.RequireFromString("100"), "TZS")
	paymentA := testutil.SeedPayment(t, db, bookingA.ID, "DUP-A", decimal.RequireFromString("100"), domain.PaymentStatusPending)
	bookingB := testutil.SeedBooking(t, db, decimal.RequireFromString("100"), "TZS")
	paymentB := testutil.SeedPayment(t, db, bookingB.ID, "DUP-B", decimal.RequireFromString("100"), domain.PaymentStatusPending)

	testutil.SetPaymentTransactionID(t, db, paymentA.ID, "TXN-DUP")
	testutil.SetPaymentTransactionID(t, db, paymentB.ID, "TXN-DUP")

	_, err := rec.HandleEvent(ctx, domain.ProviderEvent{
		Type:          domain.EventPaymentReceived,
		TransactionID: "TXN-DUP",
		Amount:        decimal.RequireFromString("100"),
	})
	require.ErrorIs(t, err, domain.ErrDataIntegrity)
}
