package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safiri-labs/safiri-payments/internal/domain"
	"github.com/safiri-labs/safiri-payments/internal/logging"
	"github.com/safiri-labs/safiri-payments/internal/sanitize"
)

type paymentReader interface {
	GetByReference(ctx context.Context, reference string) (*domain.Payment, error)
}

type bookingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
}

// OpsHandler serves the authenticated operator endpoints used by support
// staff to chase up payment disputes.
type OpsHandler struct {
	payments paymentReader
	bookings bookingReader
}

func NewOpsHandler(payments paymentReader, bookings bookingReader) *OpsHandler {
	return &OpsHandler{payments: payments, bookings: bookings}
}

type paymentView struct {
	ID                    uuid.UUID       `json:"id"`
	BookingID             uuid.UUID       `json:"booking_id"`
	PaymentReference      string          `json:"payment_reference"`
	TransactionID         *string         `json:"transaction_id,omitempty"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                string          `json:"status"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

type bookingView struct {
	ID          uuid.UUID       `json:"id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	SeatNumbers []string        `json:"seat_numbers"`
}

type paymentLookupResponse struct {
	Payment paymentView  `json:"payment"`
	Booking *bookingView `json:"booking,omitempty"`
}

func (h *OpsHandler) GetPaymentByReference(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	reference, err := sanitize.String(r.PathValue("reference"), 1, 64)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "reference", Message: "invalid"}})
		return
	}

	payment, err := h.payments.GetByReference(r.Context(), reference)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	resp := paymentLookupResponse{Payment: toPaymentView(payment)}

	booking, err := h.bookings.GetByID(r.Context(), payment.BookingID)
	if err != nil {
		// The payment is still useful on its own; a missing booking row is
		// an integrity problem worth surfacing in logs, not a 404.
		log.Error("booking lookup failed for payment", "payment_id", payment.ID, "booking_id", payment.BookingID, "error", err)
	} else {
		resp.Booking = &bookingView{
			ID:          booking.ID,
			Status:      string(booking.Status),
			TotalAmount: booking.TotalAmount,
			Currency:    booking.Currency,
			SeatNumbers: booking.SeatNumbers,
		}
	}

	RespondSuccess(w, http.StatusOK, resp)
}

func toPaymentView(p *domain.Payment) paymentView {
	return paymentView{
		ID:                    p.ID,
		BookingID:             p.BookingID,
		PaymentReference:      p.PaymentReference,
		TransactionID:         p.TransactionID,
		ProviderTransactionID: p.ProviderTransactionID,
		Amount:                p.Amount,
		Currency:              p.Currency,
		Status:                string(p.Status),
		FailureReason:         p.FailureReason,
		CompletedAt:           p.CompletedAt,
		CreatedAt:             p.CreatedAt,
	}
}
