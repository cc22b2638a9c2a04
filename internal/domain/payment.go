package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// AmountEpsilon is the currency-rounding tolerance applied when reconciling a
// provider-reported amount against the booking's canonical total.
var AmountEpsilon = decimal.NewFromFloat(0.01)

type Payment struct {
	ID                    uuid.UUID
	BookingID             uuid.UUID
	PaymentReference      string
	TransactionID         *string
	ProviderTransactionID *string
	Amount                decimal.Decimal
	Currency              string
	Method                *string
	Status                PaymentStatus
	PaymentData           json.RawMessage
	FailureReason         *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CompletedAt           *time.Time
}

// AmountMatches reports whether a provider-reported amount agrees with the
// booking total within AmountEpsilon. The event amount is never trusted on its
// own; the booking total is the source of truth.
func AmountMatches(eventAmount, bookingTotal decimal.Decimal) bool {
	return eventAmount.Sub(bookingTotal).Abs().LessThanOrEqual(AmountEpsilon)
}
