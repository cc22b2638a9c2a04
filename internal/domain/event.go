package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// EventType enumerates the callback kinds ClickPesa delivers. Anything else is
// rejected at the router; unrecognized events are never acknowledged as
// processed.
type EventType string

const (
	EventPaymentReceived EventType = "PAYMENT_RECEIVED"
	EventPaymentFailed   EventType = "PAYMENT_FAILED"
	EventPayoutInitiated EventType = "PAYOUT_INITIATED"
	EventPayoutRefunded  EventType = "PAYOUT_REFUNDED"
	EventPayoutReversed  EventType = "PAYOUT_REVERSED"
	EventDepositReceived EventType = "DEPOSIT_RECEIVED"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventPaymentReceived, EventPaymentFailed, EventPayoutInitiated,
		EventPayoutRefunded, EventPayoutReversed, EventDepositReceived:
		return true
	default:
		return false
	}
}

// ProviderEvent is the sanitized, normalized form of an inbound webhook. It is
// consumed within a single request and never persisted verbatim.
type ProviderEvent struct {
	Type            EventType
	OrderReference  string
	TransactionID   string
	LegacyReference string
	Amount          decimal.Decimal
	Currency        string
	CustomerEmail   string
	CustomerPhone   string
	PaymentMethod   string
	Metadata        json.RawMessage
	Timestamp       string
}

// CorrelationIDs carries the identifiers used to resolve an event to an
// internal payment, in lookup-priority order.
type CorrelationIDs struct {
	OrderReference  string
	TransactionID   string
	LegacyReference string
}

func (e ProviderEvent) Correlation() CorrelationIDs {
	return CorrelationIDs{
		OrderReference:  e.OrderReference,
		TransactionID:   e.TransactionID,
		LegacyReference: e.LegacyReference,
	}
}

func (c CorrelationIDs) Empty() bool {
	return c.OrderReference == "" && c.TransactionID == "" && c.LegacyReference == ""
}
