package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// Booking is a reserved set of seats on a trip. TotalAmount is the canonical
// amount a payment must reconcile against; a booking never becomes confirmed
// without a completed payment matching it.
type Booking struct {
	ID            uuid.UUID
	TripID        *uuid.UUID
	SeatNumbers   []string
	TotalAmount   decimal.Decimal
	Currency      string
	Status        BookingStatus
	CustomerEmail *string
	CustomerPhone *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
