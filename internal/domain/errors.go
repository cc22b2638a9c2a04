package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrPaymentNotFound = errors.New("no payment matches the supplied identifiers")
	ErrAmountMismatch  = errors.New("event amount does not match booking total")
	ErrUnknownEvent    = errors.New("unknown event type")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrDataIntegrity   = errors.New("correlation identifier matches more than one payment")
)
