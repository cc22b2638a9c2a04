// Package notify delivers booking notifications to the email/notification
// service. Delivery is best-effort by contract: the payment state transition
// has already committed by the time a notification fires, so a delivery
// failure is logged and swallowed, never surfaced to the webhook caller.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/safiri-labs/safiri-payments/internal/logging"
	"github.com/safiri-labs/safiri-payments/internal/monitoring"
)

type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindBookingCancellation Kind = "booking_cancellation"
)

type Sender interface {
	Send(ctx context.Context, kind Kind, bookingID uuid.UUID) error
}

// Client posts notification requests to the notification service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type notificationPayload struct {
	BookingID string `json:"booking_id"`
	Type      string `json:"type"`
}

func (c *Client) Send(ctx context.Context, kind Kind, bookingID uuid.UUID) error {
	body, err := json.Marshal(notificationPayload{
		BookingID: bookingID.String(),
		Type:      string(kind),
	})
	if err != nil {
		return fmt.Errorf("Send: marshal: %w", err)
	}

	url := c.baseURL + "/notifications"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("Send: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// LogSender stands in when no notification service is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, kind Kind, bookingID uuid.UUID) error {
	logging.FromContext(ctx).Info("notification skipped, no notify url configured",
		"kind", kind, "booking_id", bookingID)
	return nil
}

// Dispatcher fires notifications without blocking the caller. The goroutine
// gets its own deadline, detached from the request context, so an in-flight
// notification survives the webhook response being written.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
}

func NewDispatcher(sender Sender, timeout time.Duration) *Dispatcher {
	return &Dispatcher{sender: sender, timeout: timeout}
}

func (d *Dispatcher) BookingConfirmed(ctx context.Context, bookingID uuid.UUID) {
	d.dispatch(ctx, KindBookingConfirmation, bookingID)
}

func (d *Dispatcher) BookingCancelled(ctx context.Context, bookingID uuid.UUID) {
	d.dispatch(ctx, KindBookingCancellation, bookingID)
}

func (d *Dispatcher) dispatch(ctx context.Context, kind Kind, bookingID uuid.UUID) {
	log := logging.FromContext(ctx)

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.sender.Send(sendCtx, kind, bookingID); err != nil {
			monitoring.NotificationFailed(string(kind))
			log.Error("notification dispatch failed",
				"kind", kind,
				"booking_id", bookingID,
				"error", err,
			)
			return
		}

		log.Info("notification dispatched", "kind", kind, "booking_id", bookingID)
	}()
}
