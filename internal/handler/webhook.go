package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safiri-labs/safiri-payments/internal/domain"
	"github.com/safiri-labs/safiri-payments/internal/logging"
	"github.com/safiri-labs/safiri-payments/internal/monitoring"
	"github.com/safiri-labs/safiri-payments/internal/sanitize"
	"github.com/safiri-labs/safiri-payments/internal/service"
	"github.com/safiri-labs/safiri-payments/internal/signature"
)

// signatureHeaders are tried in order; ClickPesa has shipped all three names
// across provider API versions.
var signatureHeaders = []string{"x-clickpesa-signature", "x-signature", "authorization"}

const maxWebhookBody = 1 << 20

type reconciler interface {
	HandleEvent(ctx context.Context, ev domain.ProviderEvent) (*service.Outcome, error)
}

type WebhookHandler struct {
	reconciler reconciler
	verifier   *signature.Verifier
}

func NewWebhookHandler(rec reconciler, verifier *signature.Verifier) *WebhookHandler {
	return &WebhookHandler{reconciler: rec, verifier: verifier}
}

// webhookPayload is the raw ClickPesa callback shape. Legacy deliveries carry
// only a status field instead of an event type; both shapes are normalized
// into one pipeline here rather than handled by parallel code paths.
type webhookPayload struct {
	Event          string          `json:"event"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transaction_id"`
	OrderReference string          `json:"order_reference"`
	Reference      string          `json:"reference"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	MobileNumber   string          `json:"mobile_number"`
	CustomerPhone  string          `json:"customer_phone"`
	CustomerEmail  string          `json:"customer_email"`
	PaymentMethod  string          `json:"payment_method"`
	Metadata       json.RawMessage `json:"metadata"`
	Timestamp      string          `json:"timestamp"`
}

// Options answers the CORS preflight the provider dashboard sends.
func (h *WebhookHandler) Options(w http.ResponseWriter, r *http.Request) {
	writeCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())
	writeCORSHeaders(w)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	// Authentication happens before any parsing or storage access: an
	// unauthenticated request must cause no side effects at all.
	if err := h.verifier.Verify(body, signatureHeader(r)); err != nil {
		log.Warn("webhook signature verification failed", "error", err)
		monitoring.WebhookEvent("unknown", "unauthenticated")
		if errors.Is(err, signature.ErrMissingSignature) {
			RespondAppError(w, ErrMissingSignature, nil)
			return
		}
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	ev, fields := payload.normalize()
	if len(fields) > 0 {
		log.Warn("webhook payload rejected", "fields", fields)
		monitoring.WebhookEvent(string(ev.Type), "invalid")
		RespondValidationError(w, fields)
		return
	}

	outcome, err := h.reconciler.HandleEvent(r.Context(), ev)
	if err != nil {
		monitoring.WebhookEvent(string(ev.Type), "error")
		log.Warn("webhook event not processed", "event_type", ev.Type, "error", err)
		RespondDomainError(w, err)
		return
	}

	monitoring.WebhookEvent(string(ev.Type), outcomeLabel(outcome))
	monitoring.ObserveWebhookDuration(time.Since(start).Seconds())

	ack := map[string]any{"success": true}
	if outcome.PaymentID != uuid.Nil {
		ack["payment_id"] = outcome.PaymentID.String()
	}
	RespondJSON(w, http.StatusOK, ack)
}

// normalize sanitizes every scalar field and produces the internal event.
// Returned field errors mean the payload must be rejected without touching
// storage.
func (p webhookPayload) normalize() (domain.ProviderEvent, []FieldError) {
	var errs []FieldError
	var ev domain.ProviderEvent

	eventName := strings.TrimSpace(p.Event)
	if eventName == "" {
		eventName = legacyStatusEvent(p.Status)
		if eventName == "" {
			errs = append(errs, FieldError{Field: "event", Message: "required"})
			return ev, errs
		}
	}
	if _, err := sanitize.String(eventName, 1, 40); err != nil {
		errs = append(errs, FieldError{Field: "event", Message: "invalid"})
		return ev, errs
	}
	ev.Type = domain.EventType(eventName)

	ev.OrderReference = sanitizeField(&errs, "order_reference", p.OrderReference, 64)
	ev.TransactionID = sanitizeField(&errs, "transaction_id", p.TransactionID, 64)
	ev.LegacyReference = sanitizeField(&errs, "reference", p.Reference, 64)
	ev.Currency = strings.ToUpper(sanitizeField(&errs, "currency", p.Currency, 8))
	ev.PaymentMethod = sanitizeField(&errs, "payment_method", p.PaymentMethod, 32)
	ev.Timestamp = sanitizeField(&errs, "timestamp", p.Timestamp, 40)

	if p.CustomerEmail != "" {
		email, err := sanitize.Email(p.CustomerEmail)
		if err != nil {
			errs = append(errs, FieldError{Field: "customer_email", Message: "invalid"})
		}
		ev.CustomerEmail = email
	}

	phone := p.CustomerPhone
	if phone == "" {
		phone = p.MobileNumber
	}
	if phone != "" {
		normalized, err := sanitize.Phone(phone)
		if err != nil {
			errs = append(errs, FieldError{Field: "customer_phone", Message: "invalid"})
		}
		ev.CustomerPhone = normalized
	}

	ev.Amount = p.Amount
	ev.Metadata = p.Metadata

	if ev.Type == domain.EventPaymentReceived && !p.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	switch ev.Type {
	case domain.EventPaymentReceived, domain.EventPaymentFailed,
		domain.EventPayoutRefunded, domain.EventPayoutReversed:
		if ev.Correlation().Empty() {
			errs = append(errs, FieldError{Field: "order_reference", Message: "at least one correlation identifier required"})
		}
	}

	return ev, errs
}

func sanitizeField(errs *[]FieldError, field, value string, maxLen int) string {
	if value == "" {
		return ""
	}
	s, err := sanitize.String(value, 1, maxLen)
	if err != nil {
		*errs = append(*errs, FieldError{Field: field, Message: "invalid"})
		return ""
	}
	return s
}

// legacyStatusEvent maps the old status-only payload shape onto event types
// so the legacy deliveries flow through the same router.
func legacyStatusEvent(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "completed", "paid":
		return string(domain.EventPaymentReceived)
	case "failed", "failure":
		return string(domain.EventPaymentFailed)
	case "refunded":
		return string(domain.EventPayoutRefunded)
	default:
		return ""
	}
}

func signatureHeader(r *http.Request) string {
	for _, name := range signatureHeaders {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func outcomeLabel(o *service.Outcome) string {
	if o.Applied {
		return "applied"
	}
	return "noop"
}

func writeCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, X-ClickPesa-Signature, X-Signature, Authorization")
}
