// Command mock-clickpesa imitates the ClickPesa callback flow for local
// development: it accepts a payment submission, waits briefly, then signs and
// delivers a PAYMENT_RECEIVED webhook to the configured callback URL.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/safiri-labs/safiri-payments/internal/logging"
)

type submitRequest struct {
	OrderReference string          `json:"order_reference"`
	Amount         json.Number     `json:"amount"`
	Currency       string          `json:"currency"`
	CustomerPhone  string          `json:"customer_phone"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

type callbackPayload struct {
	Event          string          `json:"event"`
	OrderReference string          `json:"order_reference"`
	TransactionID  string          `json:"transaction_id"`
	Amount         json.Number     `json:"amount"`
	Currency       string          `json:"currency"`
	CustomerPhone  string          `json:"customer_phone,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

func main() {
	logging.Init("mock-clickpesa", "info", os.Getenv("APP_ENV"))

	callbackURL := envOr("CALLBACK_URL", "http://localhost:8080/api/v1/webhooks/clickpesa")
	secret := os.Getenv("CLICKPESA_WEBHOOK_SECRET")
	delay := 2 * time.Second

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})

	mux.HandleFunc("POST /payments", func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.OrderReference == "" {
			http.Error(w, "order_reference required", http.StatusBadRequest)
			return
		}

		txnID := "MOCK-" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
		slog.Info("payment accepted, callback scheduled",
			"order_reference", req.OrderReference, "transaction_id", txnID, "delay", delay)

		go func() {
			time.Sleep(delay)
			deliverCallback(callbackURL, secret, callbackPayload{
				Event:          "PAYMENT_RECEIVED",
				OrderReference: req.OrderReference,
				TransactionID:  txnID,
				Amount:         req.Amount,
				Currency:       req.Currency,
				CustomerPhone:  req.CustomerPhone,
				PaymentMethod:  "mobile_money",
				Metadata:       req.Metadata,
				Timestamp:      time.Now().UTC().Format(time.RFC3339),
			})
		}()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":         "processing",
			"transaction_id": txnID,
		}); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	addr := ":" + envOr("PORT", "8081")
	slog.Info("mock clickpesa started", "addr", addr, "callback_url", callbackURL)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func deliverCallback(url, secret string, payload callbackPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal callback", "error", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build callback request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-ClickPesa-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		slog.Error("callback delivery failed", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	slog.Info("callback delivered",
		"order_reference", payload.OrderReference, "status", resp.StatusCode)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
