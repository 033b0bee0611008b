package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/timex"
	"github.com/shopspring/decimal"
)

const EventTransactionUpdated = "transaction.updated"

type WebhookEvent struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	Transaction     WebhookTransaction `json:"transaction"`
	CheckoutSession WebhookSession     `json:"checkout_session"`
}

type WebhookTransaction struct {
	ID            string                   `json:"id"`
	Amount        decimal.Decimal          `json:"amount"`
	Currency      string                   `json:"currency"`
	Status        models.TransactionStatus `json:"status"`
	CustomerEmail string                   `json:"customer_email"`
	PaymentMethod string                   `json:"payment_method"`
	Metadata      json.RawMessage          `json:"metadata"`
	CreatedAt     time.Time                `json:"created_at"`
}

type WebhookSession struct {
	ID            string                `json:"id"`
	Status        models.CheckoutStatus `json:"status"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      string                `json:"currency"`
	CustomerEmail string                `json:"customer_email"`
	Metadata      json.RawMessage       `json:"metadata"`
}

func NewTransactionEvent(tx *models.Transaction, s *models.CheckoutSession) WebhookEvent {
	return WebhookEvent{
		Event: EventTransactionUpdated,
		Data: WebhookData{
			Transaction: WebhookTransaction{
				ID:            tx.ID,
				Amount:        tx.Amount,
				Currency:      tx.Currency,
				Status:        tx.Status,
				CustomerEmail: tx.CustomerEmail,
				PaymentMethod: tx.PaymentMethod,
				Metadata:      nullJSON(tx.Metadata),
				CreatedAt:     tx.CreatedAt,
			},
			CheckoutSession: WebhookSession{
				ID:            s.ID,
				Status:        s.Status,
				Amount:        s.Amount,
				Currency:      s.Currency,
				CustomerEmail: s.CustomerEmail,
				Metadata:      nullJSON(s.Metadata),
			},
		},
	}
}

func nullJSON(m json.RawMessage) json.RawMessage {
	if len(m) == 0 {
		return json.RawMessage("null")
	}
	return m
}

// WebhookSender pushes signed event notifications to merchants. Deliveries
// are attempted once; failures are logged and counted.
type WebhookSender struct {
	client  *http.Client
	signer  *cryptox.Signer
	timeout time.Duration
	clock   timex.Clock
	logger  logging.Logger
	metrics *metrics.Metrics

	wg sync.WaitGroup
}

func NewWebhookSender(client *http.Client, signer *cryptox.Signer, timeout time.Duration, logger logging.Logger, m *metrics.Metrics) *WebhookSender {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = common.DefaultWebhookTimeout
	}
	return &WebhookSender{
		client:  client,
		signer:  signer,
		timeout: timeout,
		logger:  logger.With("module", "webhooks"),
		metrics: m,
	}
}

func (w *WebhookSender) WithClock(c timex.Clock) *WebhookSender {
	w.clock = c
	return w
}

// Notify delivers event to the merchant's webhook URL in the background.
// The delivery outlives ctx's cancellation but not the sender's timeout.
// Merchants without a webhook URL are skipped.
func (w *WebhookSender) Notify(ctx context.Context, m *models.Merchant, secret string, event WebhookEvent) {
	if m == nil || m.WebhookURL == nil || *m.WebhookURL == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		w.logger.Error(ctx, "webhook payload cannot be encoded", "merchant_id", m.ID, "error", err)
		w.metrics.WebhookDelivery("failed")
		return
	}

	url := *m.WebhookURL
	merchantID := m.ID
	detached := context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ctx, cancel := context.WithTimeout(detached, w.timeout)
		defer cancel()

		if err := w.Deliver(ctx, url, secret, payload); err != nil {
			w.logger.Warn(ctx, "webhook delivery failed", "merchant_id", merchantID, "url", url, "error", err)
			w.metrics.WebhookDelivery("failed")
			return
		}
		w.logger.Debug(ctx, "webhook delivered", "merchant_id", merchantID)
		w.metrics.WebhookDelivery("delivered")
	}()
}

// Deliver performs one signed POST and treats any non-2xx answer as failure.
func (w *WebhookSender) Deliver(ctx context.Context, url, secret string, payload []byte) error {
	ts := w.clock.Now().UnixMilli()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.WebhookTimestampHeaderName, strconv.FormatInt(ts, 10))
	req.Header.Set(common.WebhookSignatureHeaderName, w.signer.SignMillis(ts, payload, secret))

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (w *WebhookSender) Wait() {
	w.wg.Wait()
}
