package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionSuccess TransactionStatus = "success"
	TransactionFailed  TransactionStatus = "failed"
)

// Transaction is insert-only. Signature is an HMAC over its own payment
// fields keyed with the merchant secret.
type Transaction struct {
	ID                string            `json:"id"`
	MerchantID        string            `json:"merchant_id"`
	CheckoutSessionID string            `json:"checkout_session_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	CustomerEmail     string            `json:"customer_email"`
	PaymentMethod     string            `json:"payment_method"`
	Metadata          json.RawMessage   `json:"metadata,omitempty"`
	Signature         string            `json:"signature"`
	CreatedAt         time.Time         `json:"created_at"`
}

// TransactionFilter narrows a merchant's transaction listing.
type TransactionFilter struct {
	Status *TransactionStatus
	From   *time.Time
	To     *time.Time
	Limit  int
}
