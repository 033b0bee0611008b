package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutStatus string

const (
	CheckoutPending   CheckoutStatus = "pending"
	CheckoutCompleted CheckoutStatus = "completed"
	CheckoutFailed    CheckoutStatus = "failed"
	CheckoutExpired   CheckoutStatus = "expired"
	CheckoutCancelled CheckoutStatus = "cancelled"
)

type CheckoutSession struct {
	ID              string          `json:"id"`
	MerchantID      string          `json:"merchant_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          CheckoutStatus  `json:"status"`
	CustomerEmail   string          `json:"customer_email"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	FingerprintHash string          `json:"-"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (s *CheckoutSession) IsPending() bool {
	return s.Status == CheckoutPending
}

func (s *CheckoutSession) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
