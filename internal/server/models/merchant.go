package models

import "time"

type MerchantStatus string

const (
	MerchantActive    MerchantStatus = "active"
	MerchantInactive  MerchantStatus = "inactive"
	MerchantSuspended MerchantStatus = "suspended"
)

// Merchant holds the public API key and the encrypted API secret
// (nonce:ciphertext:tag). The plaintext secret is never stored.
type Merchant struct {
	ID              string
	UserID          string
	BusinessName    string
	APIKey          string
	APISecretCipher string
	Status          MerchantStatus
	WebhookURL      *string
	CreatedAt       time.Time
}

func (m *Merchant) IsActive() bool {
	return m != nil && m.Status == MerchantActive
}

// Credentials is handed to the merchant once, on creation or rotation.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}
