// Package common contains shared constants, sentinel errors and small
// helpers used across the paygate server components.
package common

import "time"

// Headers carried by merchant-signed requests.
const (
	APIKeyHeaderName    = "x-api-key"
	TimestampHeaderName = "x-timestamp"
	SignatureHeaderName = "x-signature"
)

// Headers attached to outbound webhook deliveries.
const (
	WebhookTimestampHeaderName = "x-webhook-timestamp"
	WebhookSignatureHeaderName = "x-webhook-signature"
)

// CheckoutCookieName is the httpOnly cookie binding a checkout session to the
// browser that created it. Its value is the browser fingerprint.
const CheckoutCookieName = "pg_session"

// APIKeyPrefix marks merchant API keys so they are recognizable in logs and
// dashboards.
const APIKeyPrefix = "mpg_"

// Defaults shared by config and services.
const (
	DefaultReplayWindow       = 5 * time.Minute
	DefaultCheckoutSessionTTL = 30 * time.Minute
	DefaultWebhookTimeout     = 5 * time.Second
)
