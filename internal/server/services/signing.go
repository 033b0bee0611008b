package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/timex"
)

// RequestVerifier authenticates merchant-signed API calls by recomputing
// the HMAC of "{timestamp}.{body}" with the merchant's decrypted secret.
type RequestVerifier struct {
	merchants *MerchantService
	signer    *cryptox.Signer
	window    time.Duration
	clock     timex.Clock
	logger    logging.Logger
	metrics   *metrics.Metrics
}

func NewRequestVerifier(merchants *MerchantService, signer *cryptox.Signer, window time.Duration, logger logging.Logger, m *metrics.Metrics) *RequestVerifier {
	if window <= 0 {
		window = common.DefaultReplayWindow
	}
	return &RequestVerifier{
		merchants: merchants,
		signer:    signer,
		window:    window,
		logger:    logger.With("module", "hmac"),
		metrics:   m,
	}
}

func (v *RequestVerifier) WithClock(c timex.Clock) *RequestVerifier {
	v.clock = c
	return v
}

// Verify returns the signing merchant or one of the authentication, replay
// or validation errors. Decryption failures read as an invalid signature.
func (v *RequestVerifier) Verify(ctx context.Context, apiKey, timestamp, signature string, body []byte) (*models.Merchant, error) {
	if apiKey == "" || timestamp == "" || signature == "" {
		v.metrics.AuthEvent("hmac", "missing_headers")
		return nil, common.ErrMissingSignatureHeaders
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		v.metrics.AuthEvent("hmac", "bad_timestamp")
		return nil, common.ErrInvalidTimestamp
	}

	// Sub saturates, so absurd timestamps cannot wrap back into the window.
	skew := v.clock.Now().Sub(time.UnixMilli(ts))
	if skew > v.window || skew < -v.window {
		v.metrics.AuthEvent("hmac", "replay")
		return nil, common.ErrTimestampOutOfWindow
	}

	merchant, err := v.merchants.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			v.metrics.AuthEvent("hmac", "unknown_merchant")
			return nil, common.ErrInvalidMerchant
		}
		return nil, fmt.Errorf("error loading merchant: %w", err)
	}
	if !merchant.IsActive() {
		v.metrics.AuthEvent("hmac", "inactive_merchant")
		return nil, common.ErrInvalidMerchant
	}

	secret, err := v.merchants.RevealSecret(merchant)
	if err != nil {
		v.logger.Error(ctx, "merchant secret cannot be decrypted", "merchant_id", merchant.ID, "error", err)
		v.metrics.AuthEvent("hmac", "bad_signature")
		return nil, common.ErrInvalidSignature
	}
	expected := v.signer.Sign(timestamp, body, string(secret))
	common.WipeByteArray(secret)

	if !cryptox.Equal(expected, signature) {
		v.metrics.AuthEvent("hmac", "bad_signature")
		return nil, common.ErrInvalidSignature
	}

	v.metrics.AuthEvent("hmac", "ok")
	return merchant, nil
}
