package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	a := newTestAPI(t, "")

	rec := a.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = a.do(http.MethodGet, "/api/health/deep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["services"].(map[string]any)["database"])
}

type downStore struct{}

func (downStore) Conn() dbx.DBTX { return nil }
func (downStore) WithTx(context.Context, func(context.Context, dbx.DBTX) error) error {
	return errors.New("down")
}
func (downStore) PingContext(context.Context) error { return errors.New("down") }

func TestHealth_DeepDegraded(t *testing.T) {
	h := NewHealthHandler(downStore{})

	rec := httptest.NewRecorder()
	h.Deep(rec, httptest.NewRequest(http.MethodGet, "/api/health/deep", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestSecurityHeaders(t *testing.T) {
	a := newTestAPI(t, "")
	rec := a.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAPI(t, "")
	a.do(http.MethodGet, "/api/health", nil)
	a.do(http.MethodPost, "/api/transactions/checkout", checkoutBody)

	rec := a.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.True(t, strings.Contains(out, `route="/api/health"`), out)
	assert.True(t, strings.Contains(out, `paygate_auth_events_total{kind="hmac",outcome="missing_headers"} 1`), out)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{common.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{common.ErrRefreshTokenReused, http.StatusUnauthorized, "refresh token revoked or not found"},
		{common.ErrTimestampOutOfWindow, http.StatusUnauthorized, "request timestamp is too far from server time"},
		{common.ErrCiphertextTampered, http.StatusUnauthorized, "invalid signature"},
		{common.ErrMalformedCiphertext, http.StatusUnauthorized, "invalid signature"},
		{common.ErrInvalidSignature, http.StatusUnauthorized, "invalid signature"},
		{fmt.Errorf("loading: %w", common.ErrorNotFound), http.StatusNotFound, "not found"},
		{fmt.Errorf("error creating merchant: %w", common.ErrMerchantExists), http.StatusConflict, "merchant already exists for this user"},
		{common.ErrSessionExpired, http.StatusGone, "checkout session expired"},
		{fmt.Errorf("%w: amount must be positive", common.ErrValidation), http.StatusBadRequest, "amount must be positive"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
		{fmt.Errorf("%w: boom", common.ErrConfiguration), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, msg := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, UserFromContext(ctx))
	assert.Nil(t, MerchantFromContext(ctx))
	assert.Nil(t, CheckoutSessionFromContext(ctx))

	ctx = WithUser(ctx, &AuthUser{ID: "u1", Role: "merchant"})
	ctx = WithMerchant(ctx, &models.Merchant{ID: "m1"})
	ctx = WithCheckoutSession(ctx, &models.CheckoutSession{ID: "s1"})

	assert.Equal(t, "u1", UserFromContext(ctx).ID)
	assert.Equal(t, "m1", MerchantFromContext(ctx).ID)
	assert.Equal(t, "s1", CheckoutSessionFromContext(ctx).ID)
}
