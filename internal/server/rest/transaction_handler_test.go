package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var checkoutBody = []byte(`{"amount":49.99,"currency":"usd","customer_email":"buyer@example.com","metadata":{"order":"A-1"}}`)

// openCheckout runs the signed checkout-init and returns the session id and cookie.
func (a *testAPI) openCheckout(creds credentials) (string, *http.Cookie) {
	a.t.Helper()

	opts := append(a.signed(creds, checkoutBody), withUA(browserUA))
	rec := a.do(http.MethodPost, "/api/transactions/checkout", checkoutBody, opts...)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(a.t, cookies, 1)
	return decodeBody(a.t, rec)["checkout_session_id"].(string), cookies[0]
}

func payPath(id string) string { return "/api/transactions/checkout/" + id + "/pay" }

func TestCheckout_SignedInitSetsBoundCookie(t *testing.T) {
	a := newTestAPI(t, "")
	creds := a.createMerchant(a.registerAndLogin("m@example.com"), "")

	opts := append(a.signed(creds, checkoutBody), withUA(browserUA))
	rec := a.do(http.MethodPost, "/api/transactions/checkout", checkoutBody, opts...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["checkout_session_id"])
	assert.Equal(t, "49.99", body["amount"])
	assert.Equal(t, "USD", body["currency"])
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["expires_at"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, common.CheckoutCookieName, c.Name)
	assert.Equal(t, cryptox.Fingerprint(browserUA), c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 1800, c.MaxAge)
	assert.False(t, c.Secure)
}

func TestCheckout_SignatureFailures(t *testing.T) {
	a := newTestAPI(t, "")
	creds := a.createMerchant(a.registerAndLogin("m@example.com"), "")
	now := strconv.FormatInt(a.now.UnixMilli(), 10)
	stale := strconv.FormatInt(a.now.Add(-6*time.Minute).UnixMilli(), 10)

	tests := []struct {
		name    string
		headers map[string]string
		body    []byte
		want    int
		message string
	}{
		{
			name:    "no headers",
			body:    checkoutBody,
			want:    http.StatusUnauthorized,
			message: "missing HMAC authentication headers",
		},
		{
			name:    "bad timestamp",
			headers: map[string]string{"x-api-key": creds.APIKey, "x-timestamp": "soon", "x-signature": "ab"},
			body:    checkoutBody,
			want:    http.StatusBadRequest,
			message: "invalid timestamp",
		},
		{
			name:    "stale",
			headers: map[string]string{"x-api-key": creds.APIKey, "x-timestamp": stale, "x-signature": a.signer.Sign(stale, checkoutBody, creds.APISecret)},
			body:    checkoutBody,
			want:    http.StatusUnauthorized,
			message: "request timestamp is too far from server time",
		},
		{
			name:    "unknown key",
			headers: map[string]string{"x-api-key": "mpg_00", "x-timestamp": now, "x-signature": a.signer.Sign(now, checkoutBody, creds.APISecret)},
			body:    checkoutBody,
			want:    http.StatusUnauthorized,
			message: "invalid or inactive merchant",
		},
		{
			name:    "tampered body",
			headers: map[string]string{"x-api-key": creds.APIKey, "x-timestamp": now, "x-signature": a.signer.Sign(now, checkoutBody, creds.APISecret)},
			body:    []byte(`{"amount":0.01,"currency":"usd","customer_email":"buyer@example.com"}`),
			want:    http.StatusUnauthorized,
			message: "invalid signature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []reqOpt
			for k, v := range tt.headers {
				opts = append(opts, withHeader(k, v))
			}
			rec := a.do(http.MethodPost, "/api/transactions/checkout", tt.body, opts...)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
			assert.Empty(t, rec.Result().Cookies())
		})
	}
	assert.Empty(t, a.db.Sessions())
}

func TestCheckout_InitValidation(t *testing.T) {
	a := newTestAPI(t, "")
	creds := a.createMerchant(a.registerAndLogin("m@example.com"), "")

	for _, body := range []string{
		`{"amount":10,"currency":"dollars","customer_email":"b@example.com"}`,
		`{"amount":10,"currency":"usd","customer_email":"nope"}`,
		`{"amount":-1,"currency":"usd","customer_email":"b@example.com"}`,
		`{"amount":10,"currency":"usd","customer_email":"b@example.com","metadata":[1,2]}`,
	} {
		raw := []byte(body)
		rec := a.do(http.MethodPost, "/api/transactions/checkout", raw, a.signed(creds, raw)...)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCheckout_PayFlow(t *testing.T) {
	a := newTestAPI(t, "")
	owner := a.registerAndLogin("m@example.com")
	creds := a.createMerchant(owner, "")
	id, cookie := a.openCheckout(creds)

	pay := map[string]any{"payment_method": "card", "amount": 49.99}

	rec := a.do(http.MethodPost, payPath(id), pay, withCookie(cookie), withUA(browserUA))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tx := decodeBody(t, rec)
	assert.Equal(t, "success", tx["status"])
	assert.Equal(t, id, tx["checkout_session_id"])
	assert.Equal(t, "card", tx["payment_method"])
	assert.Equal(t, "USD", tx["currency"])

	rec = a.do(http.MethodPost, payPath(id), pay, withCookie(cookie), withUA(browserUA))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, a.db.TransactionCount())

	rec = a.do(http.MethodGet, "/api/transactions", nil, withBearer(owner.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody(t, rec)
	assert.EqualValues(t, 1, list["count"])
	first := list["transactions"].([]any)[0].(map[string]any)
	assert.Equal(t, tx["transaction_id"], first["id"])
	assert.Equal(t, "buyer@example.com", first["customer_email"])
	assert.NotContains(t, first, "signature")

	rec = a.do(http.MethodGet, "/api/transactions/"+tx["transaction_id"].(string), nil, withBearer(owner.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decodeBody(t, rec)
	assert.Equal(t, "card", detail["payment_method"])
	assert.Equal(t, map[string]any{"order": "A-1"}, detail["metadata"])
	assert.Equal(t, true, detail["signature_valid"])
	assert.NotContains(t, detail, "signature")

	rec = a.do(http.MethodGet, "/api/transactions?status=failed", nil, withBearer(owner.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decodeBody(t, rec)["count"])
}

func TestCheckout_PayRequiresBoundBrowser(t *testing.T) {
	a := newTestAPI(t, "")
	creds := a.createMerchant(a.registerAndLogin("m@example.com"), "")
	id, cookie := a.openCheckout(creds)
	pay := map[string]any{"payment_method": "card", "amount": 49.99}

	tests := []struct {
		name string
		path string
		opts []reqOpt
		want int
	}{
		{name: "no cookie", path: payPath(id), opts: []reqOpt{withUA(browserUA)}, want: http.StatusUnauthorized},
		{name: "other browser", path: payPath(id), opts: []reqOpt{withCookie(cookie), withUA("curl/8.4.0")}, want: http.StatusUnauthorized},
		{name: "forged cookie", path: payPath(id), opts: []reqOpt{withCookie(&http.Cookie{Name: common.CheckoutCookieName, Value: cryptox.Fingerprint("curl/8.4.0")}), withUA(browserUA)}, want: http.StatusUnauthorized},
		{name: "unknown session", path: payPath("6f1d8f0e-4c1a-4e55-9a57-1d7c0f6b2a10"), opts: []reqOpt{withCookie(cookie), withUA(browserUA)}, want: http.StatusNotFound},
		{name: "malformed session id", path: payPath("nope"), opts: []reqOpt{withCookie(cookie), withUA(browserUA)}, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, tt.path, pay, tt.opts...)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 0, a.db.TransactionCount())

	rec := a.do(http.MethodPost, payPath(id), pay, withCookie(cookie), withUA("curl/8.4.0"))
	assert.Equal(t, "invalid checkout session context", decodeBody(t, rec)["error"])
}

func TestCheckout_PayAmountMismatchAndExpiry(t *testing.T) {
	a := newTestAPI(t, "")
	creds := a.createMerchant(a.registerAndLogin("m@example.com"), "")
	id, cookie := a.openCheckout(creds)

	rec := a.do(http.MethodPost, payPath(id), map[string]any{"payment_method": "card", "amount": 1}, withCookie(cookie), withUA(browserUA))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount mismatch with checkout session", decodeBody(t, rec)["error"])

	rec = a.do(http.MethodPost, payPath(id), map[string]any{"payment_method": "card"}, withCookie(cookie), withUA(browserUA))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a.now = a.now.Add(31 * time.Minute)
	rec = a.do(http.MethodPost, payPath(id), map[string]any{"payment_method": "card", "amount": "49.99"}, withCookie(cookie), withUA(browserUA))
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "checkout session expired", decodeBody(t, rec)["error"])
}

func TestTransactions_ScopedAndValidated(t *testing.T) {
	a := newTestAPI(t, "")
	owner := a.registerAndLogin("one@example.com")
	other := a.registerAndLogin("two@example.com")
	creds := a.createMerchant(owner, "")
	a.createMerchant(other, "")

	id, cookie := a.openCheckout(creds)
	rec := a.do(http.MethodPost, payPath(id), map[string]any{"payment_method": "card", "amount": 49.99}, withCookie(cookie), withUA(browserUA))
	require.Equal(t, http.StatusCreated, rec.Code)
	txID := decodeBody(t, rec)["transaction_id"].(string)

	rec = a.do(http.MethodGet, "/api/transactions/"+txID, nil, withBearer(other.AccessToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for _, q := range []string{"?status=weird", "?from=yesterday", "?limit=0", "?limit=abc"} {
		rec = a.do(http.MethodGet, "/api/transactions"+q, nil, withBearer(owner.AccessToken))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	noMerchant := a.registerAndLogin("three@example.com")
	rec = a.do(http.MethodGet, "/api/transactions", nil, withBearer(noMerchant.AccessToken))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckout_WebhookDeliveredAfterPay(t *testing.T) {
	a := newTestAPI(t, "")
	got := make(chan http.Header, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev map[string]any
		_ = json.NewDecoder(r.Body).Decode(&ev)
		got <- r.Header.Clone()
	}))
	defer hook.Close()

	creds := a.createMerchant(a.registerAndLogin("m@example.com"), hook.URL)
	id, cookie := a.openCheckout(creds)
	rec := a.do(http.MethodPost, payPath(id), map[string]any{"payment_method": "card", "amount": 49.99}, withCookie(cookie), withUA(browserUA))
	require.Equal(t, http.StatusCreated, rec.Code)

	select {
	case h := <-got:
		assert.NotEmpty(t, h.Get(common.WebhookSignatureHeaderName))
		assert.NotEmpty(t, h.Get(common.WebhookTimestampHeaderName))
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}
