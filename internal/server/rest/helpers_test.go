package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/auth"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/memory"
	"github.com/dmitrijs2005/paygate/internal/server/services"
	"github.com/stretchr/testify/require"
)

const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)"

type testAPI struct {
	t       *testing.T
	handler http.Handler
	db      *memory.DB
	signer  *cryptox.Signer
	metrics *metrics.Metrics
	now     time.Time
}

func newTestAPI(t *testing.T, rateLimit string) *testAPI {
	t.Helper()

	cipher, err := cryptox.NewSecretCipher(make([]byte, cryptox.KeySize))
	require.NoError(t, err)
	signer, err := cryptox.NewSigner("sha256")
	require.NoError(t, err)

	a := &testAPI{t: t, db: memory.New(), signer: signer, metrics: metrics.New(), now: time.Now()}
	clock := func() time.Time { return a.now }
	log := logging.Nop{}

	hasher := cryptox.NewPasswordHasher(cryptox.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	issuer := auth.NewIssuer("access", "refresh", 15*time.Minute, time.Hour).WithClock(clock)
	tokens := services.NewTokenService(a.db, a.db, issuer, log, a.metrics).WithClock(clock)
	users := services.NewUserService(a.db, a.db, hasher, log)
	merchants := services.NewMerchantService(a.db, a.db, cipher, log)
	verifier := services.NewRequestVerifier(merchants, signer, 5*time.Minute, log, a.metrics).WithClock(clock)
	webhooks := services.NewWebhookSender(nil, signer, time.Second, log, a.metrics)
	checkout := services.NewCheckoutService(a.db, a.db, merchants, signer, webhooks, nil, 30*time.Minute, log, a.metrics).WithClock(clock)

	h, err := NewRouter(RouterConfig{
		Users:         users,
		Tokens:        tokens,
		Merchants:     merchants,
		Verifier:      verifier,
		Checkout:      checkout,
		Health:        NewHealthHandler(a.db),
		Logger:        log,
		Metrics:       a.metrics,
		AuthRateLimit: rateLimit,
	})
	require.NoError(t, err)
	a.handler = h
	return a
}

type reqOpt func(*http.Request)

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withUA(ua string) reqOpt {
	return func(r *http.Request) { r.Header.Set("User-Agent", ua) }
}

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (a *testAPI) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	a.t.Helper()

	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(a.t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:4242"
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type session struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

func (a *testAPI) registerAndLogin(email string) session {
	a.t.Helper()

	rec := a.do(http.MethodPost, "/api/auth/register", map[string]string{"email": email, "password": "s3cret-pass"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "s3cret-pass"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return session{UserID: resp.User.ID, AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
}

type credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

func (a *testAPI) createMerchant(s session, webhookURL string) credentials {
	a.t.Helper()

	body := map[string]any{"businessName": "Acme Ltd"}
	if webhookURL != "" {
		body["webhook_url"] = webhookURL
	}
	rec := a.do(http.MethodPost, "/api/merchants", body, withBearer(s.AccessToken))
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Credentials credentials `json:"credentials"`
	}
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Credentials
}

// signed returns options that sign body with creds at the API's current time.
func (a *testAPI) signed(creds credentials, body []byte) []reqOpt {
	ts := strconv.FormatInt(a.now.UnixMilli(), 10)
	return []reqOpt{
		withHeader("x-api-key", creds.APIKey),
		withHeader("x-timestamp", ts),
		withHeader("x-signature", a.signer.Sign(ts, body, creds.APISecret)),
	}
}
