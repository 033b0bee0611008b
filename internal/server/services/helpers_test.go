package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/auth"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db        *memory.DB
	metrics   *metrics.Metrics
	cipher    *cryptox.SecretCipher
	signer    *cryptox.Signer
	issuer    *auth.Issuer
	tokens    *TokenService
	users     *UserService
	merchants *MerchantService
	verifier  *RequestVerifier
	webhooks  *WebhookSender
	checkout  *CheckoutService
	now       time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cipher, err := cryptox.NewSecretCipher(make([]byte, cryptox.KeySize))
	require.NoError(t, err)
	signer, err := cryptox.NewSigner("sha256")
	require.NoError(t, err)

	e := &testEnv{
		db:      memory.New(),
		metrics: metrics.New(),
		cipher:  cipher,
		signer:  signer,
		now:     testNow,
	}
	log := logging.Nop{}
	hasher := cryptox.NewPasswordHasher(cryptox.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})

	e.issuer = auth.NewIssuer("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour).WithClock(e.clock)
	e.tokens = NewTokenService(e.db, e.db, e.issuer, log, e.metrics).WithClock(e.clock)
	e.users = NewUserService(e.db, e.db, hasher, log)
	e.merchants = NewMerchantService(e.db, e.db, cipher, log)
	e.verifier = NewRequestVerifier(e.merchants, signer, 5*time.Minute, log, e.metrics).WithClock(e.clock)
	e.webhooks = NewWebhookSender(&http.Client{Timeout: time.Second}, signer, time.Second, log, e.metrics).WithClock(e.clock)
	e.checkout = NewCheckoutService(e.db, e.db, e.merchants, signer, e.webhooks, nil, 30*time.Minute, log, e.metrics).WithClock(e.clock)
	return e
}

func (e *testEnv) newMerchant(t *testing.T, email string, webhookURL *string) (*models.User, *models.Merchant, *models.Credentials) {
	t.Helper()
	ctx := context.Background()

	u, err := e.users.Register(ctx, email, "pw")
	require.NoError(t, err)
	m, creds, err := e.merchants.Create(ctx, u.ID, "Shop", webhookURL)
	require.NoError(t, err)
	return u, m, creds
}

func (e *testEnv) newSession(t *testing.T, m *models.Merchant, amount string, ua string) *models.CheckoutSession {
	t.Helper()
	s, err := e.checkout.CreateSession(context.Background(), m, CheckoutInput{
		Amount:        decimal.RequireFromString(amount),
		Currency:      "usd",
		CustomerEmail: "Buyer@Example.com",
	}, ua)
	require.NoError(t, err)
	return s
}
