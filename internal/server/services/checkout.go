package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paygate/internal/timex"
	"github.com/shopspring/decimal"
)

// PaymentPolicy decides the outcome of a payment attempt. It stands in for a
// payment processor.
type PaymentPolicy interface {
	Decide(ctx context.Context, session *models.CheckoutSession, paymentMethod string) models.TransactionStatus
}

// ApproveAll accepts every payment.
type ApproveAll struct{}

func (ApproveAll) Decide(context.Context, *models.CheckoutSession, string) models.TransactionStatus {
	return models.TransactionSuccess
}

type CheckoutInput struct {
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	Metadata      json.RawMessage
}

type CheckoutService struct {
	store     dbx.Store
	repos     repomanager.RepositoryManager
	merchants *MerchantService
	signer    *cryptox.Signer
	binder    SessionBinder
	webhooks  *WebhookSender
	policy    PaymentPolicy
	ttl       time.Duration
	clock     timex.Clock
	logger    logging.Logger
	metrics   *metrics.Metrics
}

func NewCheckoutService(
	store dbx.Store,
	repos repomanager.RepositoryManager,
	merchants *MerchantService,
	signer *cryptox.Signer,
	webhooks *WebhookSender,
	policy PaymentPolicy,
	ttl time.Duration,
	logger logging.Logger,
	m *metrics.Metrics,
) *CheckoutService {
	if policy == nil {
		policy = ApproveAll{}
	}
	if ttl <= 0 {
		ttl = common.DefaultCheckoutSessionTTL
	}
	return &CheckoutService{
		store:     store,
		repos:     repos,
		merchants: merchants,
		signer:    signer,
		webhooks:  webhooks,
		policy:    policy,
		ttl:       ttl,
		logger:    logger.With("module", "checkout"),
		metrics:   m,
	}
}

func (s *CheckoutService) WithClock(c timex.Clock) *CheckoutService {
	s.clock = c
	return s
}

func (s *CheckoutService) Binder() SessionBinder { return s.binder }

func (s *CheckoutService) TTL() time.Duration { return s.ttl }

// CreateSession opens a pending checkout for merchant, bound to the browser
// identified by userAgent.
func (s *CheckoutService) CreateSession(ctx context.Context, merchant *models.Merchant, in CheckoutInput, userAgent string) (*models.CheckoutSession, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", common.ErrValidation)
	}

	session, err := s.repos.CheckoutSessions(s.store.Conn()).Create(ctx, &models.CheckoutSession{
		MerchantID:      merchant.ID,
		Amount:          in.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(in.Currency)),
		Status:          models.CheckoutPending,
		CustomerEmail:   normalizeEmail(in.CustomerEmail),
		Metadata:        in.Metadata,
		FingerprintHash: s.binder.Fingerprint(userAgent),
		ExpiresAt:       s.clock.Now().Add(s.ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating checkout session: %w", err)
	}

	s.logger.Info(ctx, "checkout session created", "session_id", session.ID, "merchant_id", merchant.ID)
	return session, nil
}

func (s *CheckoutService) GetSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	return s.repos.CheckoutSessions(s.store.Conn()).GetByID(ctx, id)
}

// signedFields is the canonical payload of a transaction signature.
type signedFields struct {
	CheckoutSessionID string      `json:"checkout_session_id"`
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	CustomerEmail     string      `json:"customer_email"`
	PaymentMethod     string      `json:"payment_method"`
}

// SignTransaction returns the integrity signature of tx under secret.
func (s *CheckoutService) SignTransaction(tx *models.Transaction, secret string) (string, error) {
	payload, err := json.Marshal(signedFields{
		CheckoutSessionID: tx.CheckoutSessionID,
		Amount:            json.Number(tx.Amount.String()),
		Currency:          tx.Currency,
		CustomerEmail:     tx.CustomerEmail,
		PaymentMethod:     tx.PaymentMethod,
	})
	if err != nil {
		return "", err
	}
	return s.signer.SignPayload(payload, secret), nil
}

// ProcessPayment settles a pending session. Exactly one of any number of
// concurrent attempts on the same session records a transaction; the others
// get common.ErrSessionNotPending.
func (s *CheckoutService) ProcessPayment(ctx context.Context, session *models.CheckoutSession, paymentMethod string, amount decimal.Decimal) (*models.Transaction, error) {
	if session.ExpiredAt(s.clock.Now()) {
		if session.IsPending() {
			if _, err := s.repos.CheckoutSessions(s.store.Conn()).LeavePending(ctx, session.ID, models.CheckoutExpired); err != nil {
				return nil, fmt.Errorf("error expiring checkout session: %w", err)
			}
		}
		return nil, common.ErrSessionExpired
	}
	if !session.IsPending() {
		return nil, common.ErrSessionNotPending
	}
	if !amount.Equal(session.Amount) {
		return nil, common.ErrAmountMismatch
	}

	merchant, err := s.merchants.GetByID(ctx, session.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("error loading merchant: %w", err)
	}
	secretBytes, err := s.merchants.RevealSecret(merchant)
	if err != nil {
		return nil, fmt.Errorf("error decrypting merchant secret: %w", err)
	}
	secret := string(secretBytes)
	common.WipeByteArray(secretBytes)

	status := s.policy.Decide(ctx, session, paymentMethod)
	sessionStatus := models.CheckoutCompleted
	if status != models.TransactionSuccess {
		status = models.TransactionFailed
		sessionStatus = models.CheckoutFailed
	}

	tx := &models.Transaction{
		MerchantID:        session.MerchantID,
		CheckoutSessionID: session.ID,
		Amount:            session.Amount,
		Currency:          session.Currency,
		Status:            status,
		CustomerEmail:     session.CustomerEmail,
		PaymentMethod:     paymentMethod,
		Metadata:          session.Metadata,
	}
	tx.Signature, err = s.SignTransaction(tx, secret)
	if err != nil {
		return nil, fmt.Errorf("error signing transaction: %w", err)
	}

	var created *models.Transaction

	err = s.store.WithTx(ctx, func(ctx context.Context, db dbx.DBTX) error {
		won, err := s.repos.CheckoutSessions(db).LeavePending(ctx, session.ID, sessionStatus)
		if err != nil {
			return fmt.Errorf("error updating checkout session: %w", err)
		}
		if !won {
			return common.ErrSessionNotPending
		}

		created, err = s.repos.Transactions(db).Create(ctx, tx)
		if err != nil {
			return fmt.Errorf("error creating transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrSessionNotPending) {
			s.logger.Info(ctx, "concurrent payment rejected", "session_id", session.ID)
		}
		return nil, err
	}

	s.metrics.Payment(string(created.Status))
	s.logger.Info(ctx, "payment processed", "session_id", session.ID, "transaction_id", created.ID, "status", created.Status)

	settled := *session
	settled.Status = sessionStatus
	s.webhooks.Notify(ctx, merchant, secret, NewTransactionEvent(created, &settled))

	return created, nil
}

// ListTransactions lists the transactions of the merchant owned by userID.
func (s *CheckoutService) ListTransactions(ctx context.Context, userID string, f models.TransactionFilter) ([]*models.Transaction, error) {
	merchant, err := s.merchants.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repos.Transactions(s.store.Conn()).ListForMerchant(ctx, merchant.ID, f)
}

// GetTransaction returns common.ErrorNotFound for transactions of other merchants.
func (s *CheckoutService) GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error) {
	merchant, err := s.merchants.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repos.Transactions(s.store.Conn()).GetForMerchant(ctx, merchant.ID, id)
}

// VerifyTransaction recomputes tx's integrity signature with the merchant's
// current secret.
func (s *CheckoutService) VerifyTransaction(ctx context.Context, tx *models.Transaction) (bool, error) {
	merchant, err := s.merchants.GetByID(ctx, tx.MerchantID)
	if err != nil {
		return false, err
	}
	secretBytes, err := s.merchants.RevealSecret(merchant)
	if err != nil {
		return false, err
	}
	defer common.WipeByteArray(secretBytes)

	expected, err := s.SignTransaction(tx, string(secretBytes))
	if err != nil {
		return false, err
	}
	return cryptox.Equal(expected, tx.Signature), nil
}
