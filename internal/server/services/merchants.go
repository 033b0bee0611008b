package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/repomanager"
)

const (
	apiKeyRandomBytes    = 16
	apiSecretRandomBytes = 32
)

// MerchantService owns merchant accounts and their credentials. The plaintext
// API secret leaves this service only in the Credentials returned by Create
// and RotateForUser, and through RevealSecret for signing.
type MerchantService struct {
	store  dbx.Store
	repos  repomanager.RepositoryManager
	cipher *cryptox.SecretCipher
	logger logging.Logger
}

func NewMerchantService(store dbx.Store, repos repomanager.RepositoryManager, cipher *cryptox.SecretCipher, logger logging.Logger) *MerchantService {
	return &MerchantService{
		store:  store,
		repos:  repos,
		cipher: cipher,
		logger: logger.With("module", "merchants"),
	}
}

// newCredentials draws a fresh key pair and returns it with the encrypted secret.
func (s *MerchantService) newCredentials() (*models.Credentials, string, error) {
	key, err := common.MakeRandHexString(apiKeyRandomBytes)
	if err != nil {
		return nil, "", err
	}
	secret, err := common.MakeRandHexString(apiSecretRandomBytes)
	if err != nil {
		return nil, "", err
	}
	blob, err := s.cipher.Encrypt([]byte(secret))
	if err != nil {
		return nil, "", err
	}
	return &models.Credentials{APIKey: common.APIKeyPrefix + key, APISecret: secret}, blob, nil
}

func cleanURL(u *string) *string {
	if u == nil {
		return nil
	}
	v := strings.TrimSpace(*u)
	if v == "" {
		return nil
	}
	return &v
}

// Create registers the merchant owned by userID. A user may own one merchant.
func (s *MerchantService) Create(ctx context.Context, userID, businessName string, webhookURL *string) (*models.Merchant, *models.Credentials, error) {
	businessName = strings.TrimSpace(businessName)
	if businessName == "" {
		return nil, nil, fmt.Errorf("%w: business name is required", common.ErrValidation)
	}

	creds, blob, err := s.newCredentials()
	if err != nil {
		return nil, nil, fmt.Errorf("error generating credentials: %w", err)
	}

	m, err := s.repos.Merchants(s.store.Conn()).Create(ctx, &models.Merchant{
		UserID:          userID,
		BusinessName:    businessName,
		APIKey:          creds.APIKey,
		APISecretCipher: blob,
		Status:          models.MerchantActive,
		WebhookURL:      cleanURL(webhookURL),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating merchant: %w", err)
	}

	s.logger.Info(ctx, "merchant created", "merchant_id", m.ID, "user_id", userID)
	return m, creds, nil
}

func (s *MerchantService) GetForUser(ctx context.Context, userID string) (*models.Merchant, error) {
	return s.repos.Merchants(s.store.Conn()).GetByUserID(ctx, userID)
}

func (s *MerchantService) GetByID(ctx context.Context, id string) (*models.Merchant, error) {
	return s.repos.Merchants(s.store.Conn()).GetByID(ctx, id)
}

func (s *MerchantService) GetByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	return s.repos.Merchants(s.store.Conn()).GetByAPIKey(ctx, apiKey)
}

// UpdateForUser changes the fields that are non-nil. A blank webhook URL
// clears it.
func (s *MerchantService) UpdateForUser(ctx context.Context, userID string, businessName, webhookURL *string) (*models.Merchant, error) {
	if businessName == nil && webhookURL == nil {
		return nil, fmt.Errorf("%w: at least one of business_name or webhook_url must be provided", common.ErrValidation)
	}

	m, err := s.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if businessName != nil {
		name := strings.TrimSpace(*businessName)
		if name == "" {
			return nil, fmt.Errorf("%w: business name cannot be blank", common.ErrValidation)
		}
		m.BusinessName = name
	}
	if webhookURL != nil {
		m.WebhookURL = cleanURL(webhookURL)
	}

	updated, err := s.repos.Merchants(s.store.Conn()).UpdateProfile(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("error updating merchant: %w", err)
	}
	return updated, nil
}

// RotateForUser replaces key and secret together. The previous secret stops
// verifying as soon as this returns.
func (s *MerchantService) RotateForUser(ctx context.Context, userID string) (*models.Merchant, *models.Credentials, error) {
	m, err := s.GetForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	creds, blob, err := s.newCredentials()
	if err != nil {
		return nil, nil, fmt.Errorf("error generating credentials: %w", err)
	}

	rotated, err := s.repos.Merchants(s.store.Conn()).RotateCredentials(ctx, m.ID, creds.APIKey, blob)
	if err != nil {
		return nil, nil, fmt.Errorf("error rotating credentials: %w", err)
	}

	s.logger.Info(ctx, "merchant credentials rotated", "merchant_id", m.ID)
	return rotated, creds, nil
}

// RevealSecret decrypts m's API secret. Callers wipe the result when done.
func (s *MerchantService) RevealSecret(m *models.Merchant) ([]byte, error) {
	return s.cipher.Decrypt(m.APISecretCipher)
}
