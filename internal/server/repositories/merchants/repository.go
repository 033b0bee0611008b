// Package merchants persists merchant accounts and their API credentials.
package merchants

import (
	"context"

	"github.com/dmitrijs2005/paygate/internal/server/models"
)

type Repository interface {
	// Create inserts m and fills ID and CreatedAt. A second merchant for the
	// same user yields common.ErrMerchantExists.
	Create(ctx context.Context, m *models.Merchant) (*models.Merchant, error)
	GetByID(ctx context.Context, id string) (*models.Merchant, error)
	GetByUserID(ctx context.Context, userID string) (*models.Merchant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error)
	// UpdateProfile writes business name and webhook URL for m.ID.
	UpdateProfile(ctx context.Context, m *models.Merchant) (*models.Merchant, error)
	// RotateCredentials swaps key and secret in one statement.
	RotateCredentials(ctx context.Context, id, apiKey, secretCipher string) (*models.Merchant, error)
}
