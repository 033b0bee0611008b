// Package transactions persists the insert-only transaction log.
package transactions

import (
	"context"

	"github.com/dmitrijs2005/paygate/internal/server/models"
)

const DefaultListLimit = 50

type Repository interface {
	Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)
	// GetForMerchant returns common.ErrorNotFound for another merchant's row.
	GetForMerchant(ctx context.Context, merchantID, id string) (*models.Transaction, error)
	// ListForMerchant returns newest first.
	ListForMerchant(ctx context.Context, merchantID string, f models.TransactionFilter) ([]*models.Transaction, error)
}
