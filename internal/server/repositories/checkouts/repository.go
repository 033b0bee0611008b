// Package checkouts persists checkout sessions.
package checkouts

import (
	"context"

	"github.com/dmitrijs2005/paygate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.CheckoutSession) (*models.CheckoutSession, error)
	GetByID(ctx context.Context, id string) (*models.CheckoutSession, error)
	// LeavePending moves a pending session to status. It reports false when
	// the session was no longer pending, i.e. another request won.
	LeavePending(ctx context.Context, id string, status models.CheckoutStatus) (bool, error)
}
