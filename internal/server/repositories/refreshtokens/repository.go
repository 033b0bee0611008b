// Package refreshtokens declares the server-side repository contract for
// the refresh-token ledger.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/paygate/internal/server/models"
)

// Repository stores refresh tokens by hash. Records are revoked, never deleted.
type Repository interface {
	// Create inserts an active record and fills ID and CreatedAt.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find looks up a record by token hash and jti. Implementations return
	// common.ErrorNotFound when absent.
	Find(ctx context.Context, tokenHash, jti string) (*models.RefreshToken, error)

	// Revoke flips an active record to revoked. It reports false when the
	// record was already revoked (a concurrent rotation got there first).
	Revoke(ctx context.Context, id string) (bool, error)

	// RevokeByHash revokes every active record with the hash. Unknown hashes
	// are not an error.
	RevokeByHash(ctx context.Context, tokenHash string) error
}
