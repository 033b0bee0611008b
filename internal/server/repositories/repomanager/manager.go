package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/checkouts"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/merchants"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code runs against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Merchants(db dbx.DBTX) merchants.Repository
	CheckoutSessions(db dbx.DBTX) checkouts.Repository
	Transactions(db dbx.DBTX) transactions.Repository
}
