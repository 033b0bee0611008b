// Package memory is an in-process implementation of the repositories and
// dbx.Store, selected with a "memory:" DSN for local runs and used by
// service and HTTP tests.
//
// Transactions are serialized and roll back by restoring a snapshot taken at
// begin. Repositories bound outside a transaction wait for the open one to
// finish, so a rollback only ever discards the transaction's own writes.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/checkouts"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/merchants"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/users"
)

type state struct {
	users        map[string]models.User
	tokens       map[string]models.RefreshToken
	merchants    map[string]models.Merchant
	sessions     map[string]models.CheckoutSession
	transactions []models.Transaction
}

func (s *state) clone() *state {
	c := &state{
		users:        make(map[string]models.User, len(s.users)),
		tokens:       make(map[string]models.RefreshToken, len(s.tokens)),
		merchants:    make(map[string]models.Merchant, len(s.merchants)),
		sessions:     make(map[string]models.CheckoutSession, len(s.sessions)),
		transactions: append([]models.Transaction(nil), s.transactions...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.merchants {
		c.merchants[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	return c
}

// txConn is the handle WithTx passes to fn. Memory repositories never call
// through it; it only marks them as bound inside the transaction.
type txConn struct{ dbx.DBTX }

func inTx(db dbx.DBTX) bool {
	_, ok := db.(txConn)
	return ok
}

// DB holds all tables. The zero value is not usable; call New.
type DB struct {
	mu sync.Mutex
	// txMu is held for the whole of a transaction and around every
	// statement issued outside one.
	txMu sync.Mutex
	st   *state
	now  func() time.Time
}

func New() *DB {
	return &DB{
		st: &state{
			users:     map[string]models.User{},
			tokens:    map[string]models.RefreshToken{},
			merchants: map[string]models.Merchant{},
			sessions:  map[string]models.CheckoutSession{},
		},
		now: time.Now,
	}
}

var (
	_ dbx.Store                     = (*DB)(nil)
	_ repomanager.RepositoryManager = (*DB)(nil)
)

// Conn returns nil: memory repositories ignore the handle they are bound to.
func (d *DB) Conn() dbx.DBTX { return nil }

func (d *DB) PingContext(ctx context.Context) error { return ctx.Err() }

func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) (err error) {
	d.txMu.Lock()
	defer d.txMu.Unlock()

	d.mu.Lock()
	snapshot := d.st.clone()
	d.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			d.restore(snapshot)
			panic(p)
		}
		if err != nil {
			d.restore(snapshot)
		}
	}()

	return fn(ctx, txConn{})
}

// lock guards one repository call. Calls from inside WithTx already own txMu.
func (d *DB) lock(inTx bool) func() {
	if !inTx {
		d.txMu.Lock()
	}
	d.mu.Lock()
	return func() {
		d.mu.Unlock()
		if !inTx {
			d.txMu.Unlock()
		}
	}
}

func (d *DB) restore(s *state) {
	d.mu.Lock()
	d.st = s
	d.mu.Unlock()
}

func (d *DB) RunMigrations(context.Context, *sql.DB) error { return nil }

func (d *DB) Users(db dbx.DBTX) users.Repository { return &userRepo{d, inTx(db)} }
func (d *DB) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return &tokenRepo{d, inTx(db)}
}
func (d *DB) Merchants(db dbx.DBTX) merchants.Repository { return &merchantRepo{d, inTx(db)} }
func (d *DB) CheckoutSessions(db dbx.DBTX) checkouts.Repository {
	return &sessionRepo{d, inTx(db)}
}
func (d *DB) Transactions(db dbx.DBTX) transactions.Repository { return &txRepo{d, inTx(db)} }

// Sessions returns a copy of every checkout session. Handy in tests.
func (d *DB) Sessions() []models.CheckoutSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.CheckoutSession, 0, len(d.st.sessions))
	for _, s := range d.st.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// TransactionCount reports how many transactions exist.
func (d *DB) TransactionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.st.transactions)
}

// RefreshTokensFor returns a copy of a user's ledger entries.
func (d *DB) RefreshTokensFor(userID string) []models.RefreshToken {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.RefreshToken
	for _, t := range d.st.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// SetMerchantStatus changes a merchant's status. There is no repository
// operation for it; support staff do it out of band.
func (d *DB) SetMerchantStatus(id string, status models.MerchantStatus) error {
	defer d.lock(false)()
	m, ok := d.st.merchants[id]
	if !ok {
		return common.ErrorNotFound
	}
	m.Status = status
	d.st.merchants[id] = m
	return nil
}
