package dbx

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNoRowsAffected is returned by ExpectOneRow when a conditional
// UPDATE matched nothing.
var ErrNoRowsAffected = errors.New("no rows affected")

// Store is what services hold instead of a raw *sql.DB: a plain handle for
// single statements and a transactional runner for multi-step writes.
type Store interface {
	Conn() DBTX
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
	PingContext(ctx context.Context) error
}

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Conn() DBTX { return s.db }

func (s *SQLStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, s.db, nil, fn)
}

func (s *SQLStore) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ExpectOneRow turns the result of a conditional write into ErrNoRowsAffected
// unless exactly one row changed.
func ExpectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNoRowsAffected
	}
	return nil
}
