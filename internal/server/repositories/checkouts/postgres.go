package checkouts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/server/models"
)

const sessionColumns = `id, merchant_id, amount, currency, status, customer_email, metadata, fingerprint_hash, expires_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.CheckoutSession) (*models.CheckoutSession, error) {
	query := `
		INSERT INTO checkout_sessions (merchant_id, amount, currency, status, customer_email, metadata, fingerprint_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + sessionColumns

	return r.getOne(ctx, query,
		s.MerchantID, s.Amount, s.Currency, string(s.Status), s.CustomerEmail,
		dbx.NullIfEmpty(s.Metadata), s.FingerprintHash, s.ExpiresAt)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.CheckoutSession, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM checkout_sessions WHERE id = $1`, id)
}

func (r *PostgresRepository) LeavePending(ctx context.Context, id string, status models.CheckoutStatus) (bool, error) {
	query := `
		UPDATE checkout_sessions
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		if errors.Is(err, dbx.ErrNoRowsAffected) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.CheckoutSession, error) {
	s := &models.CheckoutSession{}
	var status string
	var metadata []byte

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ID, &s.MerchantID, &s.Amount, &s.Currency, &status, &s.CustomerEmail,
		&metadata, &s.FingerprintHash, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	s.Status = models.CheckoutStatus(status)
	if len(metadata) > 0 {
		s.Metadata = metadata
	}
	return s, nil
}
