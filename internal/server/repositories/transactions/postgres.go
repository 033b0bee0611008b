package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/server/models"
)

const txColumns = `id, merchant_id, checkout_session_id, amount, currency, status, customer_email, payment_method, metadata, signature, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	query := `
		INSERT INTO transactions (merchant_id, checkout_session_id, amount, currency, status, customer_email, payment_method, metadata, signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + txColumns

	row := r.db.QueryRowContext(ctx, query,
		t.MerchantID, t.CheckoutSessionID, t.Amount, t.Currency, string(t.Status),
		t.CustomerEmail, t.PaymentMethod, dbx.NullIfEmpty(t.Metadata), t.Signature)

	created, err := scanTransaction(row)
	if err != nil {
		if _, ok := dbx.IsUniqueViolation(err); ok {
			return nil, common.ErrSessionNotPending
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetForMerchant(ctx context.Context, merchantID, id string) (*models.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1 AND merchant_id = $2`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id, merchantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListForMerchant(ctx context.Context, merchantID string, f models.TransactionFilter) ([]*models.Transaction, error) {
	where := []string{"merchant_id = $1"}
	args := []any{merchantID}

	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, cond+" $"+strconv.Itoa(len(args)))
	}
	if f.Status != nil {
		add("status =", string(*f.Status))
	}
	if f.From != nil {
		add("created_at >=", *f.From)
	}
	if f.To != nil {
		add("created_at <=", *f.To)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	t := &models.Transaction{}
	var status string
	var metadata []byte

	if err := row.Scan(&t.ID, &t.MerchantID, &t.CheckoutSessionID, &t.Amount, &t.Currency, &status,
		&t.CustomerEmail, &t.PaymentMethod, &metadata, &t.Signature, &t.CreatedAt); err != nil {
		return nil, err
	}

	t.Status = models.TransactionStatus(status)
	if len(metadata) > 0 {
		t.Metadata = metadata
	}
	return t, nil
}
