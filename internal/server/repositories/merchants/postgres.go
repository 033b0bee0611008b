package merchants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/server/models"
)

const merchantColumns = `id, user_id, business_name, api_key, api_secret, status, webhook_url, created_at`

// userIDConstraint is the one-merchant-per-user unique key from the init
// migration. Any other unique violation on insert is not the caller's fault.
const userIDConstraint = "merchants_user_id_key"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, m *models.Merchant) (*models.Merchant, error) {
	query := `
		INSERT INTO merchants (user_id, business_name, api_key, api_secret, status, webhook_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + merchantColumns

	row := r.db.QueryRowContext(ctx, query,
		m.UserID, m.BusinessName, m.APIKey, m.APISecretCipher, string(m.Status), nullString(m.WebhookURL))

	created, err := scanMerchant(row)
	if err != nil {
		if name, ok := dbx.IsUniqueViolation(err); ok && name == userIDConstraint {
			return nil, common.ErrMerchantExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Merchant, error) {
	return r.getOne(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*models.Merchant, error) {
	return r.getOne(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) GetByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	return r.getOne(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE api_key = $1`, apiKey)
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, m *models.Merchant) (*models.Merchant, error) {
	query := `
		UPDATE merchants
		SET business_name = $2, webhook_url = $3
		WHERE id = $1
		RETURNING ` + merchantColumns

	return r.getOne(ctx, query, m.ID, m.BusinessName, nullString(m.WebhookURL))
}

func (r *PostgresRepository) RotateCredentials(ctx context.Context, id, apiKey, secretCipher string) (*models.Merchant, error) {
	query := `
		UPDATE merchants
		SET api_key = $2, api_secret = $3
		WHERE id = $1
		RETURNING ` + merchantColumns

	return r.getOne(ctx, query, id, apiKey, secretCipher)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.Merchant, error) {
	m, err := scanMerchant(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func scanMerchant(row *sql.Row) (*models.Merchant, error) {
	m := &models.Merchant{}
	var status string
	var webhook sql.NullString

	if err := row.Scan(&m.ID, &m.UserID, &m.BusinessName, &m.APIKey, &m.APISecretCipher, &status, &webhook, &m.CreatedAt); err != nil {
		return nil, err
	}

	m.Status = models.MerchantStatus(status)
	if webhook.Valid {
		m.WebhookURL = &webhook.String
	}
	return m, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
