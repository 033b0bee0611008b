package transactions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

var cols = []string{"id", "merchant_id", "checkout_session_id", "amount", "currency", "status", "customer_email", "payment_method", "metadata", "signature", "created_at"}

const insertQ = `(?s)^\s*INSERT\s+INTO\s+transactions\s*\(.*\)\s*VALUES\s*\(\$1,.*\$9\)\s*RETURNING\s+id,.*created_at\s*$`

func sampleTx() *models.Transaction {
	return &models.Transaction{
		MerchantID: "m1", CheckoutSessionID: "s1", Amount: decimal.RequireFromString("100.50"),
		Currency: "USD", Status: models.TransactionSuccess, CustomerEmail: "buyer@example.com",
		PaymentMethod: "card", Signature: "abcd",
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(insertQ).
		WithArgs("m1", "s1", sqlmock.AnyArg(), "USD", "success", "buyer@example.com", "card", nil, "abcd").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "m1", "s1", "100.50", "USD", "success", "buyer@example.com", "card", nil, "abcd", now))

	got, err := repo.Create(context.Background(), sampleTx())
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, models.TransactionSuccess, got.Status)
	assert.Equal(t, "100.5", got.Amount.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DuplicateSessionIsConflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_checkout_session_id_key"})

	_, err := repo.Create(context.Background(), sampleTx())
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestGetForMerchant(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^SELECT\s+id,.*FROM\s+transactions\s+WHERE\s+id\s*=\s*\$1\s+AND\s+merchant_id\s*=\s*\$2$`
	now := time.Now()

	mock.ExpectQuery(q).WithArgs("t1", "m1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "m1", "s1", "10", "USD", "failed", "b@example.com", "card", []byte(`{"k":"v"}`), "sig", now))
	mock.ExpectQuery(q).WithArgs("t1", "m2").WillReturnError(sql.ErrNoRows)

	got, err := repo.GetForMerchant(context.Background(), "m1", "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, got.Status)
	assert.JSONEq(t, `{"k":"v"}`, string(got.Metadata))

	_, err = repo.GetForMerchant(context.Background(), "m2", "t1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestListForMerchant_DefaultLimit(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^SELECT\s+id,.*FROM\s+transactions\s+WHERE\s+merchant_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$2$`
	now := time.Now()

	mock.ExpectQuery(q).WithArgs("m1", DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t2", "m1", "s2", "20", "USD", "success", "b@example.com", "card", nil, "sig2", now).
			AddRow("t1", "m1", "s1", "10", "USD", "success", "b@example.com", "card", nil, "sig1", now.Add(-time.Minute)))

	got, err := repo.ListForMerchant(context.Background(), "m1", models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t2", got[0].ID)
	assert.Equal(t, "t1", got[1].ID)
}

func TestListForMerchant_AllFilters(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^SELECT\s+id,.*WHERE\s+merchant_id\s*=\s*\$1\s+AND\s+status\s*=\s*\$2\s+AND\s+created_at\s*>=\s*\$3\s+AND\s+created_at\s*<=\s*\$4\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$5$`

	status := models.TransactionFailed
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(q).WithArgs("m1", "failed", from, to, 10).
		WillReturnRows(sqlmock.NewRows(cols))

	got, err := repo.ListForMerchant(context.Background(), "m1", models.TransactionFilter{
		Status: &status, From: &from, To: &to, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestListForMerchant_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("db down"))

	_, err := repo.ListForMerchant(context.Background(), "m1", models.TransactionFilter{})
	assert.ErrorContains(t, err, "db error")
}
