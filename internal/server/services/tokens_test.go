package services

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/auth"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueStoresHashNotToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pair, err := e.tokens.Issue(ctx, &models.User{ID: "u1", Role: models.RoleMerchant})
	require.NoError(t, err)

	records := e.db.RefreshTokensFor("u1")
	require.Len(t, records, 1)
	assert.Equal(t, cryptox.HashToken(pair.RefreshToken), records[0].TokenHash)
	assert.NotEqual(t, pair.RefreshToken, records[0].TokenHash)
	assert.False(t, records[0].Revoked)
	assert.Equal(t, testNow.Add(7*24*time.Hour), records[0].ExpiresAt)

	claims, err := e.tokens.Verify(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "merchant", claims.Role)
}

func TestTokenService_DoubleRotateIsReplay(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pair, err := e.tokens.Issue(ctx, &models.User{ID: "u1", Role: models.RoleMerchant})
	require.NoError(t, err)

	rotated, err := e.tokens.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = e.tokens.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, common.ErrRefreshTokenReused)
	assert.ErrorIs(t, err, common.ErrReplay)

	// the rotated token is still good
	_, err = e.tokens.Rotate(ctx, rotated.RefreshToken)
	require.NoError(t, err)

	records := e.db.RefreshTokensFor("u1")
	require.Len(t, records, 3)
	active := 0
	for _, r := range records {
		if !r.Revoked {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestTokenService_ConcurrentRotateSingleWinner(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pair, err := e.tokens.Issue(ctx, &models.User{ID: "u1", Role: models.RoleMerchant})
	require.NoError(t, err)

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		replays int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.tokens.Rotate(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, common.ErrRefreshTokenReused):
				replays++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, replays)
	assert.Len(t, e.db.RefreshTokensFor("u1"), 2)
}

func TestTokenService_RotateRejectsBadTokensWithoutSideEffects(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pair, err := e.tokens.Issue(ctx, &models.User{ID: "u1", Role: models.RoleUser})
	require.NoError(t, err)

	_, err = e.tokens.Rotate(ctx, "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	// an access token is not a refresh token
	_, err = e.tokens.Rotate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	records := e.db.RefreshTokensFor("u1")
	require.Len(t, records, 1)
	assert.False(t, records[0].Revoked)
}

func TestTokenService_RotateForUser(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	u, err := e.users.Register(ctx, "rot@example.com", "pw")
	require.NoError(t, err)
	pair, err := e.tokens.Issue(ctx, u)
	require.NoError(t, err)

	// the access token carries the role loaded at refresh time
	promoted := func(ctx context.Context, id string) (*models.User, error) {
		return &models.User{ID: id, Email: u.Email, Role: models.RoleAdmin}, nil
	}
	got, rotated, err := e.tokens.RotateForUser(ctx, pair.RefreshToken, promoted)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	claims, err := e.tokens.Verify(rotated.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID())
	assert.Equal(t, "admin", claims.Role)
}

func TestTokenService_RotateForUserLookupFailureKeepsToken(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pair, err := e.tokens.Issue(ctx, &models.User{ID: "gone", Role: models.RoleUser})
	require.NoError(t, err)

	_, _, err = e.tokens.RotateForUser(ctx, pair.RefreshToken, e.users.Get)
	require.ErrorIs(t, err, common.ErrorNotFound)

	records := e.db.RefreshTokensFor("gone")
	require.Len(t, records, 1)
	assert.False(t, records[0].Revoked)

	_, err = e.tokens.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestTokenService_RotateExpired(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pair, err := e.tokens.Issue(ctx, &models.User{ID: "u1", Role: models.RoleUser})
	require.NoError(t, err)

	e.now = testNow.Add(8 * 24 * time.Hour)
	_, err = e.tokens.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestTokenService_RotateUnknownToken(t *testing.T) {
	e := newTestEnv(t)

	// correctly signed but never recorded
	token, _, err := e.issuer.RefreshToken("u1", "user", "jti-unknown")
	require.NoError(t, err)

	_, err = e.tokens.Rotate(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrRefreshTokenReused)
}

func TestTokenService_LogoutIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pair, err := e.tokens.Issue(ctx, &models.User{ID: "u1", Role: models.RoleUser})
	require.NoError(t, err)

	require.NoError(t, e.tokens.Logout(ctx, pair.RefreshToken))
	require.NoError(t, e.tokens.Logout(ctx, pair.RefreshToken))
	require.NoError(t, e.tokens.Logout(ctx, "never-issued"))
	require.NoError(t, e.tokens.Logout(ctx, ""))

	_, err = e.tokens.Rotate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenReused)
}

func TestTokenService_RotateRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	issuer := auth.NewIssuer("a", "r", time.Minute, time.Hour).WithClock(func() time.Time { return testNow })
	svc := NewTokenService(dbx.NewSQLStore(db), repomanager.NewPostgresRepositoryManager(), issuer, logging.Nop{}, nil).
		WithClock(func() time.Time { return testNow })
	svc.newJTI = func() string { return "jti-new" }

	old, _, err := issuer.RefreshToken("u1", "merchant", "jti-old")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM refresh_tokens`)).
		WithArgs(cryptox.HashToken(old), "jti-old").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "jti", "revoked", "expires_at", "created_at"}).
			AddRow("rt1", "u1", cryptox.HashToken(old), "jti-old", false, testNow.Add(time.Hour), testNow))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE refresh_tokens`)).
		WithArgs("rt1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO refresh_tokens`)).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err = svc.Rotate(context.Background(), old)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
