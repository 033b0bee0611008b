package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/auth"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paygate/internal/timex"
	"github.com/google/uuid"
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenService manages the dashboard login session: short-lived access
// tokens and a ledger of single-use refresh tokens.
type TokenService struct {
	store   dbx.Store
	repos   repomanager.RepositoryManager
	issuer  *auth.Issuer
	clock   timex.Clock
	newJTI  func() string
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewTokenService(store dbx.Store, repos repomanager.RepositoryManager, issuer *auth.Issuer, logger logging.Logger, m *metrics.Metrics) *TokenService {
	return &TokenService{
		store:   store,
		repos:   repos,
		issuer:  issuer,
		newJTI:  uuid.NewString,
		logger:  logger.With("module", "tokens"),
		metrics: m,
	}
}

// WithClock pins "now" for ledger expiry checks. Used by tests.
func (s *TokenService) WithClock(c timex.Clock) *TokenService {
	s.clock = c
	return s
}

// Issue mints a token pair for user and records the refresh token as active.
func (s *TokenService) Issue(ctx context.Context, user *models.User) (*TokenPair, error) {
	return s.issue(ctx, s.store.Conn(), user.ID, string(user.Role))
}

func (s *TokenService) issue(ctx context.Context, db dbx.DBTX, userID, role string) (*TokenPair, error) {
	access, err := s.issuer.AccessToken(userID, role)
	if err != nil {
		return nil, fmt.Errorf("error signing access token: %w", err)
	}

	jti := s.newJTI()
	refresh, expiresAt, err := s.issuer.RefreshToken(userID, role, jti)
	if err != nil {
		return nil, fmt.Errorf("error signing refresh token: %w", err)
	}

	err = s.repos.RefreshTokens(db).Create(ctx, &models.RefreshToken{
		UserID:    userID,
		TokenHash: cryptox.HashToken(refresh),
		JTI:       jti,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate exchanges a refresh token for a new pair. Each refresh token can be
// rotated exactly once; of two concurrent rotations only one succeeds and
// the other gets common.ErrRefreshTokenReused.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	_, pair, err := s.rotate(ctx, refreshToken, nil)
	return pair, err
}

// UserLookup loads the owner of a refresh token.
type UserLookup func(ctx context.Context, userID string) (*models.User, error)

// RotateForUser is Rotate for callers that need the account: the user is
// loaded before the old token is consumed, and the new pair carries the
// user's current role. A lookup failure leaves the old token active.
func (s *TokenService) RotateForUser(ctx context.Context, refreshToken string, lookup UserLookup) (*models.User, *TokenPair, error) {
	return s.rotate(ctx, refreshToken, lookup)
}

func (s *TokenService) rotate(ctx context.Context, refreshToken string, lookup UserLookup) (*models.User, *TokenPair, error) {
	claims, err := s.issuer.ParseRefreshToken(refreshToken)
	if err != nil {
		s.metrics.AuthEvent("refresh", "invalid")
		return nil, nil, err
	}

	repo := s.repos.RefreshTokens(s.store.Conn())
	record, err := repo.Find(ctx, cryptox.HashToken(refreshToken), claims.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.replayed(ctx, claims)
			return nil, nil, common.ErrRefreshTokenReused
		}
		return nil, nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	if record.Revoked || record.UserID != claims.UserID() {
		s.replayed(ctx, claims)
		return nil, nil, common.ErrRefreshTokenReused
	}

	if !s.clock.Now().Before(record.ExpiresAt) {
		s.metrics.AuthEvent("refresh", "expired")
		return nil, nil, common.ErrRefreshTokenExpired
	}

	userID, role := claims.UserID(), claims.Role
	var user *models.User
	if lookup != nil {
		user, err = lookup(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		role = string(user.Role)
	}

	var pair *TokenPair

	err = s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		won, err := s.repos.RefreshTokens(tx).Revoke(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("error revoking refresh token: %w", err)
		}
		if !won {
			return common.ErrRefreshTokenReused
		}

		pair, err = s.issue(ctx, tx, userID, role)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrRefreshTokenReused) {
			s.replayed(ctx, claims)
		}
		return nil, nil, err
	}

	s.metrics.AuthEvent("refresh", "rotated")
	return user, pair, nil
}

func (s *TokenService) replayed(ctx context.Context, claims *auth.Claims) {
	s.metrics.AuthEvent("refresh", "replay")
	s.logger.Warn(ctx, "refresh token replay rejected", "user_id", claims.UserID(), "jti", claims.ID)
}

// Logout revokes the refresh token. Unknown or already revoked tokens are
// not an error.
func (s *TokenService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.repos.RefreshTokens(s.store.Conn()).RevokeByHash(ctx, cryptox.HashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("error revoking refresh token: %w", err)
	}
	return nil
}

// Verify checks an access token's signature and expiry only.
func (s *TokenService) Verify(accessToken string) (*auth.Claims, error) {
	return s.issuer.ParseAccessToken(accessToken)
}
