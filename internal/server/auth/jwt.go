// Package auth mints and parses the dashboard's HS256 session tokens.
// Access and refresh tokens are signed with different secrets so one can
// never be presented as the other.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries sub and role; refresh tokens also set the registered jti.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (c *Claims) UserID() string { return c.Subject }

type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         timex.Clock
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// WithClock pins the issuer's notion of now. Used by tests.
func (i *Issuer) WithClock(c timex.Clock) *Issuer {
	cp := *i
	cp.clock = c
	return &cp
}

func (i *Issuer) AccessToken(userID, role string) (string, error) {
	token, _, err := i.sign(i.accessSecret, i.accessTTL, userID, role, "")
	return token, err
}

// RefreshToken returns the signed token and the expiry embedded in it, which
// is what the ledger stores.
func (i *Issuer) RefreshToken(userID, role, jti string) (string, time.Time, error) {
	return i.sign(i.refreshSecret, i.refreshTTL, userID, role, jti)
}

func (i *Issuer) ParseAccessToken(tokenString string) (*Claims, error) {
	return i.parse(tokenString, i.accessSecret)
}

func (i *Issuer) ParseRefreshToken(tokenString string) (*Claims, error) {
	claims, err := i.parse(tokenString, i.refreshSecret)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) sign(secret []byte, ttl time.Duration, userID, role, jti string) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	})

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, jwt.NewNumericDate(expiresAt).Time, nil
}

func (i *Issuer) parse(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
