package rest

import (
	"context"

	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	userContextKey            contextKey = "user"
	merchantContextKey        contextKey = "merchant"
	checkoutSessionContextKey contextKey = "checkout_session"
)

// AuthUser is the dashboard user behind a verified access token.
type AuthUser struct {
	ID   string
	Role string
}

func WithUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *AuthUser {
	u, _ := ctx.Value(userContextKey).(*AuthUser)
	return u
}

func WithMerchant(ctx context.Context, m *models.Merchant) context.Context {
	return context.WithValue(ctx, merchantContextKey, m)
}

// MerchantFromContext returns the merchant that signed the request, or nil.
func MerchantFromContext(ctx context.Context) *models.Merchant {
	m, _ := ctx.Value(merchantContextKey).(*models.Merchant)
	return m
}

func WithCheckoutSession(ctx context.Context, s *models.CheckoutSession) context.Context {
	return context.WithValue(ctx, checkoutSessionContextKey, s)
}

func CheckoutSessionFromContext(ctx context.Context) *models.CheckoutSession {
	s, _ := ctx.Value(checkoutSessionContextKey).(*models.CheckoutSession)
	return s
}

// RequestID is the id assigned by the RequestID middleware.
func RequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
