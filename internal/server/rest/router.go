// Package rest is the HTTP surface of the gateway: the dashboard API
// (bearer tokens), the merchant API (HMAC-signed requests) and the buyer
// checkout (cookie-bound sessions).
package rest

import (
	"net/http"

	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/services"
	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"
)

type RouterConfig struct {
	Users     *services.UserService
	Tokens    *services.TokenService
	Merchants *services.MerchantService
	Verifier  *services.RequestVerifier
	Checkout  *services.CheckoutService
	Health    *HealthHandler

	Logger  logging.Logger
	Metrics *metrics.Metrics

	// AuthRateLimit guards /api/auth, e.g. "40-H". Empty disables it.
	AuthRateLimit string
	SecureCookie  bool
	Development   bool
}

func NewRouter(cfg RouterConfig) (http.Handler, error) {
	logger := cfg.Logger.With("module", "http")

	authLimit, err := NewRateLimiter(cfg.AuthRateLimit)
	if err != nil {
		return nil, err
	}

	authH := NewAuthHandler(cfg.Users, cfg.Tokens, logger)
	merchantH := NewMerchantHandler(cfg.Merchants, logger)
	txH := NewTransactionHandler(cfg.Checkout, cfg.SecureCookie, logger)
	bearer := requireBearer(cfg.Tokens)

	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(requestLogger(logger, cfg.Metrics))
	r.Use(chimid.Recoverer)
	r.Use(secure.New(SecureOptions(cfg.Development)).Handler)

	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", cfg.Health.Live)
		r.Get("/health/deep", cfg.Health.Deep)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimit)
				r.Post("/register", authH.Register)
				r.Post("/login", authH.Login)
				r.Post("/refresh", authH.Refresh)
				r.Post("/logout", authH.Logout)
			})
			r.With(bearer).Get("/me", authH.Me)
		})

		r.Route("/merchants", func(r chi.Router) {
			r.Use(bearer)
			r.Post("/", merchantH.Create)
			r.Get("/me", merchantH.GetMine)
			r.Patch("/me", merchantH.UpdateMine)
			r.Post("/me/rotate-credentials", merchantH.RotateCredentials)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.With(requireSignature(cfg.Verifier, logger)).Post("/checkout", txH.CreateCheckout)
			r.With(requireCheckoutCookie(cfg.Checkout, logger)).Post("/checkout/{sessionID}/pay", txH.Pay)

			r.Group(func(r chi.Router) {
				r.Use(bearer)
				r.Get("/", txH.List)
				r.Get("/{id}", txH.Get)
			})
		})
	})

	return r, nil
}
