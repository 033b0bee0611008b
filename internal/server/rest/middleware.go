package rest

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/metrics"
	"github.com/dmitrijs2005/paygate/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	stdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/unrolled/secure"
)

// MaxSignedBodyBytes caps the body of merchant-signed requests.
const MaxSignedBodyBytes = 1 << 20

// requestLogger logs one line per request once the handler has finished, and
// feeds the request-duration histogram.
func requestLogger(logger logging.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			elapsed := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			m.ObserveRequest(r.Method, route, status, elapsed)

			logger.Info(r.Context(), "request completed",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}

func SecureOptions(isDevelopment bool) secure.Options {
	return secure.Options{
		IsDevelopment:         isDevelopment,
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}
}

func noopMiddleware(next http.Handler) http.Handler {
	return next
}

// NewRateLimiter limits requests per client IP, e.g. "40-H" or "5-M".
// An empty rate disables limiting.
func NewRateLimiter(rateFormatted string) (func(http.Handler) http.Handler, error) {
	if rateFormatted == "" {
		return noopMiddleware, nil
	}
	rate, err := limiter.NewRateFromFormatted(rateFormatted)
	if err != nil {
		return nil, err
	}
	instance := limiter.New(memory.NewStore(), rate)
	mw := stdlib.NewMiddleware(instance, stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusTooManyRequests, "too many auth requests, try again later")
	}))
	return mw.Handler, nil
}

// requireBearer verifies the access token and stores the caller with WithUser.
func requireBearer(tokens *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeErr(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, err := tokens.Verify(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
			if err != nil {
				writeErr(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithUser(r.Context(), &AuthUser{ID: claims.UserID(), Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireSignature authenticates merchant-signed requests. The body is read
// once for verification and handed on unchanged.
func requireSignature(verifier *services.RequestVerifier, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSignedBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeErr(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeErr(w, http.StatusBadRequest, "cannot read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			merchant, err := verifier.Verify(r.Context(),
				r.Header.Get(common.APIKeyHeaderName),
				r.Header.Get(common.TimestampHeaderName),
				r.Header.Get(common.SignatureHeaderName),
				body,
			)
			if err != nil {
				writeServiceError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMerchant(r.Context(), merchant)))
		})
	}
}

// requireCheckoutCookie loads the session named in the path and checks that
// the request comes from the browser the session was created for.
func requireCheckoutCookie(checkout *services.CheckoutService, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(common.CheckoutCookieName)
			if err != nil || cookie.Value == "" {
				writeErr(w, http.StatusUnauthorized, "missing checkout session cookie")
				return
			}

			id := chi.URLParam(r, "sessionID")
			if _, err := uuid.Parse(id); err != nil {
				writeErr(w, http.StatusNotFound, "checkout session not found")
				return
			}

			session, err := checkout.GetSession(r.Context(), id)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					writeErr(w, http.StatusNotFound, "checkout session not found")
					return
				}
				writeServiceError(w, r, logger, err)
				return
			}

			if err := checkout.Binder().Check(cookie.Value, session, r.UserAgent()); err != nil {
				writeServiceError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCheckoutSession(r.Context(), session)))
		})
	}
}
