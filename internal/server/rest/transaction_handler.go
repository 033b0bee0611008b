package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxListLimit = 500

type TransactionHandler struct {
	checkout     *services.CheckoutService
	secureCookie bool
	validate     *validator.Validate
	logger       logging.Logger
}

func NewTransactionHandler(checkout *services.CheckoutService, secureCookie bool, logger logging.Logger) *TransactionHandler {
	return &TransactionHandler{
		checkout:     checkout,
		secureCookie: secureCookie,
		validate:     newValidator(),
		logger:       logger,
	}
}

type checkoutRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required,len=3,alpha"`
	CustomerEmail string          `json:"customer_email" validate:"required,email,max=254"`
	Metadata      json.RawMessage `json:"metadata"`
}

// CreateCheckout opens a session for the signing merchant and binds it to
// the calling browser with the checkout cookie.
func (h *TransactionHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if !decode(w, r, h.validate, &body) {
		return
	}
	if string(body.Metadata) == "null" {
		body.Metadata = nil
	}
	if len(body.Metadata) > 0 && body.Metadata[0] != '{' {
		writeErr(w, http.StatusBadRequest, "metadata must be an object")
		return
	}

	session, err := h.checkout.CreateSession(r.Context(), MerchantFromContext(r.Context()), services.CheckoutInput{
		Amount:        body.Amount,
		Currency:      body.Currency,
		CustomerEmail: body.CustomerEmail,
		Metadata:      body.Metadata,
	}, r.UserAgent())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.CheckoutCookieName,
		Value:    session.FingerprintHash,
		Path:     "/",
		MaxAge:   int(h.checkout.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"checkout_session_id": session.ID,
		"amount":              session.Amount,
		"currency":            session.Currency,
		"status":              session.Status,
		"expires_at":          session.ExpiresAt,
	})
}

func (h *TransactionHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PaymentMethod string           `json:"payment_method" validate:"required,max=64"`
		Amount        *decimal.Decimal `json:"amount" validate:"required"`
	}
	if !decode(w, r, h.validate, &body) {
		return
	}

	tx, err := h.checkout.ProcessPayment(r.Context(), CheckoutSessionFromContext(r.Context()), body.PaymentMethod, *body.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction_id":      tx.ID,
		"status":              tx.Status,
		"checkout_session_id": tx.CheckoutSessionID,
		"amount":              tx.Amount,
		"currency":            tx.Currency,
		"payment_method":      tx.PaymentMethod,
	})
}

type transactionSummary struct {
	ID            string                   `json:"id"`
	Amount        decimal.Decimal          `json:"amount"`
	Currency      string                   `json:"currency"`
	Status        models.TransactionStatus `json:"status"`
	CustomerEmail string                   `json:"customer_email"`
	CreatedAt     time.Time                `json:"created_at"`
}

func parseFilter(r *http.Request) (models.TransactionFilter, string) {
	var f models.TransactionFilter
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		st := models.TransactionStatus(s)
		if st != models.TransactionSuccess && st != models.TransactionFailed {
			return f, "status must be success or failed"
		}
		f.Status = &st
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if s := q.Get(name); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return f, name + " must be an RFC 3339 timestamp"
			}
			*dst = &t
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxListLimit {
			return f, "limit must be between 1 and 500"
		}
		f.Limit = n
	}
	return f, ""
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	f, problem := parseFilter(r)
	if problem != "" {
		writeErr(w, http.StatusBadRequest, problem)
		return
	}

	txs, err := h.checkout.ListTransactions(r.Context(), UserFromContext(r.Context()).ID, f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	out := make([]transactionSummary, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionSummary{
			ID:            t.ID,
			Amount:        t.Amount,
			Currency:      t.Currency,
			Status:        t.Status,
			CustomerEmail: t.CustomerEmail,
			CreatedAt:     t.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "transactions": out})
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}

	t, err := h.checkout.GetTransaction(r.Context(), UserFromContext(r.Context()).ID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	valid, err := h.checkout.VerifyTransaction(r.Context(), t)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":              t.ID,
		"amount":          t.Amount,
		"currency":        t.Currency,
		"status":          t.Status,
		"customer_email":  t.CustomerEmail,
		"metadata":        t.Metadata,
		"payment_method":  t.PaymentMethod,
		"created_at":      t.CreatedAt,
		"signature_valid": valid,
	})
}
