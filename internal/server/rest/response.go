package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/logging"
)

const internalErrorMessage = "internal server error"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr sends {"error": message}.
func writeErr(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// categories in match order; the first hit decides the status.
var categories = []struct {
	err    error
	status int
}{
	{common.ErrUnauthenticated, http.StatusUnauthorized},
	{common.ErrReplay, http.StatusUnauthorized},
	{common.ErrIntegrity, http.StatusUnauthorized},
	{common.ErrorNotFound, http.StatusNotFound},
	{common.ErrConflict, http.StatusConflict},
	{common.ErrExpired, http.StatusGone},
	{common.ErrValidation, http.StatusBadRequest},
}

// publicErrors are the concrete errors whose text is safe to show clients.
var publicErrors = []error{
	common.ErrInvalidCredentials,
	common.ErrInvalidToken,
	common.ErrTokenExpired,
	common.ErrRefreshTokenExpired,
	common.ErrMissingSignatureHeaders,
	common.ErrInvalidSignature,
	common.ErrInvalidMerchant,
	common.ErrInvalidSessionContext,
	common.ErrTimestampOutOfWindow,
	common.ErrRefreshTokenReused,
	common.ErrEmailTaken,
	common.ErrMerchantExists,
	common.ErrSessionNotPending,
	common.ErrSessionExpired,
	common.ErrInvalidTimestamp,
	common.ErrAmountMismatch,
}

// statusFor maps a service error to an HTTP status and client message.
// Anything uncategorized is a 500 with a generic message.
func statusFor(err error) (int, string) {
	if errors.Is(err, common.ErrIntegrity) {
		return http.StatusUnauthorized, publicMessage(common.ErrInvalidSignature)
	}

	for _, c := range categories {
		if !errors.Is(err, c.err) {
			continue
		}
		for _, known := range publicErrors {
			if errors.Is(err, known) {
				return c.status, publicMessage(known)
			}
		}
		if c.err == common.ErrValidation {
			return c.status, publicMessage(err)
		}
		return c.status, c.err.Error()
	}

	return http.StatusInternalServerError, internalErrorMessage
}

// publicMessage drops the "category: " prefix of a wrapped error.
func publicMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// writeServiceError logs server-side failures and answers with the mapped status.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger logging.Logger, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(r.Context(), "request failed", "request_id", RequestID(r.Context()), "error", err)
	}
	writeErr(w, status, msg)
}
