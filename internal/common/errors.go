package common

import (
	"errors"
	"fmt"
)

// Error categories. Every concrete error below wraps exactly one of them, so
// the transport layer maps to a client status with errors.Is on the category.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrReplay          = errors.New("replay rejected")
	ErrIntegrity       = errors.New("integrity check failed")
	ErrConflict        = errors.New("conflict")
	ErrorNotFound      = errors.New("not found")
	ErrExpired         = errors.New("expired")
	ErrConfiguration   = errors.New("configuration error")
	ErrValidation      = errors.New("validation error")
)

var (
	// Authentication errors.
	ErrInvalidCredentials      = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	ErrInvalidToken            = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	ErrTokenExpired            = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrRefreshTokenExpired     = fmt.Errorf("%w: refresh token expired", ErrUnauthenticated)
	ErrMissingSignatureHeaders = fmt.Errorf("%w: missing HMAC authentication headers", ErrUnauthenticated)
	ErrInvalidSignature        = fmt.Errorf("%w: invalid signature", ErrUnauthenticated)
	ErrInvalidMerchant         = fmt.Errorf("%w: invalid or inactive merchant", ErrUnauthenticated)
	ErrInvalidSessionContext   = fmt.Errorf("%w: invalid checkout session context", ErrUnauthenticated)

	// Replay errors.
	ErrTimestampOutOfWindow = fmt.Errorf("%w: request timestamp is too far from server time", ErrReplay)
	ErrRefreshTokenReused   = fmt.Errorf("%w: refresh token revoked or not found", ErrReplay)

	// Integrity errors.
	ErrMalformedCiphertext = fmt.Errorf("%w: invalid encrypted secret format", ErrIntegrity)
	ErrCiphertextTampered  = fmt.Errorf("%w: ciphertext authentication failed", ErrIntegrity)

	// Conflict errors.
	ErrEmailTaken        = fmt.Errorf("%w: email already in use", ErrConflict)
	ErrMerchantExists    = fmt.Errorf("%w: merchant already exists for this user", ErrConflict)
	ErrSessionNotPending = fmt.Errorf("%w: checkout session is not pending", ErrConflict)

	// Expiry errors.
	ErrSessionExpired = fmt.Errorf("%w: checkout session expired", ErrExpired)

	// Configuration errors.
	ErrInvalidKeyLength     = fmt.Errorf("%w: encryption key must be 32 bytes", ErrConfiguration)
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported HMAC algorithm", ErrConfiguration)

	// Validation errors.
	ErrInvalidTimestamp = fmt.Errorf("%w: invalid timestamp", ErrValidation)
	ErrAmountMismatch   = fmt.Errorf("%w: amount mismatch with checkout session", ErrValidation)
)
