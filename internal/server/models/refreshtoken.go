package models

import "time"

// RefreshToken is one entry of the refresh-token ledger. Only Revoked ever
// changes after insert; records are never deleted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	JTI       string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
