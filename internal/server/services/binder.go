package services

import (
	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/server/models"
)

// SessionBinder ties a checkout session to the browser that opened it.
type SessionBinder struct{}

func (SessionBinder) Fingerprint(userAgent string) string {
	return cryptox.Fingerprint(userAgent)
}

// Check recomputes the fingerprint from userAgent and requires both the
// cookie and the stored value to match it. Both comparisons always run.
func (b SessionBinder) Check(cookie string, session *models.CheckoutSession, userAgent string) error {
	current := b.Fingerprint(userAgent)

	cookieOK := cryptox.ConstantTimeEqual(cookie, current)
	storedOK := cryptox.ConstantTimeEqual(session.FingerprintHash, current)

	if !(cookieOK && storedOK) {
		return common.ErrInvalidSessionContext
	}
	return nil
}
