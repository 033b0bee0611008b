package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/transactions"
	"github.com/google/uuid"
)

type userRepo struct {
	d    *DB
	inTx bool
}

func (r *userRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	defer r.d.lock(r.inTx)()

	for _, existing := range r.d.st.users {
		if existing.Email == u.Email {
			return nil, common.ErrEmailTaken
		}
	}
	now := r.d.now()
	u.ID = uuid.NewString()
	u.CreatedAt, u.UpdatedAt = now, now
	r.d.st.users[u.ID] = *u
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.d.lock(r.inTx)()

	for _, u := range r.d.st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	defer r.d.lock(r.inTx)()

	u, ok := r.d.st.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

type tokenRepo struct {
	d    *DB
	inTx bool
}

func (r *tokenRepo) Create(ctx context.Context, t *models.RefreshToken) error {
	defer r.d.lock(r.inTx)()

	for _, existing := range r.d.st.tokens {
		if existing.JTI == t.JTI {
			return fmt.Errorf("%w: duplicate jti", common.ErrConflict)
		}
	}
	t.ID = uuid.NewString()
	t.CreatedAt = r.d.now()
	r.d.st.tokens[t.ID] = *t
	return nil
}

func (r *tokenRepo) Find(ctx context.Context, tokenHash, jti string) (*models.RefreshToken, error) {
	defer r.d.lock(r.inTx)()

	for _, t := range r.d.st.tokens {
		if t.TokenHash == tokenHash && t.JTI == jti {
			return &t, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *tokenRepo) Revoke(ctx context.Context, id string) (bool, error) {
	defer r.d.lock(r.inTx)()

	t, ok := r.d.st.tokens[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	r.d.st.tokens[id] = t
	return true, nil
}

func (r *tokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	defer r.d.lock(r.inTx)()

	for id, t := range r.d.st.tokens {
		if t.TokenHash == tokenHash && !t.Revoked {
			t.Revoked = true
			r.d.st.tokens[id] = t
		}
	}
	return nil
}

type merchantRepo struct {
	d    *DB
	inTx bool
}

func (r *merchantRepo) Create(ctx context.Context, m *models.Merchant) (*models.Merchant, error) {
	defer r.d.lock(r.inTx)()

	for _, existing := range r.d.st.merchants {
		if existing.UserID == m.UserID || existing.APIKey == m.APIKey {
			return nil, common.ErrMerchantExists
		}
	}
	m.ID = uuid.NewString()
	m.CreatedAt = r.d.now()
	m.WebhookURL = normalizeURL(m.WebhookURL)
	r.d.st.merchants[m.ID] = *m
	out := *m
	return &out, nil
}

func (r *merchantRepo) find(match func(models.Merchant) bool) (*models.Merchant, error) {
	defer r.d.lock(r.inTx)()

	for _, m := range r.d.st.merchants {
		if match(m) {
			return &m, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *merchantRepo) GetByID(ctx context.Context, id string) (*models.Merchant, error) {
	return r.find(func(m models.Merchant) bool { return m.ID == id })
}

func (r *merchantRepo) GetByUserID(ctx context.Context, userID string) (*models.Merchant, error) {
	return r.find(func(m models.Merchant) bool { return m.UserID == userID })
}

func (r *merchantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*models.Merchant, error) {
	return r.find(func(m models.Merchant) bool { return m.APIKey == apiKey })
}

func (r *merchantRepo) UpdateProfile(ctx context.Context, upd *models.Merchant) (*models.Merchant, error) {
	defer r.d.lock(r.inTx)()

	m, ok := r.d.st.merchants[upd.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	m.BusinessName = upd.BusinessName
	m.WebhookURL = normalizeURL(upd.WebhookURL)
	r.d.st.merchants[m.ID] = m
	return &m, nil
}

func (r *merchantRepo) RotateCredentials(ctx context.Context, id, apiKey, secretCipher string) (*models.Merchant, error) {
	defer r.d.lock(r.inTx)()

	m, ok := r.d.st.merchants[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	m.APIKey, m.APISecretCipher = apiKey, secretCipher
	r.d.st.merchants[id] = m
	return &m, nil
}

func normalizeURL(u *string) *string {
	if u == nil || *u == "" {
		return nil
	}
	v := *u
	return &v
}

type sessionRepo struct {
	d    *DB
	inTx bool
}

func (r *sessionRepo) Create(ctx context.Context, s *models.CheckoutSession) (*models.CheckoutSession, error) {
	defer r.d.lock(r.inTx)()

	now := r.d.now()
	s.ID = uuid.NewString()
	s.CreatedAt, s.UpdatedAt = now, now
	r.d.st.sessions[s.ID] = *s
	out := *s
	return &out, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*models.CheckoutSession, error) {
	defer r.d.lock(r.inTx)()

	s, ok := r.d.st.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *sessionRepo) LeavePending(ctx context.Context, id string, status models.CheckoutStatus) (bool, error) {
	defer r.d.lock(r.inTx)()

	s, ok := r.d.st.sessions[id]
	if !ok || s.Status != models.CheckoutPending {
		return false, nil
	}
	s.Status = status
	s.UpdatedAt = r.d.now()
	r.d.st.sessions[id] = s
	return true, nil
}

type txRepo struct {
	d    *DB
	inTx bool
}

func (r *txRepo) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	defer r.d.lock(r.inTx)()

	for _, existing := range r.d.st.transactions {
		if existing.CheckoutSessionID == t.CheckoutSessionID {
			return nil, common.ErrSessionNotPending
		}
	}
	t.ID = uuid.NewString()
	t.CreatedAt = r.d.now()
	r.d.st.transactions = append(r.d.st.transactions, *t)
	out := *t
	return &out, nil
}

func (r *txRepo) GetForMerchant(ctx context.Context, merchantID, id string) (*models.Transaction, error) {
	defer r.d.lock(r.inTx)()

	for _, t := range r.d.st.transactions {
		if t.ID == id && t.MerchantID == merchantID {
			return &t, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *txRepo) ListForMerchant(ctx context.Context, merchantID string, f models.TransactionFilter) ([]*models.Transaction, error) {
	defer r.d.lock(r.inTx)()

	limit := f.Limit
	if limit <= 0 {
		limit = transactions.DefaultListLimit
	}

	out := make([]*models.Transaction, 0)
	for i := len(r.d.st.transactions) - 1; i >= 0; i-- {
		t := r.d.st.transactions[i]
		switch {
		case t.MerchantID != merchantID:
			continue
		case f.Status != nil && t.Status != *f.Status:
			continue
		case f.From != nil && t.CreatedAt.Before(*f.From):
			continue
		case f.To != nil && t.CreatedAt.After(*f.To):
			continue
		}
		out = append(out, &t)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
