package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/repositories/repomanager"
)

type UserService struct {
	store  dbx.Store
	repos  repomanager.RepositoryManager
	hasher *cryptox.PasswordHasher
	logger logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(store dbx.Store, repos repomanager.RepositoryManager, hasher *cryptox.PasswordHasher, logger logging.Logger) *UserService {
	return &UserService{
		store:  store,
		repos:  repos,
		hasher: hasher,
		logger: logger.With("module", "users"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrValidation)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := s.repos.Users(s.store.Conn()).Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login checks the password. Unknown emails still pay for one hash
// verification, so both failures cost the same.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repos.Users(s.store.Conn()).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.dummy())
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error loading user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}

	return user, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.repos.Users(s.store.Conn()).GetByID(ctx, id)
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		pw, _ := common.MakeRandHexString(16)
		s.dummyHash, _ = s.hasher.Hash(pw)
	})
	return s.dummyHash
}
