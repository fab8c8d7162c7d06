package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("already_bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

// BootstrapService creates the first administrator.
type BootstrapService struct {
	Store       store.Store
	Credentials *CredentialService

	// Token is the preconfigured bootstrap secret. Empty disables bootstrap.
	Token string
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req domain.BootstrapData) (domain.User, error) {
	l := slogx.FromContext(ctx)

	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt")
		return domain.User{}, ErrBootstrapUnauthorized
	}

	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("check bootstrap state: %w", err)
	}
	if bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return domain.User{}, ErrBootstrapAlready
	}

	email, err := validateEmail(req.Email)
	if err != nil {
		return domain.User{}, err
	}
	if err := validatePassword(req.Password, req.Password); err != nil {
		return domain.User{}, err
	}

	admin, err := s.Credentials.create(ctx, email, req.Password, []domain.Role{domain.RoleAdmin}, true)
	if errors.Is(err, ErrEmailTaken) {
		return domain.User{}, ErrBootstrapAlready
	}
	if err != nil {
		return domain.User{}, err
	}

	l.Info("successfully bootstrapped system", slog.String("admin_user_id", admin.ID))
	return admin, nil
}
