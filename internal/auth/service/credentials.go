package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/events"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256
)

// CredentialService owns user identity and password hashes.
type CredentialService struct {
	Store  store.Store
	Events events.Publisher
	Now    func() time.Time
}

type RegisterInput struct {
	Email           string
	Password        string
	PasswordConfirm string
}

// Verify checks an email and password pair. Unknown, inactive and
// wrong-password accounts all return ErrInvalidCredentials after the same
// amount of hashing work.
func (s *CredentialService) Verify(ctx context.Context, email, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)
	email = domain.NormalizeEmail(email)

	if email == "" || password == "" {
		cryptox.DummyVerify(password)
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		cryptox.DummyVerify(password)
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrUnknownHash) {
			l.Warn("stored password hash has unknown format", slog.String("user_id", user.ID))
		}
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, ErrInvalidCredentials
	}

	if cryptox.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user.ID, password)
	}
	return user, nil
}

// rehash upgrades legacy hashes after a successful login. Failure only logs.
func (s *CredentialService) rehash(ctx context.Context, userID, password string) {
	l := slogx.FromContext(ctx)
	hash, err := cryptox.HashPassword(password)
	if err == nil {
		err = s.Store.Users().UpdatePasswordHash(ctx, userID, hash, s.now())
	}
	if err != nil {
		l.Warn("password rehash failed", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	l.Info("password hash upgraded", slog.String("user_id", userID))
}

// Register creates a student account.
func (s *CredentialService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if err := validatePassword(in.Password, in.PasswordConfirm); err != nil {
		return domain.User{}, err
	}

	user, err := s.create(ctx, email, in.Password, []domain.Role{domain.RoleStudent}, false)
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("user_id", user.ID))
	events.Emit(ctx, s.Events, events.UserRegistered, user.ID, nil)
	return user, nil
}

func (s *CredentialService) create(
	ctx context.Context,
	email, password string,
	roles []domain.Role,
	staff bool,
) (domain.User, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      staff,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, user)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.User{}, ErrEmailTaken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUser loads a user by id.
func (s *CredentialService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return user, err
}

func (s *CredentialService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ChangePassword replaces the password and revokes every refresh token of
// the user, signing out other sessions.
func (s *CredentialService) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	if err := validatePassword(next, confirm); err != nil {
		return err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := cryptox.VerifyPassword(current, user.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash, now); err != nil {
			return err
		}
		return tx.RefreshTokens().RevokeAllForUser(ctx, userID, now)
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	events.Emit(ctx, s.Events, events.PasswordChanged, userID, nil)
	return nil
}

// CheckPassword verifies the current password of an authenticated user.
func (s *CredentialService) CheckPassword(ctx context.Context, userID, password string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if cryptox.VerifyPassword(password, user.PasswordHash) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *CredentialService) Deactivate(ctx context.Context, userID string) error {
	return s.setActive(ctx, userID, false)
}

func (s *CredentialService) Activate(ctx context.Context, userID string) error {
	return s.setActive(ctx, userID, true)
}

// Deactivation also revokes refresh tokens so the user cannot mint new
// access tokens. Outstanding access tokens live out their short TTL.
func (s *CredentialService) setActive(ctx context.Context, userID string, active bool) error {
	now := s.now()
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetActive(ctx, userID, active, now); err != nil {
			return err
		}
		if active {
			return nil
		}
		return tx.RefreshTokens().RevokeAllForUser(ctx, userID, now)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	if !active {
		events.Emit(ctx, s.Events, events.UserDeactivated, userID, nil)
	}
	return nil
}

// SetRoles replaces the user's roles. Legacy role names are accepted.
func (s *CredentialService) SetRoles(ctx context.Context, userID string, names []string) ([]domain.Role, error) {
	roles, err := domain.ParseRoles(names)
	if err != nil {
		return nil, validationError("%v", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().SetRoles(ctx, userID, roles, s.now())
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set roles: %w", err)
	}

	slogx.FromContext(ctx).Info("user roles updated",
		slog.String("user_id", userID),
		slog.Any("roles", domain.RoleStrings(roles)),
	)
	return roles, nil
}

func (s *CredentialService) now() time.Time { return clock(s.Now) }

// validateEmail accepts a bare RFC 5322 address and returns it normalized.
func validateEmail(raw string) (string, error) {
	email := domain.NormalizeEmail(raw)
	if email == "" {
		return "", validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", validationError("email is not a valid address")
	}
	return email, nil
}

func validatePassword(password, confirm string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < minPasswordLength:
		return validationError("password must be at least %d characters", minPasswordLength)
	case n > maxPasswordLength:
		return validationError("password must be at most %d characters", maxPasswordLength)
	case password != confirm:
		return validationError("password confirmation does not match")
	}
	return nil
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
