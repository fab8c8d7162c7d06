package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
)

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing email", RegisterInput{Password: testPassword, PasswordConfirm: testPassword}},
		{"malformed email", RegisterInput{Email: "not-an-email", Password: testPassword, PasswordConfirm: testPassword}},
		{"display name", RegisterInput{Email: "Ana <ana@example.com>", Password: testPassword, PasswordConfirm: testPassword}},
		{"short password", RegisterInput{Email: "ana@example.com", Password: "short", PasswordConfirm: "short"}},
		{"long password", RegisterInput{Email: "ana@example.com", Password: strings.Repeat("x", 257), PasswordConfirm: strings.Repeat("x", 257)}},
		{"mismatched confirmation", RegisterInput{Email: "ana@example.com", Password: testPassword, PasswordConfirm: testPassword + "!"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.creds.Register(ctx, tc.in)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterEmailTaken(t *testing.T) {
	h := newHarness(t)
	u := h.register(t, "ana@example.com")
	require.Equal(t, []domain.Role{domain.RoleStudent}, u.Roles)
	require.False(t, u.IsStaff)

	_, err := h.creds.Register(context.Background(), RegisterInput{
		Email:           "ANA@example.com",
		Password:        testPassword,
		PasswordConfirm: testPassword,
	})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ana@example.com")
	pair := login(t, h, "ana@example.com")

	const next = "second-horse-battery"
	require.ErrorIs(t, h.creds.ChangePassword(ctx, u.ID, "wrong-password", next, next), ErrInvalidCredentials)
	require.ErrorIs(t, h.creds.ChangePassword(ctx, u.ID, testPassword, next, "different"), ErrValidation)
	require.NoError(t, h.creds.ChangePassword(ctx, u.ID, testPassword, next, next))

	_, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	_, err = h.auth.Login(ctx, "ana@example.com", testPassword)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = h.auth.Login(ctx, "ana@example.com", next)
	require.NoError(t, err)
}

func TestDeactivateAndActivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ana@example.com")
	pair := login(t, h, "ana@example.com")

	require.NoError(t, h.creds.Deactivate(ctx, u.ID))
	_, err := h.auth.RefreshSession(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	require.NoError(t, h.creds.Activate(ctx, u.ID))
	login(t, h, "ana@example.com")

	require.ErrorIs(t, h.creds.Deactivate(ctx, "missing"), ErrUserNotFound)
}

func TestSetRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ana@example.com")

	roles, err := h.creds.SetRoles(ctx, u.ID, []string{"administrador", "admin"})
	require.NoError(t, err)
	require.Equal(t, []domain.Role{domain.RoleAdmin}, roles)

	_, err = h.creds.SetRoles(ctx, u.ID, []string{"janitor"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = h.creds.SetRoles(ctx, "missing", []string{"staff"})
	require.ErrorIs(t, err, ErrUserNotFound)

	got, err := h.creds.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []domain.Role{domain.RoleAdmin}, got.Roles)
}

func TestLegacyHashIsUpgraded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	u := domain.User{
		ID:           idx.New().String(),
		Email:        "legacy@example.com",
		PasswordHash: string(legacy),
		IsActive:     true,
		Roles:        []domain.Role{domain.RoleStudent},
	}
	require.NoError(t, h.store.Users().CreateUser(ctx, u))

	_, err = h.creds.Verify(ctx, "legacy@example.com", testPassword)
	require.NoError(t, err)

	got, err := h.creds.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, cryptox.NeedsRehash(got.PasswordHash))

	_, err = h.creds.Verify(ctx, "legacy@example.com", testPassword)
	require.NoError(t, err)
}
