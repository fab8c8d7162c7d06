package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/events"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// MFAPolicy decides whether users without a device must enroll at login.
type MFAPolicy string

const (
	MFAOptional  MFAPolicy = "optional"
	MFAMandatory MFAPolicy = "mandatory"
)

const DefaultMaxMFAAttempts = 5

// Second factor methods accepted by VerifyTwoFactor.
const (
	MethodTOTP         = "totp"
	MethodRecoveryCode = "recovery_code"
)

// AuthService drives a session from anonymous, through the optional
// pending_2fa state, to authenticated.
type AuthService struct {
	Store       store.Store
	Credentials *CredentialService
	Devices     *DeviceRegistry
	Tokens      *TokenService
	Events      events.Publisher

	Policy      MFAPolicy
	MaxAttempts int
}

// LoginResult is either a pending ticket or a full token pair.
type LoginResult struct {
	Requires2FA        bool
	RequiresEnrollment bool
	PendingToken       string
	PendingExpiresIn   int64
	Tokens             *domain.TokenPair
}

// ConfirmResult carries the recovery codes and, when enrollment finished a
// pending login, the session tokens.
type ConfirmResult struct {
	RecoveryCodes []string
	Tokens        *domain.TokenPair
}

type UserInfo struct {
	User   domain.User
	Has2FA bool
}

func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Credentials.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			l.Info("login failed")
			events.Emit(ctx, s.Events, events.LoginFailed, "", nil)
		}
		return LoginResult{}, err
	}
	return s.startSession(ctx, user)
}

// Register creates the account and opens a session for it the same way a
// login would.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (domain.User, LoginResult, error) {
	user, err := s.Credentials.Register(ctx, in)
	if err != nil {
		return domain.User{}, LoginResult{}, err
	}
	res, err := s.startSession(ctx, user)
	if err != nil {
		return domain.User{}, LoginResult{}, err
	}
	return user, res, nil
}

func (s *AuthService) startSession(ctx context.Context, user domain.User) (LoginResult, error) {
	l := slogx.FromContext(ctx).With(slog.String("user_id", user.ID))

	has, err := s.Devices.HasConfirmedDevice(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	if has || s.Policy == MFAMandatory {
		token, _, err := s.Tokens.IssuePendingToken(user.ID)
		if err != nil {
			return LoginResult{}, err
		}
		l.Info("password verified, second factor required", slog.Bool("enrolled", has))
		events.Emit(ctx, s.Events, events.LoginPending2FA, user.ID, nil)
		return LoginResult{
			Requires2FA:        true,
			RequiresEnrollment: !has,
			PendingToken:       token,
			PendingExpiresIn:   s.Tokens.PendingTTLSeconds(),
		}, nil
	}

	pair, err := s.Tokens.IssueFullTokenPair(ctx, user, []string{jwtx.AMRPassword})
	if err != nil {
		return LoginResult{}, err
	}
	l.Info("login succeeded")
	events.Emit(ctx, s.Events, events.LoginSucceeded, user.ID, nil)
	return LoginResult{Tokens: &pair}, nil
}

// VerifyTwoFactor redeems a pending ticket with a TOTP or recovery code.
// Failed attempts are counted against the ticket; once the limit is reached
// the ticket is dead even if it has not expired.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, pendingToken, method, code string) (domain.TokenPair, error) {
	claims, err := s.pendingClaims(pendingToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if _, err := s.openChallenge(ctx, claims); err != nil {
		return domain.TokenPair{}, err
	}

	amr := []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA}
	method = strings.TrimSpace(method)
	switch method {
	case "", MethodTOTP:
		err = s.Devices.VerifyChallenge(ctx, claims.Subject, code)
	case MethodRecoveryCode:
		amr = []string{jwtx.AMRPassword, jwtx.AMRRecovery, jwtx.AMRMFA}
		err = s.Devices.VerifyRecoveryCode(ctx, claims.Subject, code)
	default:
		return domain.TokenPair{}, validationError("unsupported method %q", method)
	}
	if err != nil {
		return domain.TokenPair{}, s.failAttempt(ctx, claims, err)
	}

	pair, err := s.completeChallenge(ctx, claims, amr)
	if err != nil {
		return domain.TokenPair{}, err
	}
	events.Emit(ctx, s.Events, events.TwoFAVerified, claims.Subject, map[string]string{"method": methodOrDefault(method)})
	return pair, nil
}

// BeginEnrollment starts TOTP enrollment. A pending ticket may only enroll
// a user that has no confirmed device yet.
func (s *AuthService) BeginEnrollment(ctx context.Context, claims jwtx.Claims) (domain.Enrollment, error) {
	if claims.IsPending() {
		if err := s.checkPendingEnrollment(ctx, claims); err != nil {
			return domain.Enrollment{}, err
		}
	}
	return s.Devices.BeginEnrollment(ctx, claims.Subject)
}

// ConfirmEnrollment confirms the pending device. With a pending ticket this
// also completes the login.
func (s *AuthService) ConfirmEnrollment(ctx context.Context, claims jwtx.Claims, code string) (ConfirmResult, error) {
	if !claims.IsPending() {
		codes, err := s.Devices.ConfirmEnrollment(ctx, claims.Subject, code)
		if err != nil {
			return ConfirmResult{}, err
		}
		return ConfirmResult{RecoveryCodes: codes}, nil
	}

	if err := s.checkPendingEnrollment(ctx, claims); err != nil {
		return ConfirmResult{}, err
	}
	codes, err := s.Devices.ConfirmEnrollment(ctx, claims.Subject, code)
	if err != nil {
		return ConfirmResult{}, s.failAttempt(ctx, claims, err)
	}

	pair, err := s.completeChallenge(ctx, claims, []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA})
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{RecoveryCodes: codes, Tokens: &pair}, nil
}

// DisableTwoFactor removes the user's device after re-checking the password.
func (s *AuthService) DisableTwoFactor(ctx context.Context, userID, password string) error {
	if err := s.Credentials.CheckPassword(ctx, userID, password); err != nil {
		return err
	}
	has, err := s.Devices.HasConfirmedDevice(ctx, userID)
	if err != nil {
		return err
	}
	if !has {
		return ErrDeviceNotConfigured
	}
	return s.Devices.RemoveDevice(ctx, userID)
}

// RefreshSession never re-enters the second factor.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	return s.Tokens.Refresh(ctx, refreshToken)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.Tokens.Revoke(ctx, refreshToken)
}

func (s *AuthService) UserInfo(ctx context.Context, userID string) (UserInfo, error) {
	user, err := s.Credentials.GetUser(ctx, userID)
	if err != nil {
		return UserInfo{}, err
	}
	has, err := s.Devices.HasConfirmedDevice(ctx, userID)
	if err != nil {
		return UserInfo{}, err
	}
	return UserInfo{User: user, Has2FA: has}, nil
}

func (s *AuthService) pendingClaims(token string) (jwtx.Claims, error) {
	if strings.TrimSpace(token) == "" {
		return jwtx.Claims{}, ErrTokenInvalid
	}
	claims, err := s.Tokens.VerifyAccessToken(token)
	if err != nil {
		return jwtx.Claims{}, err
	}
	if !claims.IsPending() {
		return jwtx.Claims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (s *AuthService) checkPendingEnrollment(ctx context.Context, claims jwtx.Claims) error {
	has, err := s.Devices.HasConfirmedDevice(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if has {
		return ErrDeviceAlreadyConfirmed
	}
	_, err = s.openChallenge(ctx, claims)
	return err
}

// openChallenge returns the challenge row for the ticket, creating it on
// first use, and rejects spent tickets.
func (s *AuthService) openChallenge(ctx context.Context, claims jwtx.Claims) (domain.MFAChallenge, error) {
	ch := domain.MFAChallenge{
		JTI:    claims.ID,
		UserID: claims.Subject,
	}
	if claims.ExpiresAt != nil {
		ch.ExpiresAt = claims.ExpiresAt.Time
	}

	if err := s.Store.MFAChallenges().EnsureChallenge(ctx, ch); err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("open challenge: %w", err)
	}
	ch, err := s.Store.MFAChallenges().GetChallenge(ctx, claims.ID)
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("load challenge: %w", err)
	}
	if ch.Consumed {
		return domain.MFAChallenge{}, ErrTokenInvalid
	}
	if ch.Attempts >= s.maxAttempts() {
		return domain.MFAChallenge{}, ErrTooManyAttempts
	}
	return ch, nil
}

// failAttempt counts a wrong code against the ticket. Other errors pass
// through untouched. A ticket that another request already pushed to the
// limit reports ErrTooManyAttempts.
func (s *AuthService) failAttempt(ctx context.Context, claims jwtx.Claims, cause error) error {
	if !errors.Is(cause, ErrInvalidCode) {
		return cause
	}
	n, err := s.Store.MFAChallenges().IncrementAttempts(ctx, claims.ID, s.maxAttempts())
	if errors.Is(err, store.ErrNotFound) {
		return ErrTooManyAttempts
	}
	if err != nil {
		return fmt.Errorf("count failed attempt: %w", err)
	}
	slogx.FromContext(ctx).Info("second factor rejected",
		slog.String("user_id", claims.Subject),
		slog.Int("attempts", n),
	)
	events.Emit(ctx, s.Events, events.TwoFAFailed, claims.Subject, nil)
	return ErrInvalidCode
}

// completeChallenge burns the ticket and issues the session tokens.
func (s *AuthService) completeChallenge(ctx context.Context, claims jwtx.Claims, amr []string) (domain.TokenPair, error) {
	ok, err := s.Store.MFAChallenges().ConsumeChallenge(ctx, claims.ID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("consume challenge: %w", err)
	}
	if !ok {
		return domain.TokenPair{}, ErrTokenInvalid
	}

	user, err := s.Credentials.GetUser(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return domain.TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.TokenPair{}, err
	}
	if !user.IsActive {
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.Tokens.IssueFullTokenPair(ctx, user, amr)
	if err != nil {
		return domain.TokenPair{}, err
	}
	slogx.FromContext(ctx).Info("second factor verified", slog.String("user_id", user.ID))
	return pair, nil
}

func (s *AuthService) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return DefaultMaxMFAAttempts
	}
	return s.MaxAttempts
}

func methodOrDefault(m string) string {
	if m == "" {
		return MethodTOTP
	}
	return m
}
