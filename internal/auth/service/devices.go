package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/events"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// TOTP parameters. Authenticator apps assume these, so they are not
// configurable.
const (
	totpPeriod     = 30
	totpSecretSize = 20
	totpSkew       = 1
	totpDigits     = otp.DigitsSix
	totpAlgorithm  = otp.AlgorithmSHA1

	qrCodeSize        = 256
	recoveryCodeCount = 10
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// SecretSealer encrypts TOTP secrets at rest.
type SecretSealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// DeviceRegistry manages TOTP enrollment and verification. Per user the
// lifecycle is no device, then a pending enrollment, then a confirmed device.
type DeviceRegistry struct {
	Store  store.Store
	Sealer SecretSealer
	Events events.Publisher

	// Issuer is the label authenticator apps show next to the account.
	Issuer string

	Now func() time.Time
}

// BeginEnrollment mints a new secret, replacing any pending enrollment.
// A confirmed device keeps working until the new one is confirmed.
func (r *DeviceRegistry) BeginEnrollment(ctx context.Context, userID string) (domain.Enrollment, error) {
	user, err := r.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Enrollment{}, ErrUserNotFound
	}
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("load user: %w", err)
	}

	secret := make([]byte, totpSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return domain.Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      r.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Secret:      secret,
		Digits:      totpDigits,
		Algorithm:   totpAlgorithm,
	})
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("generate totp key: %w", err)
	}

	qr, err := renderQRCode(key)
	if err != nil {
		return domain.Enrollment{}, err
	}

	sealed, err := r.Sealer.Seal(secret)
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("seal totp secret: %w", err)
	}

	now := r.now()
	device := domain.TOTPDevice{
		ID:           idx.NewAt(now).String(),
		UserID:       userID,
		SecretSealed: sealed,
		CreatedAt:    now,
	}
	err = r.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TOTPDevices().DeleteUnconfirmedDevices(ctx, userID); err != nil {
			return err
		}
		return tx.TOTPDevices().CreateDevice(ctx, device)
	})
	if err != nil {
		return domain.Enrollment{}, fmt.Errorf("store pending device: %w", err)
	}

	slogx.FromContext(ctx).Info("totp enrollment started", slog.String("user_id", userID))
	return domain.Enrollment{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodePNG:       qr,
	}, nil
}

func renderQRCode(key *otp.Key) ([]byte, error) {
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return buf.Bytes(), nil
}

// ConfirmEnrollment validates a code against the pending device. On success
// it becomes the user's only confirmed device and a fresh set of recovery
// codes is returned in plaintext, once.
func (r *DeviceRegistry) ConfirmEnrollment(ctx context.Context, userID, code string) ([]string, error) {
	pending, err := r.Store.TOTPDevices().GetUnconfirmedDevice(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrDeviceNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("load pending device: %w", err)
	}

	now := r.now()
	step, ok, err := r.match(pending, code, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	plain, records, err := newRecoveryCodes(userID, now)
	if err != nil {
		return nil, err
	}

	err = r.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TOTPDevices().DeleteConfirmedDevices(ctx, userID); err != nil {
			return err
		}
		if err := tx.TOTPDevices().ConfirmDevice(ctx, pending.ID, step, now); err != nil {
			return err
		}
		if err := tx.RecoveryCodes().DeleteRecoveryCodes(ctx, userID); err != nil {
			return err
		}
		return tx.RecoveryCodes().CreateRecoveryCodes(ctx, records)
	})
	if errors.Is(err, store.ErrNotFound) {
		// Replaced by a concurrent BeginEnrollment.
		return nil, ErrDeviceNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("confirm device: %w", err)
	}

	slogx.FromContext(ctx).Info("totp device confirmed", slog.String("user_id", userID))
	events.Emit(ctx, r.Events, events.TwoFAEnrolled, userID, nil)
	return plain, nil
}

// VerifyChallenge checks a login code against the confirmed device. Each
// time step is accepted at most once.
func (r *DeviceRegistry) VerifyChallenge(ctx context.Context, userID, code string) error {
	device, err := r.Store.TOTPDevices().GetConfirmedDevice(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrDeviceNotConfigured
	}
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	step, ok, err := r.match(device, code, r.now())
	if err != nil {
		return err
	}
	if !ok || step <= device.LastUsedStep {
		return ErrInvalidCode
	}

	advanced, err := r.Store.TOTPDevices().AdvanceLastUsedStep(ctx, device.ID, step)
	if err != nil {
		return fmt.Errorf("record totp step: %w", err)
	}
	if !advanced {
		return ErrInvalidCode
	}
	return nil
}

// VerifyRecoveryCode consumes one unused recovery code.
func (r *DeviceRegistry) VerifyRecoveryCode(ctx context.Context, userID, code string) error {
	has, err := r.HasConfirmedDevice(ctx, userID)
	if err != nil {
		return err
	}
	if !has {
		return ErrDeviceNotConfigured
	}

	normalized := cryptox.NormalizeRecoveryCode(code)
	if normalized == "" {
		return ErrInvalidCode
	}
	ok, err := r.Store.RecoveryCodes().ConsumeRecoveryCode(ctx, userID, cryptox.FingerprintToken(normalized))
	if err != nil {
		return fmt.Errorf("consume recovery code: %w", err)
	}
	if !ok {
		return ErrInvalidCode
	}

	remaining, err := r.Store.RecoveryCodes().CountUnused(ctx, userID)
	if err == nil {
		slogx.FromContext(ctx).Info("recovery code used",
			slog.String("user_id", userID),
			slog.Int("remaining", remaining),
		)
	}
	return nil
}

func (r *DeviceRegistry) HasConfirmedDevice(ctx context.Context, userID string) (bool, error) {
	has, err := r.Store.TOTPDevices().HasConfirmedDevice(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("check device: %w", err)
	}
	return has, nil
}

// RemoveDevice deletes every device and recovery code of the user.
func (r *DeviceRegistry) RemoveDevice(ctx context.Context, userID string) error {
	err := r.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TOTPDevices().DeleteDevicesForUser(ctx, userID); err != nil {
			return err
		}
		return tx.RecoveryCodes().DeleteRecoveryCodes(ctx, userID)
	})
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}

	events.Emit(ctx, r.Events, events.TwoFARemoved, userID, nil)
	return nil
}

// match returns the time step the code belongs to within the skew window.
func (r *DeviceRegistry) match(d domain.TOTPDevice, code string, now time.Time) (int64, bool, error) {
	code = strings.TrimSpace(code)
	if len(code) != totpDigits.Length() {
		return 0, false, nil
	}

	secret, err := r.Sealer.Open(d.SecretSealed)
	if err != nil {
		return 0, false, fmt.Errorf("open totp secret: %w", err)
	}
	encoded := b32.EncodeToString(secret)

	current := now.Unix() / totpPeriod
	for offset := int64(-totpSkew); offset <= totpSkew; offset++ {
		step := current + offset
		if step < 0 {
			continue
		}
		expected, err := hotp.GenerateCodeCustom(encoded, uint64(step), hotp.ValidateOpts{
			Digits:    totpDigits,
			Algorithm: totpAlgorithm,
		})
		if err != nil {
			return 0, false, fmt.Errorf("generate totp code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true, nil
		}
	}
	return 0, false, nil
}

func (r *DeviceRegistry) now() time.Time { return clock(r.Now) }

func newRecoveryCodes(userID string, now time.Time) ([]string, []domain.RecoveryCode, error) {
	plain := make([]string, recoveryCodeCount)
	records := make([]domain.RecoveryCode, recoveryCodeCount)
	for i := range recoveryCodeCount {
		code, err := cryptox.GenerateRecoveryCode()
		if err != nil {
			return nil, nil, err
		}
		plain[i] = code
		records[i] = domain.RecoveryCode{
			ID:        idx.NewAt(now).String(),
			UserID:    userID,
			CodeHash:  cryptox.FingerprintToken(cryptox.NormalizeRecoveryCode(code)),
			CreatedAt: now,
		}
	}
	return plain, records, nil
}
