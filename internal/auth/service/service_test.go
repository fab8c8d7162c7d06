package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

const (
	testIssuer   = "https://auth.test"
	testPassword = "correct-horse-battery"
)

func TestMain(m *testing.M) {
	cryptox.SetPepper("test-pepper")
	os.Exit(m.Run())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store   store.Store
	clock   *fakeClock
	km      *jwtx.KeyManager
	sealer  *cryptox.Sealer
	creds   *CredentialService
	devices *DeviceRegistry
	tokens  *TokenService
	auth    *AuthService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	// Tokens, refresh records and TOTP steps all run on one fake clock.
	clk := &fakeClock{now: time.Now().UTC()}

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    testIssuer,
		Now:       clk.Now,
	})
	require.NoError(t, err)

	sealer, err := cryptox.NewSealer([]byte("test-master-key"))
	require.NoError(t, err)

	h := &harness{store: st, clock: clk, km: km, sealer: sealer}
	h.creds = &CredentialService{Store: st}
	h.devices = &DeviceRegistry{Store: st, Sealer: sealer, Issuer: "gatekeeper", Now: clk.Now}
	h.tokens = &TokenService{
		KeyManager:    km,
		Store:         st,
		Issuer:        testIssuer,
		RotateRefresh: true,
		Now:           clk.Now,
	}
	h.auth = &AuthService{
		Store:       st,
		Credentials: h.creds,
		Devices:     h.devices,
		Tokens:      h.tokens,
		Policy:      MFAOptional,
	}
	return h
}

func (h *harness) register(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := h.creds.Register(context.Background(), RegisterInput{
		Email:           email,
		Password:        testPassword,
		PasswordConfirm: testPassword,
	})
	require.NoError(t, err)
	return u
}

// enroll confirms a device for the user and returns the base32 secret and
// the recovery codes.
func (h *harness) enroll(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enr, err := h.devices.BeginEnrollment(ctx, userID)
	require.NoError(t, err)
	codes, err := h.devices.ConfirmEnrollment(ctx, userID, h.code(t, enr.Secret))
	require.NoError(t, err)
	return enr.Secret, codes
}

// code is the TOTP for secret at the fake clock's current step.
func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCodeCustom(secret, h.clock.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return c
}

func (h *harness) claims(t *testing.T, token string) jwtx.Claims {
	t.Helper()
	c, err := h.tokens.VerifyAccessToken(token)
	require.NoError(t, err)
	return c
}
