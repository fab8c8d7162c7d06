package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
)

// DefaultStaleEnrollmentAge is how long an unconfirmed device may linger.
const DefaultStaleEnrollmentAge = 24 * time.Hour

// HousekeepingService periodically deletes expired refresh tokens, MFA
// challenges, abandoned enrollments and expired signing keys.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// StaleEnrollmentAge defaults to DefaultStaleEnrollmentAge.
	StaleEnrollmentAge time.Duration

	Now func() time.Time

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:              store,
		Logger:             logger,
		Interval:           interval,
		StaleEnrollmentAge: DefaultStaleEnrollmentAge,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then on every tick. It does not block.
func (s *HousekeepingService) Start() {
	s.started = true
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished. It is a no-op on
// a service that was never started.
func (s *HousekeepingService) Stop() {
	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CleanupReport counts rows deleted by one run.
type CleanupReport struct {
	RefreshTokens  int64
	MFAChallenges  int64
	StaleDevices   int64
	SigningKeys    int64
	FailedCleanups int
}

// RunOnce performs a single cleanup pass. Each step is independent; a
// failure is logged and the rest still run.
func (s *HousekeepingService) RunOnce(ctx context.Context) CleanupReport {
	now := clock(s.Now)
	age := s.StaleEnrollmentAge
	if age <= 0 {
		age = DefaultStaleEnrollmentAge
	}

	var report CleanupReport
	steps := []struct {
		name string
		fn   func() (int64, error)
		into *int64
	}{
		{"refresh tokens", func() (int64, error) { return s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now) }, &report.RefreshTokens},
		{"mfa challenges", func() (int64, error) { return s.Store.MFAChallenges().DeleteExpiredChallenges(ctx, now) }, &report.MFAChallenges},
		{"stale enrollments", func() (int64, error) { return s.Store.TOTPDevices().DeleteStaleUnconfirmed(ctx, now.Add(-age)) }, &report.StaleDevices},
		{"signing keys", func() (int64, error) { return s.Store.SigningKeys().DeleteExpiredSigningKeys(ctx, now) }, &report.SigningKeys},
	}
	for _, step := range steps {
		n, err := step.fn()
		if err != nil {
			s.Logger.Error("housekeeping step failed", "step", step.name, "error", err)
			report.FailedCleanups++
			continue
		}
		*step.into = n
	}

	s.Logger.Info("housekeeping cleanup completed",
		"refresh_tokens", report.RefreshTokens,
		"mfa_challenges", report.MFAChallenges,
		"stale_devices", report.StaleDevices,
		"signing_keys", report.SigningKeys,
		"failed", report.FailedCleanups,
	)
	return report
}
