package auth

import (
	"context"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stagehand/adminauth/internal/db/models"
)

const (
	// DefaultLockoutThreshold is the number of consecutive failures that locks an account.
	DefaultLockoutThreshold = 5
	// DefaultLockoutDuration is how long a lock lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutState is the counter state after a recorded failure.
type LockoutState struct {
	Attempts    int
	Locked      bool
	LockedUntil *time.Time
}

// LockoutPolicy tracks consecutive credential failures per admin.
type LockoutPolicy struct {
	store     AdminStore
	threshold int
	duration  time.Duration
	clock     clock.Clock
}

// NewLockoutPolicy creates a policy. Non-positive values select the defaults.
func NewLockoutPolicy(store AdminStore, threshold int, duration time.Duration, clk clock.Clock) *LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	if clk == nil {
		clk = clock.New()
	}
	return &LockoutPolicy{store: store, threshold: threshold, duration: duration, clock: clk}
}

// IsLocked reports whether admin is locked at now.
func (p *LockoutPolicy) IsLocked(admin *models.Admin, now time.Time) bool {
	return admin.IsLocked(now)
}

// RemainingLock returns how long admin stays locked after now, or 0.
func (p *LockoutPolicy) RemainingLock(admin *models.Admin, now time.Time) time.Duration {
	if !admin.IsLocked(now) {
		return 0
	}
	return admin.LockedUntil.Sub(now)
}

// RecordFailure increments the failure counter through the store's atomic update and
// mirrors the result onto admin.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, admin *models.Admin) (LockoutState, error) {
	now := p.clock.Now()
	attempts, lockedUntil, err := p.store.RecordLoginFailure(ctx, admin.ID, p.threshold, now.Add(p.duration), now)
	if err != nil {
		return LockoutState{}, err
	}
	admin.FailedLoginAttempts = attempts
	admin.LockedUntil = lockedUntil
	return LockoutState{
		Attempts:    attempts,
		Locked:      lockedUntil != nil && lockedUntil.After(now),
		LockedUntil: lockedUntil,
	}, nil
}

// RecordSuccess resets the counter and clears any lock.
func (p *LockoutPolicy) RecordSuccess(ctx context.Context, admin *models.Admin) error {
	if err := p.store.ResetLoginFailures(ctx, admin.ID, p.clock.Now()); err != nil {
		return err
	}
	admin.FailedLoginAttempts = 0
	admin.LockedUntil = nil
	return nil
}
