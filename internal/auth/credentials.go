package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/filecoin-project/go-clock"
	"github.com/stagehand/adminauth/internal/db/models"
	"github.com/stagehand/adminauth/internal/telemetry"
)

var errTOTPSecretMissing = errors.New("totp enabled but no secret stored")

// CredentialVerifier turns an email, password and optional TOTP code into an admission
// decision.
type CredentialVerifier struct {
	admins     AdminStore
	lockout    *LockoutPolicy
	passwords  *PasswordHasher
	totp       *TOTPValidator
	totpWindow int
	secrets    SecretOpener
	clock      clock.Clock
}

// NewCredentialVerifier creates a verifier. secrets may be nil when TOTP secrets are
// stored in plaintext.
func NewCredentialVerifier(admins AdminStore, lockout *LockoutPolicy, passwords *PasswordHasher, totp *TOTPValidator, totpWindow int, secrets SecretOpener, clk clock.Clock) *CredentialVerifier {
	if clk == nil {
		clk = clock.New()
	}
	return &CredentialVerifier{
		admins:     admins,
		lockout:    lockout,
		passwords:  passwords,
		totp:       totp,
		totpWindow: totpWindow,
		secrets:    secrets,
		clock:      clk,
	}
}

// Verify checks the credentials in order: account exists, account active, not locked,
// password, then the second factor. The admin is returned alongside any error once the
// account is known, so the caller can attribute the failure.
//
// A missing TOTP code after a correct password returns ErrTOTPRequired and leaves the
// failure counter untouched. Wrong passwords and wrong codes both count as failures.
func (v *CredentialVerifier) Verify(ctx context.Context, email, password, totpCode string) (*models.Admin, error) {
	admin, err := v.admins.GetAdminByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, internalError("lookup admin", err)
	}
	if admin == nil {
		v.passwords.CompareDummy(password)
		return nil, ErrInvalidCredentials
	}

	if !admin.IsActive {
		return admin, ErrAccountInactive
	}

	now := v.clock.Now()
	if v.lockout.IsLocked(admin, now) {
		return admin, lockedError(v.lockout.RemainingLock(admin, now))
	}

	if !v.passwords.Compare(admin.PasswordHash, password) {
		return admin, v.recordFailure(ctx, admin, ErrInvalidCredentials)
	}

	if admin.TOTPEnabled {
		code := strings.TrimSpace(totpCode)
		if code == "" {
			return admin, ErrTOTPRequired
		}
		secret, err := v.totpSecret(admin)
		if err != nil {
			return admin, internalError("open totp secret", err)
		}
		if !v.totp.Check(code, secret, v.totpWindow) {
			return admin, v.recordFailure(ctx, admin, ErrTOTPInvalid)
		}
	}

	if err := v.lockout.RecordSuccess(ctx, admin); err != nil {
		return admin, internalError("reset login failures", err)
	}
	return admin, nil
}

// recordFailure counts a failed attempt and returns cause, or a lockout error when this
// attempt crossed the threshold.
func (v *CredentialVerifier) recordFailure(ctx context.Context, admin *models.Admin, cause *Error) error {
	state, err := v.lockout.RecordFailure(ctx, admin)
	if err != nil {
		return internalError("record login failure", err)
	}
	if state.Locked {
		telemetry.AdminLockoutsTotal.Inc()
		return lockedError(state.LockedUntil.Sub(v.clock.Now()))
	}
	return cause
}

func (v *CredentialVerifier) totpSecret(admin *models.Admin) (string, error) {
	if admin.TOTPSecret == nil || *admin.TOTPSecret == "" {
		return "", errTOTPSecretMissing
	}
	if v.secrets == nil {
		return *admin.TOTPSecret, nil
	}
	return v.secrets.Open(*admin.TOTPSecret)
}
