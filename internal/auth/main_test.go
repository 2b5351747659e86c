package auth

import (
	"testing"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/stagehand/adminauth/internal/auth/authtest"
	"github.com/stagehand/adminauth/internal/db/models"
	"golang.org/x/crypto/bcrypt"
)

// ---------------------------------------------------------------------------
// Shared fixtures
// ---------------------------------------------------------------------------

const (
	testPassword   = "correct horse battery"
	testTOTPSecret = "JBSWY3DPEHPK3PXP"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 15, 0, time.UTC)

func supportRole() *models.AdminRole {
	return &models.AdminRole{
		ID:   "role-support",
		Name: "support",
		DefaultPermissions: models.Permissions{
			models.ResourceApplications: {models.ActionView},
		},
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

// testAdmin returns an active support admin with TOTP disabled.
func testAdmin(t *testing.T) *models.Admin {
	return &models.Admin{
		Email:        "a@x.com",
		FullName:     "Ada Admin",
		PasswordHash: mustHash(t, testPassword),
		IsActive:     true,
		RoleID:       "role-support",
		Role:         supportRole(),
	}
}

type fixture struct {
	svc   *Service
	store *authtest.Store
	audit *authtest.AuditSink
	clock *clock.Mock
}

func inline(fn func()) { fn() }

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(testEpoch)

	opts := Options{
		LockoutThreshold: 5,
		LockoutDuration:  15 * time.Minute,
		SessionTTL:       30 * time.Minute,
		IdleTimeout:      30 * time.Minute,
		TOTPWindowSteps:  DefaultTOTPWindowSteps,
		BcryptCost:       bcrypt.MinCost,
		Clock:            mock,
		Async:            inline,
	}
	if mutate != nil {
		mutate(&opts)
	}

	store := authtest.NewStore()
	sink := &authtest.AuditSink{}
	return &fixture{
		svc:   NewService(store, store, sink, opts),
		store: store,
		audit: sink,
		clock: mock,
	}
}
