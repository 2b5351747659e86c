package auth

import (
	"fmt"
	"time"

	"github.com/filecoin-project/go-clock"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultTOTPWindowSteps is the number of 30 second steps accepted either side of now.
	DefaultTOTPWindowSteps = 2

	totpPeriod = 30
)

// TOTPValidator checks RFC 6238 codes (SHA-1, 6 digits, 30 s period) at the clock's
// current time.
type TOTPValidator struct {
	clock clock.Clock
}

// NewTOTPValidator creates a validator. A nil clock selects the wall clock.
func NewTOTPValidator(clk clock.Clock) *TOTPValidator {
	if clk == nil {
		clk = clock.New()
	}
	return &TOTPValidator{clock: clk}
}

// Check reports whether code is valid for secret within windowSteps steps of now.
// Malformed codes and secrets yield false.
func (v *TOTPValidator) Check(code, secret string, windowSteps int) bool {
	return ValidateTOTPAt(code, secret, v.clock.Now(), windowSteps)
}

// ValidateTOTPAt is Check at an explicit instant.
func ValidateTOTPAt(code, secret string, at time.Time, windowSteps int) bool {
	if !isSixDigits(code) || secret == "" || windowSteps < 0 {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      uint(windowSteps),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// GenerateTOTPSecret creates a new base32 secret for account and returns it with the
// otpauth:// URL an authenticator app can import.
func GenerateTOTPSecret(issuer, account string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}
