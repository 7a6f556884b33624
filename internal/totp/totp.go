// Package totp verifies RFC 6238 time-based one-time passwords: SHA-1, six
// digits, a 30 second period and one period of skew either side.
package totp

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	Digits = 6
	Period = 30 * time.Second
	// Skew is the number of periods accepted on either side of now.
	Skew = 1
)

var opts = pqtotp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Skew:      Skew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Generate returns the code for secret at instant t.
func Generate(secret string, t time.Time) (string, error) {
	return pqtotp.GenerateCodeCustom(secret, t, opts)
}

// Verify reports whether candidate matches the code for now or an adjacent
// period. A malformed secret never matches.
func Verify(secret, candidate string, now time.Time) bool {
	ok, err := pqtotp.ValidateCustom(strings.TrimSpace(candidate), secret, now, opts)
	return err == nil && ok
}
