// Package password implements the password policy engine: strength
// validation, secure generation and bcrypt hashing.
package password

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultMinLength is applied when the caller passes a non-positive
// minimum length.
const DefaultMinLength = 8

// DefaultCost is the bcrypt cost used when the caller passes zero.
const DefaultCost = 12

const generatorAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"

const specialCharacters = `!@#$%^&*(),.?":{}|<>`

// commonPasswords is matched case-insensitively and rejected outright.
var commonPasswords = []string{
	"123456", "password", "12345678", "qwerty", "123456789",
	"12345", "1234", "111111", "1234567", "dragon",
	"123123", "admin", "welcome", "monkey", "password1",
}

// dummyHash is a real bcrypt digest of a random throwaway value. It is
// compared against on the unknown-user login path so that path costs
// the same as a genuine password check.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Result reports the outcome of a strength validation. Violations
// lists every rule the password failed, not just the first.
type Result struct {
	OK         bool
	Violations []string
}

// ValidateStrength checks the password against the policy: minimum
// length, upper, lower, digit and special character, and the common
// password deny-list. Pure function; the same input always yields the
// same result.
func ValidateStrength(pw string, minLength int) Result {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}

	var violations []string
	if len(pw) < minLength {
		violations = append(violations, fmt.Sprintf("password must be at least %d characters long", minLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(specialCharacters, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "password must contain at least one uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "password must contain at least one lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "password must contain at least one number")
	}
	if !hasSpecial {
		violations = append(violations, "password must contain at least one special character")
	}

	lowered := strings.ToLower(pw)
	for _, common := range commonPasswords {
		if lowered == common {
			violations = append(violations, "password is too common, choose a more unique password")
			break
		}
	}

	return Result{OK: len(violations) == 0, Violations: violations}
}

// Generate produces a cryptographically random password of the given
// length (default 16) drawn from the alphanumeric+symbol alphabet.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = 16
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("password: read random bytes: %w", err)
	}
	out := make([]byte, length)
	for i, b := range raw {
		out[i] = generatorAlphabet[int(b)%len(generatorAlphabet)]
	}
	return string(out), nil
}

// Hash derives a bcrypt digest with the given cost (default 12).
// An empty password is a programming error, not a runtime condition.
func Hash(pw string, cost int) (string, error) {
	if pw == "" {
		return "", errors.New("password: refusing to hash empty password")
	}
	if cost <= 0 {
		cost = DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify compares a plaintext password with a stored bcrypt digest.
func Verify(hash, pw string) bool {
	if hash == "" || pw == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// DummyCompare burns one bcrypt comparison against a fixed digest.
// Called on the unknown-user login path to equalize response timing;
// the result is always discarded.
func DummyCompare(pw string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(pw))
}
