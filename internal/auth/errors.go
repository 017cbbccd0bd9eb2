package auth

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies an expected rejection. Codes are part of the API
// contract and must stay stable.
type Code string

const (
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeAccountInactive         Code = "ACCOUNT_INACTIVE"
	CodeAccountLocked           Code = "ACCOUNT_LOCKED"
	CodePasswordChangeRequired  Code = "PASSWORD_CHANGE_REQUIRED"
	CodeWeakPassword            Code = "WEAK_PASSWORD"
	CodeMissingFields           Code = "MISSING_FIELDS"
	CodeWrongCurrentPassword    Code = "WRONG_CURRENT_PASSWORD"
	CodeSameAsOldPassword       Code = "SAME_AS_OLD_PASSWORD"
	CodeMismatchedConfirmation  Code = "MISMATCHED_CONFIRMATION"
	CodeTokenExpired            Code = "TOKEN_EXPIRED"
	CodeTokenInvalid            Code = "TOKEN_INVALID"
	CodeTokenVersionMismatch    Code = "TOKEN_VERSION_MISMATCH"
	CodeTokenBlacklisted        Code = "TOKEN_BLACKLISTED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeUserNotFound            Code = "USER_NOT_FOUND"
	CodeAuthFailed              Code = "AUTH_FAILED"
)

// invalidCredentialsMessage is shared by the unknown-user and
// wrong-password paths; the texts must stay identical to prevent user
// enumeration.
const invalidCredentialsMessage = "Password incorrect"

// Error is a typed, expected rejection carrying a stable code plus the
// operation-specific detail fields the HTTP layer echoes back.
type Error struct {
	Code    Code
	Message string

	// RemainingAttempts is set on failed-password rejections.
	RemainingAttempts *int
	// LockedUntil is set on ACCOUNT_LOCKED rejections.
	LockedUntil *time.Time
	// Violations lists the broken rules on WEAK_PASSWORD rejections.
	Violations []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is match any *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// CodeOf extracts the stable code from an error, or AUTH_FAILED for
// unexpected failures.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeAuthFailed
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Store-level sentinels.
var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
)

// Token verification sentinels; callers branch on these.
var (
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenInvalid   = errors.New("auth: token invalid")
	ErrTokenWrongType = errors.New("auth: wrong token type")
)
