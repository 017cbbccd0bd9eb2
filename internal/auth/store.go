package auth

import (
	"context"
	"time"
)

// CredentialStore persists user authentication state. Counter updates
// are expressed as store operations (not read-modify-write in the
// service) so multi-instance deployments stay correct.
type CredentialStore interface {
	Create(ctx context.Context, u *UserCredential) error
	FindByEmployeeID(ctx context.Context, employeeID string) (*UserCredential, error)
	FindByID(ctx context.Context, id string) (*UserCredential, error)

	// RecordLoginFailure increments the failure counter and, when the
	// new count reaches threshold, sets lockedUntil. It returns the
	// post-increment count and the lock deadline if one was set.
	// Implementations should make the increment atomic where the
	// backing store supports it; two concurrent racers under-counting
	// by one is an accepted availability trade-off otherwise.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (attempts int, locked *time.Time, err error)

	// ResetLoginState clears failure counters and the lock, stamping
	// the successful login time.
	ResetLoginState(ctx context.Context, id string, loginAt time.Time) error

	// SetPassword atomically installs a new hash, adjusts the
	// must-change flag, stamps passwordChangedAt, bumps tokenVersion
	// and clears failure state.
	SetPassword(ctx context.Context, id, passwordHash string, mustChange bool, changedAt time.Time) error

	// BumpTokenVersion atomically increments the user's token version
	// and returns the new value. The version never moves backward.
	BumpTokenVersion(ctx context.Context, id string) (int, error)

	// ClearLoginFailures zeroes the failure counter and removes any
	// lock for the employee. Used by support tooling; unknown employee
	// IDs are a no-op.
	ClearLoginFailures(ctx context.Context, employeeID string) error
}

// AuditStore appends immutable security events.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
}

// BlacklistStore records tokens revoked before natural expiry, keyed
// by hash.
type BlacklistStore interface {
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)
	Add(ctx context.Context, tok *BlacklistedToken) error
}

// Store bundles the persistence surfaces consumed by the gateway.
type Store interface {
	Credentials() CredentialStore
	Audit() AuditStore
	Blacklist() BlacklistStore
}
