// Package attempts is the append-only login-attempt ledger. The IP
// rate-limit decision is a pure function of this ledger, which makes
// the limit clearable per employee (unlike opaque middleware state).
package attempts

import (
	"context"
	"time"
)

// Record is one row per login call, success or failure.
type Record struct {
	ID            string
	IPAddress     string
	EmployeeID    string
	Success       bool
	UserAgent     string
	FailureReason string
	CreatedAt     time.Time
}

// Store persists attempt records. Retention is operational: rows older
// than 24h are pruned best-effort, not as a correctness invariant.
type Store interface {
	Append(ctx context.Context, rec *Record) error

	// CountSince counts attempts from one IP inside the rolling
	// window, successes included: the limit throttles the source, not
	// the outcome.
	CountSince(ctx context.Context, ip string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
	DeleteByEmployeeID(ctx context.Context, employeeID string) error
}
