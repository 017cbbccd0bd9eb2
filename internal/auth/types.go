package auth

import "time"

// Role enumerates the access levels known to the HR platform.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
)

// Privileged reports whether the role may perform administrative
// password operations.
func (r Role) Privileged() bool {
	return r == RoleHR || r == RoleAdmin
}

// Status enumerates account lifecycle states.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusLocked   Status = "locked"
)

// UserCredential is one employee's authentication state. Rows are
// created at provisioning and never physically deleted by this
// subsystem.
type UserCredential struct {
	ID                  string
	EmployeeID          string
	Name                string
	Email               string
	PasswordHash        string
	Role                Role
	Status              Status
	MustChangePassword  bool
	PasswordChangedAt   *time.Time
	TokenVersion        int
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LockedNow reports whether the account is inside an active lockout
// window. Expiry is evaluated lazily; counters are not reset on a
// timer.
func (u *UserCredential) LockedNow(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID               string
	ActorID          string
	ActorEmployeeID  string
	TargetEmployeeID string
	Action           string
	Details          map[string]any
	CreatedAt        time.Time
}

// BlacklistedToken records a revoked token by hash, never by raw value.
type BlacklistedToken struct {
	TokenHash string
	TokenType string
	UserID    string
	Reason    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Principal is the authenticated identity attached to a request after
// access-token verification.
type Principal struct {
	UserID             string
	EmployeeID         string
	Name               string
	Email              string
	Role               Role
	MustChangePassword bool
	TokenVersion       int
}

// Profile is the user payload returned by login and change-password.
type Profile struct {
	ID                 string     `json:"id"`
	EmployeeID         string     `json:"employeeId"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Role               Role       `json:"role"`
	MustChangePassword bool       `json:"mustChangePassword"`
	Status             Status     `json:"status"`
	TokenVersion       int        `json:"tokenVersion"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
}

func profileOf(u *UserCredential) Profile {
	status := u.Status
	if status == "" {
		status = StatusActive
	}
	return Profile{
		ID:                 u.ID,
		EmployeeID:         u.EmployeeID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               u.Role,
		MustChangePassword: u.MustChangePassword,
		Status:             status,
		TokenVersion:       u.TokenVersion,
		LastLoginAt:        u.LastLoginAt,
	}
}
