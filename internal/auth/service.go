package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"shiftdesk.org/internal/attempts"
	"shiftdesk.org/internal/obs"
	"shiftdesk.org/internal/password"
	"shiftdesk.org/internal/stream"
)

const (
	defaultMaxFailedAttempts = 5
	defaultLockoutDuration   = 15 * time.Minute
	defaultRateWindow        = 15 * time.Minute
	defaultRateMax           = 5
	attemptRetention         = 24 * time.Hour
)

var employeeIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)

// Notifier delivers out-of-band notifications (reset emails). The real
// transport lives outside this subsystem; LogNotifier is the default.
type Notifier interface {
	PasswordReset(ctx context.Context, user *UserCredential, tempPassword string) error
}

// LogNotifier records the notification intent in the structured log
// without sending anything.
type LogNotifier struct{}

func (LogNotifier) PasswordReset(ctx context.Context, user *UserCredential, tempPassword string) error {
	obs.LogRequest(map[string]any{
		"type":               "notify",
		"event":              "password_reset_email",
		"target_employee_id": user.EmployeeID,
		"target_email":       user.Email,
	})
	return nil
}

// Service is the auth gateway: login, password lifecycle, token
// refresh, logout and request-gate verification, composed over the
// credential store, the attempt ledger and the token service.
type Service struct {
	store    Store
	attempts attempts.Store
	tokens   *TokenService
	notifier Notifier
	events   *stream.Stream

	now func() time.Time

	maxFailedAttempts int
	lockoutDuration   time.Duration
	rateWindow        time.Duration
	rateMax           int
	passwordMinLen    int
	bcryptCost        int
	echoTempPasswords bool
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithNotifier installs the reset-notification collaborator.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithEvents attaches the live security-event stream.
func WithEvents(st *stream.Stream) Option {
	return func(s *Service) { s.events = st }
}

// WithLockoutPolicy sets the per-account failure threshold and lockout
// window.
func WithLockoutPolicy(maxAttempts int, lockout time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.maxFailedAttempts = maxAttempts
		}
		if lockout > 0 {
			s.lockoutDuration = lockout
		}
	}
}

// WithRatePolicy sets the per-IP rolling window and attempt ceiling.
func WithRatePolicy(window time.Duration, max int) Option {
	return func(s *Service) {
		if window > 0 {
			s.rateWindow = window
		}
		if max > 0 {
			s.rateMax = max
		}
	}
}

// WithPasswordPolicy sets the minimum length and bcrypt cost.
func WithPasswordPolicy(minLength, cost int) Option {
	return func(s *Service) {
		if minLength > 0 {
			s.passwordMinLen = minLength
		}
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithTempPasswordEcho enables returning generated temporary passwords
// in reset responses. Never enabled in production.
func WithTempPasswordEcho(enabled bool) Option {
	return func(s *Service) { s.echoTempPasswords = enabled }
}

// NewService wires the gateway.
func NewService(store Store, ledger attempts.Store, tokens *TokenService, opts ...Option) (*Service, error) {
	if store == nil || ledger == nil || tokens == nil {
		return nil, errors.New("auth: store, attempt ledger and token service are required")
	}
	svc := &Service{
		store:             store,
		attempts:          ledger,
		tokens:            tokens,
		notifier:          LogNotifier{},
		now:               time.Now,
		maxFailedAttempts: defaultMaxFailedAttempts,
		lockoutDuration:   defaultLockoutDuration,
		rateWindow:        defaultRateWindow,
		rateMax:           defaultRateMax,
		passwordMinLen:    password.DefaultMinLength,
		bcryptCost:        password.DefaultCost,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// LoginInput carries the credentials plus request metadata.
type LoginInput struct {
	EmployeeID string
	Password   string
	IPAddress  string
	UserAgent  string
}

// LoginResult is returned on successful authentication. Tokens are
// issued even when MustChangePassword is set; the caller is funneled
// into the change-password operation by the request gate.
type LoginResult struct {
	User               Profile
	AccessToken        string
	RefreshToken       string
	AccessExpiresAt    time.Time
	RefreshExpiresAt   time.Time
	MustChangePassword bool
}

// Login runs the full state machine: input validation, IP rate limit,
// lookup with enumeration-resistant rejection, lockout evaluation,
// password verification and token issuance.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	employeeID := strings.TrimSpace(in.EmployeeID)
	if employeeID == "" || in.Password == "" {
		return nil, newError(CodeInvalidInput, "Employee ID and password are required")
	}
	if !employeeIDPattern.MatchString(employeeID) {
		return nil, newError(CodeInvalidInput, "Invalid employee ID format")
	}

	now := s.now().UTC()

	limited, err := s.rateLimited(ctx, in.IPAddress, now)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if limited {
		obs.ObserveLogin("rate_limited")
		s.publish(stream.KindRateLimited, employeeID, in.IPAddress, "")
		return nil, newError(CodeRateLimited, "Too many login attempts. Please try again later.")
	}

	user, err := s.store.Credentials().FindByEmployeeID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Constant-cost comparison on the unknown-user path keeps
			// its timing indistinguishable from a wrong password.
			password.DummyCompare(in.Password)
			s.recordAttempt(ctx, in, employeeID, false, "user_not_found", now)
			obs.ObserveLogin("invalid_credentials")
			return nil, newError(CodeInvalidCredentials, invalidCredentialsMessage)
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}

	if status := user.Status; status != "" && status != StatusActive {
		obs.ObserveLogin("inactive")
		return nil, newError(CodeAccountInactive, "Account is inactive")
	}

	if user.LockedNow(now) {
		obs.ObserveLogin("locked")
		e := newError(CodeAccountLocked, fmt.Sprintf("Account is locked. Try again in %d minutes.", remainingMinutes(*user.LockedUntil, now)))
		e.LockedUntil = user.LockedUntil
		return nil, e
	}

	if !password.Verify(user.PasswordHash, in.Password) {
		count, lockedAt, ferr := s.store.Credentials().RecordLoginFailure(ctx, user.ID, s.maxFailedAttempts, now.Add(s.lockoutDuration))
		if ferr != nil {
			return nil, fmt.Errorf("record login failure: %w", ferr)
		}
		s.recordAttempt(ctx, in, employeeID, false, "invalid_password", now)
		obs.ObserveLogin("invalid_credentials")

		if lockedAt != nil {
			obs.ObserveLockout()
			s.publish(stream.KindAccountLocked, employeeID, in.IPAddress, fmt.Sprintf("locked until %s", lockedAt.Format(time.RFC3339)))
			s.appendAudit(ctx, &AuditEntry{
				ActorID:          user.ID,
				ActorEmployeeID:  employeeID,
				TargetEmployeeID: employeeID,
				Action:           "account_locked",
				Details: map[string]any{
					"failed_attempts": count,
					"locked_until":    lockedAt.Format(time.RFC3339),
					"ip_address":      in.IPAddress,
				},
			})
		}

		remaining := s.maxFailedAttempts - count
		if remaining < 0 {
			remaining = 0
		}
		e := newError(CodeInvalidCredentials, invalidCredentialsMessage)
		e.RemainingAttempts = &remaining
		e.LockedUntil = lockedAt
		return nil, e
	}

	if err := s.store.Credentials().ResetLoginState(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("reset login state: %w", err)
	}
	s.recordAttempt(ctx, in, employeeID, true, "", now)

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	result, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	obs.ObserveLogin("success")
	s.publish(stream.KindLoginSuccess, employeeID, in.IPAddress, "")
	s.appendAudit(ctx, &AuditEntry{
		ActorID:          user.ID,
		ActorEmployeeID:  employeeID,
		TargetEmployeeID: employeeID,
		Action:           "login",
		Details:          map[string]any{"ip_address": in.IPAddress},
	})

	return result, nil
}

// ChangePasswordInput covers both modes: a forced change (only
// NewPassword) and a voluntary change (all three fields).
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// ChangePassword rotates the caller's password, invalidates all
// outstanding tokens via a version bump and issues a fresh pair.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) (*LoginResult, error) {
	creds := s.store.Credentials()
	user, err := creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(CodeUserNotFound, "User not found")
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}

	forced := user.MustChangePassword
	if forced {
		if in.NewPassword == "" {
			return nil, newError(CodeMissingFields, "New password is required")
		}
	} else {
		if in.CurrentPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
			return nil, newError(CodeMissingFields, "All password fields are required")
		}
		if in.NewPassword != in.ConfirmPassword {
			return nil, newError(CodeMismatchedConfirmation, "New passwords do not match")
		}
	}

	if res := password.ValidateStrength(in.NewPassword, s.passwordMinLen); !res.OK {
		e := newError(CodeWeakPassword, "Weak password")
		e.Violations = res.Violations
		return nil, e
	}

	if !forced {
		if !password.Verify(user.PasswordHash, in.CurrentPassword) {
			return nil, newError(CodeWrongCurrentPassword, "Current password is incorrect")
		}
	}
	if password.Verify(user.PasswordHash, in.NewPassword) {
		return nil, newError(CodeSameAsOldPassword, "New password must be different from current password")
	}

	hash, err := password.Hash(in.NewPassword, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := creds.SetPassword(ctx, user.ID, hash, false, now); err != nil {
		return nil, fmt.Errorf("set password: %w", err)
	}

	updated, err := creds.FindByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("reload credential: %w", err)
	}

	result, err := s.issuePair(updated)
	if err != nil {
		return nil, err
	}

	method := "self_service"
	if forced {
		method = "forced_change"
	}
	s.appendAudit(ctx, &AuditEntry{
		ActorID:          updated.ID,
		ActorEmployeeID:  updated.EmployeeID,
		TargetEmployeeID: updated.EmployeeID,
		Action:           "password_change",
		Details:          map[string]any{"method": method},
	})
	s.publish(stream.KindPasswordChange, updated.EmployeeID, "", method)

	// Old sessions are already invalidated by the version bump; the
	// ledger purge just clears the login window for the employee.
	_ = s.attempts.DeleteByEmployeeID(ctx, updated.EmployeeID)

	return result, nil
}

// ResetPasswordInput names the target and an optional password; when
// none is supplied a temporary one is generated.
type ResetPasswordInput struct {
	TargetEmployeeID string
	NewPassword      string
}

// ResetResult reports the reset outcome. TempPassword is populated
// only outside production.
type ResetResult struct {
	EmployeeID         string
	Name               string
	MustChangePassword bool
	TempPassword       string
}

// ResetPassword is the privileged (hr/admin) reset: installs a
// temporary password, forces a change on next login and invalidates
// every outstanding token for the target.
func (s *Service) ResetPassword(ctx context.Context, actor Principal, in ResetPasswordInput) (*ResetResult, error) {
	if !actor.Role.Privileged() {
		return nil, newError(CodeInsufficientPermissions, "Insufficient permissions")
	}
	target := strings.ToUpper(strings.TrimSpace(in.TargetEmployeeID))
	if target == "" {
		return nil, newError(CodeMissingFields, "Employee ID is required")
	}

	creds := s.store.Credentials()
	user, err := creds.FindByEmployeeID(ctx, target)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, newError(CodeUserNotFound, "User not found")
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}

	temp := in.NewPassword
	if temp == "" {
		temp, err = password.Generate(16)
		if err != nil {
			return nil, fmt.Errorf("generate temporary password: %w", err)
		}
	} else if res := password.ValidateStrength(temp, s.passwordMinLen); !res.OK {
		e := newError(CodeWeakPassword, "Weak password")
		e.Violations = res.Violations
		return nil, e
	}

	hash, err := password.Hash(temp, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := creds.SetPassword(ctx, user.ID, hash, true, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("set password: %w", err)
	}

	s.appendAudit(ctx, &AuditEntry{
		ActorID:          actor.UserID,
		ActorEmployeeID:  actor.EmployeeID,
		TargetEmployeeID: user.EmployeeID,
		Action:           "password_reset",
		Details: map[string]any{
			"reset_by":   "admin",
			"admin_role": string(actor.Role),
		},
	})
	s.publish(stream.KindPasswordReset, user.EmployeeID, "", "by "+actor.EmployeeID)

	if err := s.notifier.PasswordReset(ctx, user, temp); err != nil {
		obs.LogRequest(map[string]any{
			"type":  "error",
			"event": "password_reset_notify_failed",
			"error": err.Error(),
		})
	}

	result := &ResetResult{
		EmployeeID:         user.EmployeeID,
		Name:               user.Name,
		MustChangePassword: true,
	}
	if s.echoTempPasswords {
		result.TempPassword = temp
	}
	return result, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token is reused until its own expiry; no rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			return "", time.Time{}, newError(CodeTokenExpired, "Refresh token expired")
		case errors.Is(err, ErrTokenWrongType):
			return "", time.Time{}, newError(CodeTokenInvalid, "Invalid token type")
		default:
			return "", time.Time{}, newError(CodeTokenInvalid, "Invalid refresh token")
		}
	}

	user, err := s.store.Credentials().FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, newError(CodeTokenInvalid, "User not found or inactive")
		}
		return "", time.Time{}, fmt.Errorf("find credential: %w", err)
	}
	if status := user.Status; status != "" && status != StatusActive {
		return "", time.Time{}, newError(CodeTokenInvalid, "User not found or inactive")
	}
	if claims.TokenVersion != user.TokenVersion {
		return "", time.Time{}, newError(CodeTokenVersionMismatch, "Token invalid (version mismatch)")
	}

	access, exp, err := s.tokens.IssueAccess(user)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue access token: %w", err)
	}
	return access, exp, nil
}

// Logout invalidates every outstanding token for the user via a
// version bump and clears the login window bookkeeping tied to the
// employee. Ledger cleanup is best-effort.
func (s *Service) Logout(ctx context.Context, userID string) error {
	creds := s.store.Credentials()
	user, err := creds.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(CodeUserNotFound, "User not found")
		}
		return fmt.Errorf("find credential: %w", err)
	}

	if _, err := creds.BumpTokenVersion(ctx, user.ID); err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	_ = s.attempts.DeleteByEmployeeID(ctx, user.EmployeeID)
	_ = creds.ClearLoginFailures(ctx, user.EmployeeID)

	s.appendAudit(ctx, &AuditEntry{
		ActorID:          user.ID,
		ActorEmployeeID:  user.EmployeeID,
		TargetEmployeeID: user.EmployeeID,
		Action:           "logout",
		Details:          map[string]any{},
	})
	s.publish(stream.KindLogout, user.EmployeeID, "", "")
	return nil
}

// ResetRateLimit clears the login window and failure counters for one
// employee. Privileged operation, exposed for support tooling.
func (s *Service) ResetRateLimit(ctx context.Context, actor Principal, employeeID string) error {
	if !actor.Role.Privileged() {
		return newError(CodeInsufficientPermissions, "Insufficient permissions")
	}
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return newError(CodeMissingFields, "Employee ID is required")
	}
	if err := s.attempts.DeleteByEmployeeID(ctx, employeeID); err != nil {
		return fmt.Errorf("clear attempt ledger: %w", err)
	}
	if err := s.store.Credentials().ClearLoginFailures(ctx, employeeID); err != nil {
		return fmt.Errorf("clear failure counters: %w", err)
	}
	s.appendAudit(ctx, &AuditEntry{
		ActorID:          actor.UserID,
		ActorEmployeeID:  actor.EmployeeID,
		TargetEmployeeID: employeeID,
		Action:           "rate_limit_reset",
		Details:          map[string]any{},
	})
	return nil
}

// VerifyAccessToken is the request gate. Checks run in a fixed order,
// short-circuiting on the first failure; each failure carries a stable
// code.
func (s *Service) VerifyAccessToken(ctx context.Context, token string, changePasswordRequest bool) (Principal, error) {
	if strings.TrimSpace(token) == "" {
		return Principal{}, newError(CodeTokenInvalid, "Access token required")
	}

	blacklisted, err := s.store.Blacklist().IsBlacklisted(ctx, HashToken(token))
	if err != nil {
		return Principal{}, fmt.Errorf("blacklist check: %w", err)
	}
	if blacklisted {
		return Principal{}, newError(CodeTokenBlacklisted, "Token has been revoked")
	}

	claims, err := s.tokens.Verify(token, TokenAccess)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			return Principal{}, newError(CodeTokenExpired, "Token has expired")
		case errors.Is(err, ErrTokenWrongType):
			return Principal{}, newError(CodeTokenInvalid, "Invalid token type")
		default:
			return Principal{}, newError(CodeTokenInvalid, "Invalid token")
		}
	}

	user, err := s.store.Credentials().FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, newError(CodeUserNotFound, "User not found")
		}
		return Principal{}, fmt.Errorf("find credential: %w", err)
	}

	now := s.now().UTC()
	if status := user.Status; status != "" && status != StatusActive {
		return Principal{}, newError(CodeAccountInactive, "Account is inactive")
	}
	if user.LockedNow(now) {
		e := newError(CodeAccountLocked, "Account is locked")
		e.LockedUntil = user.LockedUntil
		return Principal{}, e
	}
	if claims.TokenVersion != user.TokenVersion {
		return Principal{}, newError(CodeTokenVersionMismatch, "Token invalid (version mismatch)")
	}
	// Tokens minted before the last password change are stale even when
	// the version happens to match. iat carries whole seconds only, so
	// the stored timestamp is truncated to the same resolution before
	// comparing; otherwise the pair issued by the change itself would be
	// rejected.
	if user.PasswordChangedAt != nil && claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
		return Principal{}, newError(CodeTokenVersionMismatch, "Token invalid (password changed)")
	}
	if user.MustChangePassword && !changePasswordRequest {
		return Principal{}, newError(CodePasswordChangeRequired, "Password change required")
	}

	return Principal{
		UserID:             user.ID,
		EmployeeID:         user.EmployeeID,
		Name:               user.Name,
		Email:              user.Email,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
		TokenVersion:       user.TokenVersion,
	}, nil
}

// RevokeToken blacklists one token by hash until its natural expiry.
func (s *Service) RevokeToken(ctx context.Context, token, userID, tokenType, reason string, expiresAt time.Time) error {
	return s.store.Blacklist().Add(ctx, &BlacklistedToken{
		TokenHash: HashToken(token),
		TokenType: tokenType,
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: expiresAt,
	})
}

// RevokeAccessToken blacklists the presented access token for its
// maximum possible remaining lifetime.
func (s *Service) RevokeAccessToken(ctx context.Context, token, userID, reason string) error {
	return s.RevokeToken(ctx, token, userID, string(TokenAccess), reason, s.now().Add(s.tokens.AccessTTL()))
}

func (s *Service) issuePair(user *UserCredential) (*LoginResult, error) {
	access, accessExp, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(user)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &LoginResult{
		User:               profileOf(user),
		AccessToken:        access,
		RefreshToken:       refresh,
		AccessExpiresAt:    accessExp,
		RefreshExpiresAt:   refreshExp,
		MustChangePassword: user.MustChangePassword,
	}, nil
}

func (s *Service) rateLimited(ctx context.Context, ip string, now time.Time) (bool, error) {
	if ip == "" {
		return false, nil
	}
	count, err := s.attempts.CountSince(ctx, ip, now.Add(-s.rateWindow))
	if err != nil {
		return false, err
	}
	return count >= s.rateMax, nil
}

// recordAttempt appends a ledger row and prunes rows past retention.
// Both writes are best-effort; a ledger failure never blocks login.
func (s *Service) recordAttempt(ctx context.Context, in LoginInput, employeeID string, success bool, reason string, now time.Time) {
	rec := &attempts.Record{
		IPAddress:     in.IPAddress,
		EmployeeID:    employeeID,
		Success:       success,
		UserAgent:     in.UserAgent,
		FailureReason: reason,
		CreatedAt:     now,
	}
	if err := s.attempts.Append(ctx, rec); err != nil {
		obs.LogRequest(map[string]any{
			"type":  "error",
			"event": "login_attempt_record_failed",
			"error": err.Error(),
		})
	}
	_ = s.attempts.DeleteOlderThan(ctx, now.Add(-attemptRetention))
	if !success {
		s.publish(stream.KindLoginFailure, employeeID, in.IPAddress, reason)
	}
}

func (s *Service) appendAudit(ctx context.Context, entry *AuditEntry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if err := s.store.Audit().Append(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{
			"type":  "error",
			"event": "audit_append_failed",
			"error": err.Error(),
		})
	}
}

func (s *Service) publish(kind, employeeID, ip, detail string) {
	if s.events == nil {
		return
	}
	s.events.Publish(stream.SecurityEvent{
		Kind:       kind,
		EmployeeID: employeeID,
		IPAddress:  ip,
		Detail:     detail,
	})
}

func remainingMinutes(until, now time.Time) int {
	d := until.Sub(now)
	if d <= 0 {
		return 0
	}
	mins := int(d / time.Minute)
	if d%time.Minute != 0 {
		mins++
	}
	return mins
}
