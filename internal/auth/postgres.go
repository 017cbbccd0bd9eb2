package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shiftdesk.org/internal/ids"
)

// PGStore implements Store on PostgreSQL. Counter updates run as single
// UPDATE statements so concurrent logins against different instances
// never lose increments.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Credentials() CredentialStore { return (*pgCredentials)(s) }
func (s *PGStore) Audit() AuditStore            { return (*pgAudit)(s) }
func (s *PGStore) Blacklist() BlacklistStore    { return (*pgBlacklist)(s) }

type pgCredentials PGStore

const credentialColumns = `id, employee_id, name, email, password_hash, role, status,
	must_change_password, password_changed_at, token_version,
	failed_login_attempts, locked_until, last_login_at, created_at, updated_at`

func (s *pgCredentials) Create(ctx context.Context, u *UserCredential) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, employee_id, name, email, password_hash, role, status,
			must_change_password, password_changed_at, token_version,
			failed_login_attempts, locked_until, last_login_at, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		u.ID, u.EmployeeID, u.Name, u.Email, u.PasswordHash, string(u.Role), string(u.Status),
		u.MustChangePassword, u.PasswordChangedAt, u.TokenVersion,
		u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (s *pgCredentials) FindByEmployeeID(ctx context.Context, employeeID string) (*UserCredential, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from users where employee_id=$1`, employeeID)
	return scanCredential(row)
}

func (s *pgCredentials) FindByID(ctx context.Context, id string) (*UserCredential, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+credentialColumns+` from users where id=$1`, id)
	return scanCredential(row)
}

func (s *pgCredentials) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		count  int
		locked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`update users
		 set failed_login_attempts = failed_login_attempts + 1,
		     locked_until = case when failed_login_attempts + 1 >= $2 then $3 else locked_until end,
		     updated_at = now()
		 where id=$1
		 returning failed_login_attempts, locked_until`,
		id, threshold, lockUntil,
	).Scan(&count, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, err
	}
	if count >= threshold && locked.Valid {
		t := locked.Time.UTC()
		return count, &t, nil
	}
	return count, nil, nil
}

func (s *pgCredentials) ResetLoginState(ctx context.Context, id string, loginAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users
		 set failed_login_attempts = 0, locked_until = null, last_login_at = $2, updated_at = now()
		 where id=$1`,
		id, loginAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *pgCredentials) SetPassword(ctx context.Context, id, passwordHash string, mustChange bool, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users
		 set password_hash = $2,
		     must_change_password = $3,
		     password_changed_at = $4,
		     token_version = token_version + 1,
		     failed_login_attempts = 0,
		     locked_until = null,
		     updated_at = now()
		 where id=$1`,
		id, passwordHash, mustChange, changedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *pgCredentials) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		`update users set token_version = token_version + 1, updated_at = now()
		 where id=$1 returning token_version`,
		id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *pgCredentials) ClearLoginFailures(ctx context.Context, employeeID string) error {
	_, err := s.db.ExecContext(ctx,
		`update users
		 set failed_login_attempts = 0, locked_until = null, updated_at = now()
		 where employee_id=$1`,
		employeeID,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*UserCredential, error) {
	var (
		u       UserCredential
		role    string
		status  string
		changed sql.NullTime
		locked  sql.NullTime
		login   sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.EmployeeID, &u.Name, &u.Email, &u.PasswordHash, &role, &status,
		&u.MustChangePassword, &changed, &u.TokenVersion,
		&u.FailedLoginAttempts, &locked, &login, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	u.Status = Status(status)
	if changed.Valid {
		t := changed.Time.UTC()
		u.PasswordChangedAt = &t
	}
	if locked.Valid {
		t := locked.Time.UTC()
		u.LockedUntil = &t
	}
	if login.Valid {
		t := login.Time.UTC()
		u.LastLoginAt = &t
	}
	return &u, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type pgAudit PGStore

func (s *pgAudit) Append(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_log(id, actor_id, actor_employee_id, target_employee_id, action, details, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.ActorID, entry.ActorEmployeeID, entry.TargetEmployeeID, entry.Action, payload, entry.CreatedAt,
	)
	return err
}

type pgBlacklist PGStore

func (s *pgBlacklist) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from blacklisted_tokens where token_hash=$1 and expires_at > now())`,
		tokenHash,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *pgBlacklist) Add(ctx context.Context, tok *BlacklistedToken) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into blacklisted_tokens(token_hash, token_type, user_id, reason, expires_at, created_at)
		 values($1,$2,$3,$4,$5,$6)
		 on conflict (token_hash) do nothing`,
		tok.TokenHash, tok.TokenType, tok.UserID, tok.Reason, tok.ExpiresAt, tok.CreatedAt,
	)
	return err
}

// DeleteExpiredBlacklisted prunes rows past their natural expiry.
// Called opportunistically from the readiness sweep.
func (s *PGStore) DeleteExpiredBlacklisted(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from blacklisted_tokens where expires_at <= now()`)
	return err
}
