package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func credentialRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "employee_id", "name", "email", "password_hash", "role", "status",
		"must_change_password", "password_changed_at", "token_version",
		"failed_login_attempts", "locked_until", "last_login_at", "created_at", "updated_at",
	})
}

func TestPGCredentialsFindByEmployeeID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("select (.+) from users where employee_id").
		WithArgs("EMP001").
		WillReturnRows(credentialRows().AddRow(
			"user-1", "EMP001", "Alice", "alice@example.com", "$2a$12$hash", "employee", "active",
			false, nil, 2, 0, nil, nil, now, now,
		))

	store := NewPGStore(db)
	u, err := store.Credentials().FindByEmployeeID(context.Background(), "EMP001")
	if err != nil {
		t.Fatalf("FindByEmployeeID: %v", err)
	}
	if u.ID != "user-1" || u.Role != RoleEmployee || u.TokenVersion != 2 {
		t.Fatalf("unexpected credential: %+v", u)
	}
	if u.PasswordChangedAt != nil || u.LockedUntil != nil {
		t.Fatalf("nullable fields should be nil: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGCredentialsFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select (.+) from users where id").
		WithArgs("ghost").
		WillReturnRows(credentialRows())

	store := NewPGStore(db)
	if _, err := store.Credentials().FindByID(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRecordLoginFailureBelowThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	lockUntil := time.Now().Add(15 * time.Minute).UTC()
	mock.ExpectQuery("update users").
		WithArgs("user-1", 5, lockUntil).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(2, nil))

	store := NewPGStore(db)
	count, locked, err := store.Credentials().RecordLoginFailure(context.Background(), "user-1", 5, lockUntil)
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if count != 2 || locked != nil {
		t.Fatalf("expected count=2 unlocked, got count=%d locked=%v", count, locked)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRecordLoginFailureTripsLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	lockUntil := time.Now().Add(15 * time.Minute).UTC()
	mock.ExpectQuery("update users").
		WithArgs("user-1", 5, lockUntil).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(5, lockUntil))

	store := NewPGStore(db)
	count, locked, err := store.Credentials().RecordLoginFailure(context.Background(), "user-1", 5, lockUntil)
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if count != 5 || locked == nil || !locked.Equal(lockUntil) {
		t.Fatalf("expected lock at %v, got count=%d locked=%v", lockUntil, count, locked)
	}
}

func TestPGSetPasswordBumpsVersionAtomically(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	changedAt := time.Now().UTC()
	mock.ExpectExec("update users").
		WithArgs("user-1", "$2a$12$newhash", true, changedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	err = store.Credentials().SetPassword(context.Background(), "user-1", "$2a$12$newhash", true, changedAt)
	if err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGSetPasswordMissingUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	err = store.Credentials().SetPassword(context.Background(), "ghost", "hash", false, time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGBumpTokenVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("update users set token_version").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"token_version"}).AddRow(7))

	store := NewPGStore(db)
	version, err := store.Credentials().BumpTokenVersion(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("BumpTokenVersion: %v", err)
	}
	if version != 7 {
		t.Fatalf("expected version 7, got %d", version)
	}
}

func TestPGAuditAppendMarshalsDetails(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into audit_log").
		WithArgs(sqlmock.AnyArg(), "admin-1", "ADM001", "EMP001", "password_reset",
			[]byte(`{"reset_by":"admin"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPGStore(db)
	err = store.Audit().Append(context.Background(), &AuditEntry{
		ActorID:          "admin-1",
		ActorEmployeeID:  "ADM001",
		TargetEmployeeID: "EMP001",
		Action:           "password_reset",
		Details:          map[string]any{"reset_by": "admin"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGBlacklist(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGStore(db)
	ctx := context.Background()

	mock.ExpectExec("insert into blacklisted_tokens").
		WithArgs("hash-abc", "access", "user-1", "logout", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	err = store.Blacklist().Add(ctx, &BlacklistedToken{
		TokenHash: "hash-abc",
		TokenType: "access",
		UserID:    "user-1",
		Reason:    "logout",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	mock.ExpectQuery("select exists").
		WithArgs("hash-abc").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	hit, err := store.Blacklist().IsBlacklisted(ctx, "hash-abc")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if !hit {
		t.Fatal("expected blacklisted")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
