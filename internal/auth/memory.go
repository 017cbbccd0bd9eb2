package auth

import (
	"context"
	"sync"
	"time"

	"shiftdesk.org/internal/ids"
)

// MemoryStore keeps all auth state behind one mutex. Used by tests and
// single-node development runs; production uses the Postgres store.
type MemoryStore struct {
	mu          sync.Mutex
	byID        map[string]*UserCredential
	byEmployee  map[string]string
	auditLog    []AuditEntry
	blacklisted map[string]*BlacklistedToken
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*UserCredential),
		byEmployee:  make(map[string]string),
		blacklisted: make(map[string]*BlacklistedToken),
	}
}

func (s *MemoryStore) Credentials() CredentialStore { return (*memCredentials)(s) }
func (s *MemoryStore) Audit() AuditStore            { return (*memAudit)(s) }
func (s *MemoryStore) Blacklist() BlacklistStore    { return (*memBlacklist)(s) }

// AuditEntries returns a copy of the appended audit log. Test helper.
func (s *MemoryStore) AuditEntries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

type memCredentials MemoryStore

func (s *memCredentials) Create(ctx context.Context, u *UserCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if _, exists := s.byEmployee[u.EmployeeID]; exists {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	clone := *u
	s.byID[u.ID] = &clone
	s.byEmployee[u.EmployeeID] = u.ID
	return nil
}

func (s *memCredentials) FindByEmployeeID(ctx context.Context, employeeID string) (*UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmployee[employeeID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *memCredentials) FindByID(ctx context.Context, id string) (*UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *memCredentials) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, nil, ErrNotFound
	}
	u.FailedLoginAttempts++
	u.UpdatedAt = time.Now().UTC()
	if u.FailedLoginAttempts >= threshold {
		deadline := lockUntil
		u.LockedUntil = &deadline
		return u.FailedLoginAttempts, &deadline, nil
	}
	return u.FailedLoginAttempts, nil, nil
}

func (s *memCredentials) ResetLoginState(ctx context.Context, id string, loginAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &loginAt
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memCredentials) SetPassword(ctx context.Context, id, passwordHash string, mustChange bool, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.MustChangePassword = mustChange
	u.PasswordChangedAt = &changedAt
	u.TokenVersion++
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memCredentials) BumpTokenVersion(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	u.TokenVersion++
	u.UpdatedAt = time.Now().UTC()
	return u.TokenVersion, nil
}

func (s *memCredentials) ClearLoginFailures(ctx context.Context, employeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmployee[employeeID]
	if !ok {
		return nil
	}
	u := s.byID[id]
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type memAudit MemoryStore

func (s *memAudit) Append(ctx context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLog = append(s.auditLog, *entry)
	return nil
}

type memBlacklist MemoryStore

func (s *memBlacklist) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.blacklisted[tokenHash]
	if !ok {
		return false, nil
	}
	if time.Now().After(tok.ExpiresAt) {
		delete(s.blacklisted, tokenHash)
		return false, nil
	}
	return true, nil
}

func (s *memBlacklist) Add(ctx context.Context, tok *BlacklistedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	clone := *tok
	s.blacklisted[tok.TokenHash] = &clone
	return nil
}
