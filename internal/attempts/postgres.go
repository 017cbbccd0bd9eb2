package attempts

import (
	"context"
	"database/sql"
	"time"

	"shiftdesk.org/internal/ids"
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into login_attempts(id, ip_address, employee_id, success, user_agent, failure_reason, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.IPAddress, rec.EmployeeID, rec.Success, rec.UserAgent, rec.FailureReason, rec.CreatedAt,
	)
	return err
}

func (s *PGStore) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from login_attempts where ip_address=$1 and created_at >= $2`,
		ip, since,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`delete from login_attempts where created_at < $1`, cutoff)
	return err
}

func (s *PGStore) DeleteByEmployeeID(ctx context.Context, employeeID string) error {
	_, err := s.db.ExecContext(ctx,
		`delete from login_attempts where employee_id=$1`, employeeID)
	return err
}
