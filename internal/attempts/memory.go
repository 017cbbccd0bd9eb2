package attempts

import (
	"context"
	"sync"
	"time"

	"shiftdesk.org/internal/ids"
)

// InMemory is a mutex-guarded ledger for tests and single-node
// development runs.
type InMemory struct {
	mu   sync.Mutex
	rows []Record
}

var _ Store = (*InMemory)(nil)

// NewInMemory returns an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, *rec)
	return nil
}

func (s *InMemory) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.rows {
		if r.IPAddress == ip && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if !r.CreatedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

func (s *InMemory) DeleteByEmployeeID(ctx context.Context, employeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, r := range s.rows {
		if r.EmployeeID != employeeID {
			kept = append(kept, r)
		}
	}
	s.rows = kept
	return nil
}

// Len reports the number of retained rows. Test helper.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
