// Package stream fans out security events to live subscribers (the
// admin SSE feed). Delivery is best-effort; slow subscribers drop
// events rather than block the auth path.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event kinds published by the auth subsystem.
const (
	KindLoginSuccess   = "login.success"
	KindLoginFailure   = "login.failure"
	KindAccountLocked  = "account.locked"
	KindRateLimited    = "login.rate_limited"
	KindPasswordChange = "password.change"
	KindPasswordReset  = "password.reset"
	KindLogout         = "logout"
)

// SecurityEvent describes one security-relevant occurrence.
type SecurityEvent struct {
	Kind       string    `json:"kind"`
	EmployeeID string    `json:"employee_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan SecurityEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan SecurityEvent)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan SecurityEvent {
	ch := make(chan SecurityEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt SecurityEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
