package stream

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	s.Publish(SecurityEvent{Kind: KindAccountLocked, EmployeeID: "EMP001"})

	select {
	case evt := <-ch:
		if evt.Kind != KindAccountLocked || evt.EmployeeID != "EMP001" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriberRemovedOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	ch := s.Subscribe(ctx)
	cancel()

	// Channel closes once the context ends.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.Subscribe(ctx)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(SecurityEvent{Kind: KindLoginFailure})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}
